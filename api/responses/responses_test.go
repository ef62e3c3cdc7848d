package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusCreated {
		t.Fatalf("expected status 201 but got %d", got)
	}
	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorMapsDomainCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "items"}), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodeInvalidTransition, "bag is DELIVERED"), http.StatusUnprocessableEntity},
		{pkgerrors.New(pkgerrors.CodeTokenMismatch, "handoff code does not match"), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodeTokenNotFound, "no live handoff code"), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeConcurrentClaim, "job already claimed"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodePaymentGateway, "card declined"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), logger.Nop(), w, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: expected status %d but got %d", tc.err, tc.status, w.Code)
		}
		body := decodeError(t, w)
		if body.Error.Code != string(pkgerrors.As(tc.err).Code()) {
			t.Fatalf("unexpected code %s", body.Error.Code)
		}
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused on 10.0.0.3"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message == "pq: connection refused on 10.0.0.3" {
		t.Fatal("internal error text leaked to the caller")
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "bag not found"))

	body := decodeError(t, w)
	if body.Error.RequestID != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", body.Error.RequestID)
	}
}
