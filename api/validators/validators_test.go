package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  tamanho errado \t", 0, "tamanho errado"},
		{"drops control chars", "ok\x00\x07 fine", 0, "ok fine"},
		{"keeps newlines", "linha 1\nlinha 2", 0, "linha 1\nlinha 2"},
		{"caps by rune", "não serviu", 3, "não"},
		{"no trailing space after cut", "peça azul", 5, "peça"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.in, tc.max); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

type decodeTarget struct {
	Token string `json:"token" validate:"required,len=6,numeric"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"12ab"}`))
	var dest decodeTarget
	err := DecodeJSONBody(r, &dest)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["token"] == "" {
		t.Fatalf("expected token detail keyed by json name, got %#v", typed.Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"123456","extra":1}`))
	var dest decodeTarget
	if err := DecodeJSONBody(r, &dest); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestParsePathUUID(t *testing.T) {
	withParam := func(v string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("bagId", v)
		return httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.WithValue(context.Background(), chi.RouteCtxKey, rctx))
	}
	if _, err := ParsePathUUID(withParam("not-a-uuid"), "bagId"); err == nil {
		t.Fatal("expected malformed uuid to fail")
	}
	if _, err := ParsePathUUID(withParam(""), "bagId"); err == nil {
		t.Fatal("expected missing uuid to fail")
	}
	id, err := ParsePathUUID(withParam("6f1c2a9e-0b7d-4a4e-9a51-3c2b1d0e9f10"), "bagId")
	if err != nil || id.String() != "6f1c2a9e-0b7d-4a4e-9a51-3c2b1d0e9f10" {
		t.Fatalf("unexpected result %s %v", id, err)
	}
}

func TestParseQueryEnum(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?status=delivered", nil)
	status, ok, err := ParseQueryEnum(r, "status", enums.ParseBagStatus)
	if err != nil || !ok || status != enums.BagStatusDelivered {
		t.Fatalf("unexpected parse %s %v %v", status, ok, err)
	}

	_, ok, err = ParseQueryEnum(httptest.NewRequest(http.MethodGet, "/", nil), "status", enums.ParseBagStatus)
	if err != nil || ok {
		t.Fatal("absent parameter should be ok=false without error")
	}

	_, _, err = ParseQueryEnum(httptest.NewRequest(http.MethodGet, "/?status=LOST", nil), "status", enums.ParseBagStatus)
	if err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(r, "limit", 20, 1, 100); err == nil {
		t.Fatal("expected out of range error")
	}
	v, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 20, 1, 100)
	if err != nil || v != 20 {
		t.Fatalf("expected default 20, got %d %v", v, err)
	}
}
