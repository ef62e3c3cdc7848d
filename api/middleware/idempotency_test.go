package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const bagsPattern = "/api/v1/bags"

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRuleSelection(t *testing.T) {
	tests := []struct {
		method   string
		pattern  string
		ok       bool
		required bool
	}{
		{http.MethodPost, "/api/v1/bags", true, true},
		{http.MethodPost, "/api/v1/bags/", true, true},
		{http.MethodPost, "/api/v1/bags/{bagId}/cancel", true, false},
		{http.MethodPut, "/api/v1/bags/{bagId}/confirm-return", true, false},
		{http.MethodGet, "/api/v1/bags", false, false},
		{http.MethodPost, "/api/v1/bags/{bagId}/accept", false, false},
	}
	for _, tt := range tests {
		rule, ok := ruleFor(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s %s: expected ok=%v got %v", tt.method, tt.pattern, tt.ok, ok)
		}
		if ok && rule.required != tt.required {
			t.Fatalf("%s %s: expected required=%v", tt.method, tt.pattern, tt.required)
		}
	}
}

func TestIdempotencyRequiresHeaderOnBagCreation(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{"items":[]}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyOptionalRoutePassesThrough(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/bags/1/cancel", "/api/v1/bags/{bagId}/cancel", strings.NewReader(`{}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"bag-1"}}`))
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{"address_id":"a"}`))
		req.Header.Set("Idempotency-Key", "abc")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
		if resp.Header().Get("Content-Type") != "application/json" {
			t.Fatalf("attempt %d: expected content-type header preserved", i)
		}
		if strings.TrimSpace(resp.Body.String()) != `{"data":{"id":"bag-1"}}` {
			t.Fatalf("attempt %d: unexpected body %s", i, resp.Body.String())
		}
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDoesNotReplayServerErrors(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusBadGateway || codes[1] != http.StatusCreated {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestIdempotencyRejectsInFlightAndChangedRequests(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a duplicate arriving while the first request still runs
		dup := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{"a":1}`))
		dup = dup.WithContext(r.Context())
		dup.Header.Set("Idempotency-Key", "xyz")
		inner = httptest.NewRecorder()
		Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not reach the handler")
		})).ServeHTTP(inner, dup)
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{"a":1}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	if inner.Code != http.StatusConflict || errorCode(t, inner) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected in-flight conflict, got %d %s", inner.Code, inner.Body.String())
	}

	changed := requestWithPattern(http.MethodPost, "/api/v1/bags", bagsPattern, strings.NewReader(`{"a":2}`))
	changed.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, changed)
	if resp.Code != http.StatusConflict || errorCode(t, resp) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected body-change conflict, got %d", resp.Code)
	}
}
