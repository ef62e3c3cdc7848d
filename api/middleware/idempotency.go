package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bagflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bagflow-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	pendingIdempotencyTTL  = time.Minute
	idempotencyHeader      = "Idempotency-Key"
)

type idempotencyRule struct {
	method   string
	pattern  string
	ttl      time.Duration
	required bool
}

// Creating a bag authorizes a deposit, so a retried POST must never open a
// second bag. The state-changing bag actions are already guarded by the
// state machine and only replay their response.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, pattern: "/api/v1/bags", ttl: criticalIdempotencyTTL, required: true},
	{method: http.MethodPost, pattern: "/api/v1/bags/{bagId}/authorize", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/bags/{bagId}/confirm-purchase", ttl: defaultIdempotencyTTL},
	{method: http.MethodPut, pattern: "/api/v1/bags/{bagId}/confirm-return", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/bags/{bagId}/cancel", ttl: defaultIdempotencyTTL},
}

type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored response of a request repeated with the same
// Idempotency-Key. It must run after the route is matched so the chi pattern
// is known.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := ruleFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if idempotencyKey == "" {
				if rule.required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			pending, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
			claimed, err := store.SetNX(r.Context(), key, string(pending), pendingIdempotencyTTL)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !claimed {
				replay(r.Context(), store, logg, w, key, requestHash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// server errors are not replayed; the caller may retry with the same key
			if err := store.Del(r.Context(), key); err != nil {
				logError(r.Context(), logg, "clear pending idempotency record", err)
				return
			}
			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				return
			}
			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(r.Context(), logg, "marshal idempotency record", err)
				return
			}
			if _, err := store.SetNX(r.Context(), key, string(payload), rule.ttl); err != nil {
				logError(r.Context(), logg, "persist idempotency record", err)
			}
		})
	}
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func ruleFor(method, pattern string) (idempotencyRule, bool) {
	pattern = strings.TrimSuffix(pattern, "/")
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.pattern == pattern {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
