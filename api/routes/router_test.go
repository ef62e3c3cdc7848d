package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bagcontrollers "github.com/angelmondragon/bagflow-backend/api/controllers/bags"
	"github.com/angelmondragon/bagflow-backend/internal/bags"
	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	paymentwebhook "github.com/angelmondragon/bagflow-backend/internal/webhooks/payments"
	pkgAuth "github.com/angelmondragon/bagflow-backend/pkg/auth"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

type stubBags struct {
	bagcontrollers.Service
	creates int
}

func (s *stubBags) Create(_ context.Context, actor bags.Actor, _ bags.CreateBagInput) (*bags.BagDetail, error) {
	s.creates++
	return &bags.BagDetail{BagSummary: bags.BagSummary{ID: uuid.New(), ClientID: actor.UserID, Status: enums.BagStatusRequested}}, nil
}

type stubJobs struct{}

func (stubJobs) OpenJobs(context.Context) ([]dispatch.JobView, error) { return nil, nil }

func (stubJobs) Snapshot(context.Context) ([]dispatch.Event, error) { return nil, nil }

type stubWebhooks struct{}

func (stubWebhooks) HandleEvent(context.Context, *paymentwebhook.Event) (paymentwebhook.Outcome, error) {
	return paymentwebhook.OutcomeIgnored, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "bagflow", ExpirationMinutes: 30},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *stubBags, *config.Config) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	cfg := testConfig()
	svc := &stubBags{}
	router := NewRouter(Params{
		Config:          cfg,
		Idempotency:     redis.FromRaw(raw),
		Bags:            svc,
		Jobs:            stubJobs{},
		Hub:             dispatch.NewHub(dispatch.HubParams{}),
		PaymentWebhooks: stubWebhooks{},
	})
	return router, svc, cfg
}

func token(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role}
	if role == enums.ActorRoleStore {
		storeID := uuid.New()
		payload.StoreID = &storeID
	}
	signed, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now().UTC(), payload)
	require.NoError(t, err)
	return signed
}

func do(router http.Handler, method, path, bearer string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublicEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/live", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/ready", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/metrics", "", nil, nil).Code)

	webhook := do(router, http.MethodPost, "/api/v1/webhooks/payments", "", []byte(`{"type":"refund.created"}`), nil)
	assert.Equal(t, http.StatusOK, webhook.Code)
	assert.NotEmpty(t, webhook.Header().Get("X-Request-Id"))
}

func TestBagRoutesRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := do(router, http.MethodGet, "/api/v1/bags", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGuards(t *testing.T) {
	router, _, cfg := newTestRouter(t)
	bagPath := "/api/v1/bags/" + uuid.NewString()

	tests := []struct {
		name   string
		role   enums.ActorRole
		method string
		path   string
	}{
		{name: "client cannot accept jobs", role: enums.ActorRoleClient, method: http.MethodPost, path: bagPath + "/accept"},
		{name: "courier cannot review", role: enums.ActorRoleCourier, method: http.MethodPost, path: bagPath + "/review"},
		{name: "store cannot create bags", role: enums.ActorRoleStore, method: http.MethodPost, path: "/api/v1/bags"},
		{name: "client cannot stream jobs", role: enums.ActorRoleClient, method: http.MethodGet, path: "/api/v1/couriers/jobs"},
		{name: "courier cannot cancel", role: enums.ActorRoleCourier, method: http.MethodPost, path: bagPath + "/cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, tt.method, tt.path, token(t, cfg, tt.role), []byte(`{}`), nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestCourierJobs(t *testing.T) {
	router, _, cfg := newTestRouter(t)
	rec := do(router, http.MethodGet, "/api/v1/couriers/jobs", token(t, cfg, enums.ActorRoleCourier), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBagIsIdempotent(t *testing.T) {
	router, svc, cfg := newTestRouter(t)
	bearer := token(t, cfg, enums.ActorRoleClient)
	body := []byte(`{"address_id":"` + uuid.NewString() + `","payment_source_id":"cnon:card","items":[{"variation_id":"` + uuid.NewString() + `","quantity":1}]}`)

	missing := do(router, http.MethodPost, "/api/v1/bags", bearer, body, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	headers := map[string]string{"Idempotency-Key": "bag-1"}
	first := do(router, http.MethodPost, "/api/v1/bags", bearer, body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := do(router, http.MethodPost, "/api/v1/bags", bearer, body, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, svc.creates)
}
