package paymentwebhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bagflow-backend/internal/ledger"
	"github.com/angelmondragon/bagflow-backend/internal/payments"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

type env struct {
	client  *db.Client
	gateway *payments.FakeGateway
	ledger  *ledger.Service
	guard   *idempotency.Manager
	bag     models.Bag
}

func newEnv(t *testing.T) *env {
	t.Helper()
	client := dbtest.Open(t)
	fx := dbtest.Seed(t, client, 8990)
	e := &env{
		client:  client,
		gateway: payments.NewFakeGateway(),
		bag:     dbtest.InsertBag(t, client, fx, enums.BagStatusRequested),
	}
	var err error
	e.ledger, err = ledger.NewService(ledger.ServiceParams{
		Repo:               ledger.NewRepository(client.DB()),
		DB:                 client,
		Gateway:            e.gateway,
		Outbox:             outbox.NewService(outbox.NewRepository(client.DB()), nil),
		CautionAmountCents: 20000,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	e.guard, err = idempotency.NewManager(redis.FromRaw(raw), time.Hour)
	require.NoError(t, err)
	return e
}

func (e *env) service(t *testing.T, withGuard bool) *Service {
	t.Helper()
	params := ServiceParams{Ledger: e.ledger, Gateway: e.gateway}
	if withGuard {
		params.Guard = e.guard
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func (e *env) pendingAuth(t *testing.T, reference string) models.LedgerEntry {
	t.Helper()
	entry := models.LedgerEntry{
		ID:               uuid.New(),
		BagID:            e.bag.ID,
		ClientID:         e.bag.ClientID,
		Kind:             enums.LedgerKindAuthorization,
		AmountCents:      20000,
		Currency:         "USD",
		PaymentStatus:    enums.PaymentStatusPending,
		GatewayReference: &reference,
	}
	entry.IdempotencyKey = entry.ID.String()
	require.NoError(t, e.client.DB().Create(&entry).Error)
	return entry
}

func (e *env) reload(t *testing.T, id uuid.UUID) models.LedgerEntry {
	t.Helper()
	var entry models.LedgerEntry
	require.NoError(t, e.client.DB().Where("id = ?", id).First(&entry).Error)
	return entry
}

func (e *env) entryCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.client.DB().Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

func updated(paymentID string) *Event {
	return &Event{Action: "payment.updated", Data: EventData{ID: paymentID}}
}

func TestApprovedAuthorizationIsAppliedOnce(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, true)
	ctx := context.Background()
	entry := e.pendingAuth(t, "pay_auth_1")
	e.gateway.SetStatus("pay_auth_1", enums.GatewayStatusApproved)

	outcome, err := svc.HandleEvent(ctx, updated("pay_auth_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, enums.PaymentStatusApproved, e.reload(t, entry.ID).PaymentStatus)

	var bag models.Bag
	require.NoError(t, e.client.DB().Where("id = ?", e.bag.ID).First(&bag).Error)
	assert.NotNil(t, bag.CautionAuthorizedAt)
	assert.Equal(t, enums.BagStatusRequested, bag.Status)

	outcome, err = svc.HandleEvent(ctx, updated("pay_auth_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	unguarded := e.service(t, false)
	outcome, err = unguarded.HandleEvent(ctx, updated("pay_auth_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, int64(1), e.entryCount(t))
}

func TestSquareShapedEventIsReconciled(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, true)
	entry := e.pendingAuth(t, "pay_sq_1")
	e.gateway.SetStatus("pay_sq_1", enums.GatewayStatusRejected)

	outcome, err := svc.HandleEvent(context.Background(), &Event{
		EventID: uuid.NewString(),
		Type:    "payment.updated",
		Data: EventData{
			Type:   "payment",
			ID:     "pay_sq_1",
			Object: EventObject{Payment: &EventPayment{ID: "pay_sq_1", Status: "APPROVED"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	got := e.reload(t, entry.ID)
	assert.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus, "gateway status wins over the body")
	require.NotNil(t, got.FailureReason)
}

func TestStatusNeverMovesBackwards(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, false)
	ctx := context.Background()
	entry := e.pendingAuth(t, "pay_auth_2")

	steps := []struct {
		status  enums.GatewayStatus
		outcome Outcome
		want    enums.PaymentStatus
	}{
		{enums.GatewayStatusInProcess, OutcomeApplied, enums.PaymentStatusProcessing},
		{enums.GatewayStatusPending, OutcomeUnchanged, enums.PaymentStatusProcessing},
		{enums.GatewayStatusApproved, OutcomeApplied, enums.PaymentStatusApproved},
		{enums.GatewayStatusRejected, OutcomeUnchanged, enums.PaymentStatusApproved},
	}
	for _, step := range steps {
		e.gateway.SetStatus("pay_auth_2", step.status)
		outcome, err := svc.HandleEvent(ctx, updated("pay_auth_2"))
		require.NoError(t, err, step.status)
		assert.Equal(t, step.outcome, outcome, step.status)
		assert.Equal(t, step.want, e.reload(t, entry.ID).PaymentStatus, step.status)
	}
}

func TestUnknownPaymentIsNotFoundWithoutSideEffects(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, true)
	ctx := context.Background()
	entry := e.pendingAuth(t, "pay_known")

	outcome, err := svc.HandleEvent(ctx, updated("pay_nobody_knows"))
	assert.Equal(t, OutcomeNotFound, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	// known to the gateway, not yet to the ledger
	e.gateway.SetStatus("pay_racing", enums.GatewayStatusRejected)
	outcome, err = svc.HandleEvent(ctx, updated("pay_racing"))
	assert.Equal(t, OutcomeNotFound, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	assert.Equal(t, int64(1), e.entryCount(t))
	assert.Equal(t, enums.PaymentStatusPending, e.reload(t, entry.ID).PaymentStatus)
	assert.Zero(t, e.gateway.Calls("status"))

	// the first hold was declined and the retry is the one the gateway reports
	require.NoError(t, e.client.DB().Model(&models.LedgerEntry{}).
		Where("id = ?", entry.ID).
		Update("payment_status", enums.PaymentStatusFailed).Error)
	retry := e.pendingAuth(t, "pay_racing")
	outcome, err = svc.HandleEvent(ctx, updated("pay_racing"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, enums.PaymentStatusFailed, e.reload(t, retry.ID).PaymentStatus)
}

func TestUnknownPaymentIsNotFoundWhileGatewayIsDown(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, false)
	e.gateway.FailNext(payments.ErrUnavailable)

	outcome, err := svc.HandleEvent(context.Background(), updated("pay_never_recorded"))
	assert.Equal(t, OutcomeNotFound, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Zero(t, e.gateway.Calls("status"))

	entry := e.pendingAuth(t, "pay_known")
	outcome, err = svc.HandleEvent(context.Background(), updated("pay_known"))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	assert.Equal(t, enums.PaymentStatusPending, e.reload(t, entry.ID).PaymentStatus)
}

func TestIrrelevantEventsAreIgnored(t *testing.T) {
	e := newEnv(t)
	svc := e.service(t, true)

	outcome, err := svc.HandleEvent(context.Background(), &Event{Type: "refund.created", Data: EventData{ID: "pay_x"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, e.gateway.Calls("status"))

	_, err = svc.HandleEvent(context.Background(), &Event{Action: "payment.created"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
