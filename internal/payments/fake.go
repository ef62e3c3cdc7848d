package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// FakePayment is the in-memory record kept by FakeGateway.
type FakePayment struct {
	Reference   string
	AmountCents int64
	Captured    bool
	Status      enums.GatewayStatus
}

// FakeGateway approves everything unless told otherwise. It backs local runs
// with BAGFLOW_PAYMENTS_PROVIDER=fake and the service tests.
type FakeGateway struct {
	mu       sync.Mutex
	byKey    map[string]string
	payments map[string]*FakePayment
	failNext []error
	decline  bool
	calls    map[string]int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		byKey:    map[string]string{},
		payments: map[string]*FakePayment{},
		calls:    map[string]int{},
	}
}

// FailNext queues errors returned by the next calls, in order.
func (f *FakeGateway) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, errs...)
}

// DeclineAll makes every new payment come back rejected.
func (f *FakeGateway) DeclineAll(decline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decline = decline
}

// SetStatus overrides the status PaymentStatus reports for reference.
func (f *FakeGateway) SetStatus(reference string, status enums.GatewayStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[reference]; ok {
		p.Status = status
		return
	}
	f.payments[reference] = &FakePayment{Reference: reference, Status: status}
}

// Payment returns a copy of the stored payment.
func (f *FakeGateway) Payment(reference string) (FakePayment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[reference]
	if !ok {
		return FakePayment{}, false
	}
	return *p, true
}

// Calls reports how many times op ran, including failed attempts.
func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeGateway) Authorize(_ context.Context, req AuthorizeRequest) (Result, error) {
	return f.create("authorize", req.IdempotencyKey, req.AmountCents, false)
}

func (f *FakeGateway) Charge(_ context.Context, req ChargeRequest) (Result, error) {
	return f.create("charge", req.IdempotencyKey, req.AmountCents, true)
}

func (f *FakeGateway) Void(_ context.Context, reference, _ string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["void"]++
	if err := f.popFailure(); err != nil {
		return Result{}, err
	}
	p, ok := f.payments[reference]
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if p.Captured {
		return Result{}, pkgerrors.New(pkgerrors.CodePaymentGateway, "captured payments cannot be voided")
	}
	p.Status = enums.GatewayStatusCancelled
	return Result{Reference: reference, Status: p.Status}, nil
}

func (f *FakeGateway) PaymentStatus(_ context.Context, reference string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["status"]++
	if err := f.popFailure(); err != nil {
		return Result{}, err
	}
	p, ok := f.payments[reference]
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return Result{Reference: reference, Status: p.Status}, nil
}

func (f *FakeGateway) create(op, key string, amount int64, capture bool) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err := f.popFailure(); err != nil {
		return Result{}, err
	}
	if ref, ok := f.byKey[key]; ok && key != "" {
		p := f.payments[ref]
		return Result{Reference: ref, Status: p.Status}, nil
	}
	if f.decline {
		return Result{}, pkgerrors.New(pkgerrors.CodePaymentGateway, "card declined")
	}
	ref := fmt.Sprintf("fake_%s", uuid.NewString())
	f.payments[ref] = &FakePayment{
		Reference:   ref,
		AmountCents: amount,
		Captured:    capture,
		Status:      enums.GatewayStatusApproved,
	}
	if key != "" {
		f.byKey[key] = ref
	}
	return Result{Reference: ref, Status: enums.GatewayStatusApproved}, nil
}

func (f *FakeGateway) popFailure() error {
	if len(f.failNext) == 0 {
		return nil
	}
	err := f.failNext[0]
	f.failNext = f.failNext[1:]
	return err
}
