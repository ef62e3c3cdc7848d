package payments

import (
	"context"
	"testing"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/square"
)

type stubSquare struct {
	created  []square.PaymentCreateParams
	status   string
	canceled string
	err      error
}

func (s *stubSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, params)
	return payment("sq_pay_1", s.status), nil
}

func (s *stubSquare) GetPayment(_ context.Context, id string) (*sq.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return payment(id, s.status), nil
}

func (s *stubSquare) CancelPayment(_ context.Context, id string) (*sq.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.canceled = id
	return payment(id, "CANCELED"), nil
}

func payment(id, status string) *sq.Payment {
	return &sq.Payment{ID: &id, Status: &status}
}

func TestSquareGatewayAuthorizePlacesHold(t *testing.T) {
	stub := &stubSquare{status: "APPROVED"}
	gw, err := NewSquareGateway(stub)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	res, err := gw.Authorize(context.Background(), AuthorizeRequest{
		IdempotencyKey: "entry-1",
		SourceID:       "cnon:card",
		AmountCents:    10000,
		Currency:       "USD",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Reference != "sq_pay_1" || res.Status != enums.GatewayStatusApproved {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(stub.created) != 1 || stub.created[0].Autocomplete {
		t.Fatalf("authorization must not autocomplete: %+v", stub.created)
	}
	if stub.created[0].IdempotencyKey != "entry-1" {
		t.Fatalf("idempotency key not forwarded: %q", stub.created[0].IdempotencyKey)
	}
}

func TestSquareGatewayChargeAutocompletes(t *testing.T) {
	stub := &stubSquare{status: "COMPLETED"}
	gw, _ := NewSquareGateway(stub)

	res, err := gw.Charge(context.Background(), ChargeRequest{IdempotencyKey: "entry-2", AmountCents: 10940})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !stub.created[0].Autocomplete {
		t.Fatal("capture must autocomplete")
	}
	if res.Status != enums.GatewayStatusApproved {
		t.Fatalf("completed payment should be approved, got %s", res.Status)
	}
}

func TestSquareGatewayVoid(t *testing.T) {
	stub := &stubSquare{}
	gw, _ := NewSquareGateway(stub)

	res, err := gw.Void(context.Background(), "sq_hold", "refund-1")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if stub.canceled != "sq_hold" || res.Status != enums.GatewayStatusCancelled {
		t.Fatalf("unexpected void result %+v canceled=%q", res, stub.canceled)
	}
	if _, err := gw.Void(context.Background(), " ", "k"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSquareGatewayPropagatesErrors(t *testing.T) {
	stub := &stubSquare{err: pkgerrors.New(pkgerrors.CodePaymentGateway, "card declined")}
	gw, _ := NewSquareGateway(stub)

	if _, err := gw.PaymentStatus(context.Background(), "sq_pay"); !IsDecline(err) {
		t.Fatalf("expected decline, got %v", err)
	}
}

func TestNormalizeSquareStatus(t *testing.T) {
	cases := map[string]enums.GatewayStatus{
		"APPROVED":  enums.GatewayStatusApproved,
		"COMPLETED": enums.GatewayStatusApproved,
		"pending":   enums.GatewayStatusPending,
		"CANCELED":  enums.GatewayStatusCancelled,
		"FAILED":    enums.GatewayStatusRejected,
		"":          enums.GatewayStatusInProcess,
	}
	for in, want := range cases {
		if got := NormalizeSquareStatus(in); got != want {
			t.Fatalf("%q: expected %s got %s", in, want, got)
		}
	}
}

func TestFakeGatewayIsIdempotentByKey(t *testing.T) {
	fake := NewFakeGateway()
	ctx := context.Background()

	first, err := fake.Authorize(ctx, AuthorizeRequest{IdempotencyKey: "same", AmountCents: 100})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	second, err := fake.Authorize(ctx, AuthorizeRequest{IdempotencyKey: "same", AmountCents: 100})
	if err != nil {
		t.Fatalf("authorize again: %v", err)
	}
	if first.Reference != second.Reference {
		t.Fatalf("expected same reference, got %s and %s", first.Reference, second.Reference)
	}

	if _, err := fake.Void(ctx, first.Reference, "v"); err != nil {
		t.Fatalf("void: %v", err)
	}
	p, _ := fake.Payment(first.Reference)
	if p.Status != enums.GatewayStatusCancelled {
		t.Fatalf("expected cancelled hold, got %s", p.Status)
	}
}
