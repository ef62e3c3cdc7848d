package payments

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/square"
)

// squarePayments is the part of pkg/square the adapter drives.
type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareGateway maps ledger operations onto Square payments: holds are
// delayed-capture payments, captures are autocompleted payments and voids
// cancel an uncompleted hold.
type SquareGateway struct {
	client squarePayments
}

func NewSquareGateway(client squarePayments) (*SquareGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	return &SquareGateway{client: client}, nil
}

func (g *SquareGateway) Authorize(ctx context.Context, req AuthorizeRequest) (Result, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.ReferenceID,
		Note:           req.Note,
		Autocomplete:   false,
	})
	if err != nil {
		return Result{}, err
	}
	return resultFromPayment(payment)
}

func (g *SquareGateway) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.ReferenceID,
		Note:           req.Note,
		Autocomplete:   true,
	})
	if err != nil {
		return Result{}, err
	}
	return resultFromPayment(payment)
}

// Void cancels a hold. Square cancels are naturally idempotent per payment
// id so the key is not forwarded.
func (g *SquareGateway) Void(ctx context.Context, reference, _ string) (Result, error) {
	if strings.TrimSpace(reference) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	payment, err := g.client.CancelPayment(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	return resultFromPayment(payment)
}

func (g *SquareGateway) PaymentStatus(ctx context.Context, reference string) (Result, error) {
	if strings.TrimSpace(reference) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	payment, err := g.client.GetPayment(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	return resultFromPayment(payment)
}

func resultFromPayment(payment *sq.Payment) (Result, error) {
	if payment == nil || payment.GetID() == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	status := ""
	if payment.GetStatus() != nil {
		status = *payment.GetStatus()
	}
	return Result{Reference: *payment.GetID(), Status: NormalizeSquareStatus(status)}, nil
}

// NormalizeSquareStatus translates Square payment statuses.
func NormalizeSquareStatus(status string) enums.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "APPROVED", "COMPLETED":
		return enums.GatewayStatusApproved
	case "CANCELED", "CANCELLED":
		return enums.GatewayStatusCancelled
	case "FAILED":
		return enums.GatewayStatusRejected
	case "PENDING":
		return enums.GatewayStatusPending
	default:
		return enums.GatewayStatusInProcess
	}
}
