package payments

import (
	"context"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// Gateway is the narrow surface the ledger needs from a card processor.
// Every mutating call carries the ledger entry id as idempotency key so a
// retried request resolves to the same gateway payment.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Result, error)
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
	Void(ctx context.Context, reference, idempotencyKey string) (Result, error)
	PaymentStatus(ctx context.Context, reference string) (Result, error)
}

// AuthorizeRequest places a caution hold on the client's payment source.
type AuthorizeRequest struct {
	IdempotencyKey string
	SourceID       string
	AmountCents    int64
	Currency       string
	ReferenceID    string
	Note           string
}

// ChargeRequest books an immediately captured payment.
type ChargeRequest struct {
	IdempotencyKey string
	SourceID       string
	AmountCents    int64
	Currency       string
	ReferenceID    string
	Note           string
}

// Result is the gateway's answer normalized to the internal vocabulary.
type Result struct {
	Reference string
	Status    enums.GatewayStatus
}
