package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/bagflow-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/bagflow-backend/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/square"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event *paymentwebhook.Event) (paymentwebhook.Outcome, error)
}

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, header string) bool
}

// Payments reconciles gateway payment notifications. Unknown payments answer
// 404 so the gateway keeps retrying until the bag's write is visible.
func Payments(svc PaymentWebhookService, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if verifier != nil && !verifier.VerifyWebhookSignature(payload, r.Header.Get(square.SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event paymentwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
