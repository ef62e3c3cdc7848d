package bags

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/api/middleware"
	"github.com/angelmondragon/bagflow-backend/api/responses"
	"github.com/angelmondragon/bagflow-backend/api/validators"
	internalbags "github.com/angelmondragon/bagflow-backend/internal/bags"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/pagination"
)

const (
	bagIDParam      = "bagId"
	maxReasonLength = 500
)

// Service is the lifecycle surface the bag routes drive.
type Service interface {
	Create(ctx context.Context, actor internalbags.Actor, input internalbags.CreateBagInput) (*internalbags.BagDetail, error)
	Get(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	List(ctx context.Context, actor internalbags.Actor, filter internalbags.ListFilter) (*internalbags.BagList, error)
	RetryAuthorization(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	StartReview(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	StoreDecision(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, input internalbags.StoreDecisionInput) (*internalbags.BagDetail, error)
	AddExtraItems(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, extras []internalbags.ItemInput) (*internalbags.BagDetail, error)
	MarkReady(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	AcceptJob(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	ConfirmPickup(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, code string) (*internalbags.BagDetail, error)
	ConfirmDelivery(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, code string) (*internalbags.BagDetail, error)
	ConfirmReturnPickup(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, code string) (*internalbags.BagDetail, error)
	ConfirmReturnDelivery(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, code string) (*internalbags.BagDetail, error)
	RecordKeepReturn(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, input internalbags.KeepReturnInput) (*internalbags.BagDetail, error)
	ConfirmStoreReceivedReturn(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)
	Cancel(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, input internalbags.CancelInput) (*internalbags.BagDetail, error)
}

type handoffRequest struct {
	Token string `json:"token" validate:"required,len=6,numeric"`
}

type extrasRequest struct {
	Items []internalbags.ItemInput `json:"items" validate:"required,min=1,max=30,dive"`
}

// Create opens a bag for the authenticated client and authorizes the deposit.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		var payload internalbags.CreateBagInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.PaymentSourceID = strings.TrimSpace(payload.PaymentSourceID)

		detail, err := svc.Create(r.Context(), actor, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// List returns the caller's bags, newest first.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, hasStatus, err := validators.ParseQueryEnum(r, "status", enums.ParseBagStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := internalbags.ListFilter{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if hasStatus {
			filter.Status = &status
		}

		list, err := svc.List(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.Get)
}

// Authorize retries the deposit hold of a bag whose authorization failed.
func Authorize(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.RetryAuthorization)
}

func Review(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.StartReview)
}

// StoreAction records the store's accept/reject decision.
func StoreAction(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(svc, logg, func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *internalbags.StoreDecisionInput) (*internalbags.BagDetail, error) {
		payload.Reason = validators.SanitizeString(payload.Reason, maxReasonLength)
		return svc.StoreDecision(ctx, actor, bagID, *payload)
	})
}

// Extras appends items to an open bag under review.
func Extras(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(svc, logg, func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *extrasRequest) (*internalbags.BagDetail, error) {
		return svc.AddExtraItems(ctx, actor, bagID, payload.Items)
	})
}

// RequestCourier marks the bag ready and opens the delivery job.
func RequestCourier(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.MarkReady)
}

func Accept(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.AcceptJob)
}

func ConfirmPickup(svc Service, logg *logger.Logger) http.HandlerFunc {
	return handoffAction(svc, logg, Service.ConfirmPickup)
}

func ConfirmDelivery(svc Service, logg *logger.Logger) http.HandlerFunc {
	return handoffAction(svc, logg, Service.ConfirmDelivery)
}

func ConfirmReturnPickup(svc Service, logg *logger.Logger) http.HandlerFunc {
	return handoffAction(svc, logg, Service.ConfirmReturnPickup)
}

func ConfirmReturnDelivery(svc Service, logg *logger.Logger) http.HandlerFunc {
	return handoffAction(svc, logg, Service.ConfirmReturnDelivery)
}

// ConfirmPurchase records the client's keep/return decision per item.
func ConfirmPurchase(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(svc, logg, func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *internalbags.KeepReturnInput) (*internalbags.BagDetail, error) {
		return svc.RecordKeepReturn(ctx, actor, bagID, *payload)
	})
}

// ConfirmReturn is the store acknowledging the returned items.
func ConfirmReturn(svc Service, logg *logger.Logger) http.HandlerFunc {
	return bagAction(svc, logg, Service.ConfirmStoreReceivedReturn)
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(svc, logg, func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *internalbags.CancelInput) (*internalbags.BagDetail, error) {
		payload.Reason = validators.SanitizeString(payload.Reason, maxReasonLength)
		return svc.Cancel(ctx, actor, bagID, *payload)
	})
}

type bagFunc func(svc Service, ctx context.Context, actor internalbags.Actor, bagID uuid.UUID) (*internalbags.BagDetail, error)

type codeFunc func(svc Service, ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, code string) (*internalbags.BagDetail, error)

func bagAction(svc Service, logg *logger.Logger, fn bagFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		bagID, err := validators.ParsePathUUID(r, bagIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := withBagID(r.Context(), logg, bagID)
		detail, err := fn(svc, ctx, actor, bagID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func handoffAction(svc Service, logg *logger.Logger, fn codeFunc) http.HandlerFunc {
	return withBody(svc, logg, func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *handoffRequest) (*internalbags.BagDetail, error) {
		return fn(svc, ctx, actor, bagID, payload.Token)
	})
}

func withBody[T any](svc Service, logg *logger.Logger, fn func(ctx context.Context, actor internalbags.Actor, bagID uuid.UUID, payload *T) (*internalbags.BagDetail, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		bagID, err := validators.ParsePathUUID(r, bagIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload T
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := withBagID(r.Context(), logg, bagID)
		detail, err := fn(ctx, actor, bagID, &payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func actorOrError(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (internalbags.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bag service unavailable"))
		return internalbags.Actor{}, false
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return internalbags.Actor{}, false
	}
	return internalbags.Actor{
		UserID:  principal.UserID,
		Role:    principal.Role,
		StoreID: principal.StoreID,
	}, true
}

func withBagID(ctx context.Context, logg *logger.Logger, bagID uuid.UUID) context.Context {
	if logg == nil {
		return ctx
	}
	return logg.WithBagID(ctx, bagID.String())
}
