package couriers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/bagflow-backend/api/middleware"
	"github.com/angelmondragon/bagflow-backend/api/responses"
	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

// JobSource lists the currently claimable jobs.
type JobSource interface {
	OpenJobs(ctx context.Context) ([]dispatch.JobView, error)
	Snapshot(ctx context.Context) ([]dispatch.Event, error)
}

// Streamer keeps a courier connection subscribed to job events.
type Streamer interface {
	Serve(ctx context.Context, conn dispatch.Conn, courierID uuid.UUID, snapshot []dispatch.Event) error
}

// NewUpgrader accepts websocket upgrades from the configured origins. An
// empty list admits any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// Jobs returns the open jobs for couriers polling instead of streaming.
func Jobs(jobs JobSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobs == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		if _, err := courierID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		open, err := jobs.OpenJobs(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"jobs": open})
	}
}

// Stream upgrades the request to a websocket, sends every open job, then
// pushes job events until the courier disconnects.
func Stream(jobs JobSource, hub Streamer, upgrader *websocket.Upgrader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobs == nil || hub == nil || upgrader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "courier stream unavailable"))
			return
		}
		courier, err := courierID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot, err := jobs.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader already wrote the handshake error
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "courier websocket upgrade failed")
			}
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCourierID(ctx, courier.String())
			logg.Info(ctx, "courier connected")
		}
		if err := hub.Serve(ctx, conn, courier, snapshot); err != nil && logg != nil {
			logg.Debug(logg.WithField(ctx, "error", err.Error()), "courier stream closed")
		}
	}
}

func courierID(r *http.Request) (uuid.UUID, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	if principal.Role != enums.ActorRoleCourier {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "couriers only")
	}
	return principal.UserID, nil
}
