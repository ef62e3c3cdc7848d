package bags

import (
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// edges is the complete bag state machine.
var edges = map[enums.BagStatus][]enums.BagStatus{
	enums.BagStatusRequested: {
		enums.BagStatusUnderReview,
		enums.BagStatusPreparing,
		enums.BagStatusRejected,
		enums.BagStatusCancelled,
	},
	enums.BagStatusUnderReview: {
		enums.BagStatusPreparing,
		enums.BagStatusRejected,
		enums.BagStatusCancelled,
	},
	enums.BagStatusPreparing: {
		enums.BagStatusAwaitingCourier,
		enums.BagStatusCancelled,
	},
	enums.BagStatusAwaitingCourier: {
		enums.BagStatusCourierEnRouteToStore,
		enums.BagStatusCancelled,
	},
	enums.BagStatusCourierEnRouteToStore: {
		enums.BagStatusInTransitToClient,
	},
	enums.BagStatusInTransitToClient: {
		enums.BagStatusDelivered,
	},
	enums.BagStatusDelivered: {
		enums.BagStatusAwaitingReturnCourier,
	},
	enums.BagStatusAwaitingReturnCourier: {
		enums.BagStatusCourierEnRouteToPickup,
	},
	enums.BagStatusCourierEnRouteToPickup: {
		enums.BagStatusInTransitReturn,
	},
	enums.BagStatusInTransitReturn: {
		enums.BagStatusFinalized,
	},
}

// cancellable lists the states a bag may be cancelled from, provided no
// courier holds it yet.
var cancellable = map[enums.BagStatus]bool{
	enums.BagStatusRequested:       true,
	enums.BagStatusUnderReview:     true,
	enums.BagStatusPreparing:       true,
	enums.BagStatusAwaitingCourier: true,
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to enums.BagStatus) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func requireStatus(current enums.BagStatus, allowed ...enums.BagStatus) error {
	for _, status := range allowed {
		if current == status {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "operation not allowed while bag is "+current.String()).
		WithDetails(map[string]any{"status": current})
}
