package bags

import (
	"testing"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.BagStatus
		want     bool
	}{
		{enums.BagStatusRequested, enums.BagStatusUnderReview, true},
		{enums.BagStatusRequested, enums.BagStatusPreparing, true},
		{enums.BagStatusUnderReview, enums.BagStatusRejected, true},
		{enums.BagStatusAwaitingCourier, enums.BagStatusCourierEnRouteToStore, true},
		{enums.BagStatusDelivered, enums.BagStatusAwaitingReturnCourier, true},
		{enums.BagStatusInTransitReturn, enums.BagStatusFinalized, true},
		{enums.BagStatusRequested, enums.BagStatusDelivered, false},
		{enums.BagStatusPreparing, enums.BagStatusInTransitToClient, false},
		{enums.BagStatusCourierEnRouteToStore, enums.BagStatusCancelled, false},
		{enums.BagStatusDelivered, enums.BagStatusFinalized, false},
		{enums.BagStatusFinalized, enums.BagStatusRequested, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, status := range []enums.BagStatus{
		enums.BagStatusFinalized,
		enums.BagStatusRejected,
		enums.BagStatusCancelled,
	} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
		if len(edges[status]) != 0 {
			t.Fatalf("%s has outgoing edges", status)
		}
	}
}

func TestCancellableStatesReachCancelled(t *testing.T) {
	for status := range cancellable {
		if !CanTransition(status, enums.BagStatusCancelled) {
			t.Fatalf("%s is cancellable but has no edge to CANCELLED", status)
		}
	}
}
