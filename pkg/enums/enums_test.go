package enums

import "testing"

func TestBagStatusTerminal(t *testing.T) {
	for _, status := range validBagStatuses {
		want := status == BagStatusFinalized || status == BagStatusRejected || status == BagStatusCancelled
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestGatewayStatusMapping(t *testing.T) {
	cases := map[GatewayStatus]PaymentStatus{
		GatewayStatusApproved:  PaymentStatusApproved,
		GatewayStatusRejected:  PaymentStatusFailed,
		GatewayStatusCancelled: PaymentStatusFailed,
		GatewayStatusPending:   PaymentStatusProcessing,
		GatewayStatusInProcess: PaymentStatusProcessing,
	}
	for in, want := range cases {
		if got := in.PaymentStatus(); got != want {
			t.Fatalf("%s: expected %s got %s", in, want, got)
		}
	}
}

func TestPaymentStatusRankIsMonotonic(t *testing.T) {
	if !(PaymentStatusPending.Rank() < PaymentStatusProcessing.Rank()) {
		t.Fatal("pending must rank below processing")
	}
	if PaymentStatusApproved.Rank() != PaymentStatusFailed.Rank() {
		t.Fatal("terminal statuses share a rank")
	}
	if PaymentStatus("bogus").Rank() >= 0 {
		t.Fatal("unknown status must rank below everything")
	}
}

func TestParseHandoffType(t *testing.T) {
	got, err := ParseHandoffType("RETURN_TO_STORE")
	if err != nil || got != HandoffReturnToStore {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseHandoffType("return_to_store"); err == nil {
		t.Fatal("parsing is case sensitive")
	}
}

func TestParseStoreDecision(t *testing.T) {
	if d, err := ParseStoreDecision("REJECT"); err != nil || d != StoreDecisionReject {
		t.Fatalf("unexpected parse result %q err=%v", d, err)
	}
	if _, err := ParseStoreDecision("MAYBE"); err == nil {
		t.Fatal("expected invalid decision error")
	}
}
