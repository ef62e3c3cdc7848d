package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// insuranceRate is applied to the value of the pieces the client keeps.
var insuranceRate = decimal.RequireFromString("0.05")

// Totals is the money breakdown of a bag in cents.
type Totals struct {
	ItemsTotalCents   int64 `json:"items_total_cents"`
	KeptTotalCents    int64 `json:"kept_total_cents"`
	InsuranceCents    int64 `json:"insurance_cents"`
	ShippingFeeCents  int64 `json:"shipping_fee_cents"`
	CaptureTotalCents int64 `json:"capture_total_cents"`
}

// InsuranceCents rounds half away from zero to the cent.
func InsuranceCents(keptCents int64) int64 {
	return decimal.NewFromInt(keptCents).Mul(insuranceRate).Round(0).IntPart()
}

// ComputeTotals derives the capture amount from the price snapshots. Only
// shipped pieces count towards the items total; only KEPT pieces are charged.
func ComputeTotals(items []models.BagItem, shippingFeeCents int64) Totals {
	var t Totals
	for _, item := range items {
		switch item.Status {
		case enums.BagItemStatusIncluded, enums.BagItemStatusReturned:
			t.ItemsTotalCents += item.LineTotalCents()
		case enums.BagItemStatusKept:
			t.ItemsTotalCents += item.LineTotalCents()
			t.KeptTotalCents += item.LineTotalCents()
		}
	}
	t.InsuranceCents = InsuranceCents(t.KeptTotalCents)
	t.ShippingFeeCents = shippingFeeCents
	t.CaptureTotalCents = t.KeptTotalCents + t.ShippingFeeCents + t.InsuranceCents
	return t
}
