package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams encapsulates the inputs for a Square payment.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	Autocomplete   bool
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(p.LocationID),
		CustomerID:     ptrString(p.CustomerID),
		SourceID:       p.SourceID,
		Autocomplete:   boolPtr(p.Autocomplete),
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, p.Currency)
	}
	if !p.Autocomplete {
		// holds that are never completed must release on their own
		req.DelayAction = ptrString("CANCEL")
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
