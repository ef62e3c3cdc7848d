package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client exposes the Square Payments primitives with centralized auth,
// logging, idempotency, and error mapping.
type Client struct {
	sdk             *sqclient.Client
	environment     string
	locationID      string
	signatureKey    string
	notificationURL string
	logger          *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:             sdk,
		environment:     env,
		locationID:      locationID,
		signatureKey:    strings.TrimSpace(cfg.WebhookSignatureKey),
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		logger:          logg,
	}

	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return c, nil
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// LocationID is the seller location every payment is booked against.
func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "bf"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// CreatePayment books a card payment. With Autocomplete false Square only
// places a hold that must later be completed or cancelled.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(c.ensureIdempotencyKey("payment.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
		"autocomplete": params.Autocomplete,
		"source_id":    params.SourceID,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

// CancelPayment voids an uncompleted (held) payment.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	c.log(ctx, "request", "cancel_payment", map[string]any{"payment_id": paymentID})

	resp, err := c.sdk.Payments.Cancel(ctx, &sq.CancelPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		c.log(ctx, "error", "cancel_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "cancel payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "cancel_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "source", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.StatusCode)
		for _, sqErr := range c.extractSquareErrors(apiErr) {
			if sqErr == nil {
				continue
			}
			if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
				code = pkgerrors.CodeIdempotency
				break
			}
			if sqErr.Category == sq.ErrorCategoryAuthenticationError {
				code = pkgerrors.CodeUnauthorized
				break
			}
			if sqErr.Category == sq.ErrorCategoryPaymentMethodError {
				code = pkgerrors.CodePaymentGateway
				break
			}
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
}

func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusPaymentRequired:
		return pkgerrors.CodePaymentGateway
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
