package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
)

var (
	// ErrDeclined marks a definitive refusal: the payment was not made and
	// repeating the request will not change that.
	ErrDeclined = errors.New("payment declined")
	// ErrUnavailable marks an unknown outcome: the gateway could not be
	// reached or kept failing, so the payment may or may not exist.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

const (
	defaultTimeout       = 15 * time.Second
	defaultRetryBase     = 200 * time.Millisecond
	defaultBreakerFails  = 5
	defaultBreakerWindow = time.Minute
	defaultBreakerOpen   = 30 * time.Second
)

// ResilientParams configure the breaker/retry decorator.
type ResilientParams struct {
	Gateway Gateway
	Config  config.PaymentsConfig
	Logger  *logger.Logger
	Metrics *metrics.FulfillmentMetrics
}

// Resilient decorates a Gateway with per-call timeouts, bounded exponential
// retries for transient failures and a circuit breaker shared by all
// operations.
type Resilient struct {
	next     Gateway
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	attempts uint64
	base     time.Duration
	logg     *logger.Logger
	metrics  *metrics.FulfillmentMetrics
}

func NewResilient(params ResilientParams) (*Resilient, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	cfg := params.Config
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = defaultRetryBase
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFails
	}
	openFor := cfg.BreakerOpenTimeout
	if openFor <= 0 {
		openFor = defaultBreakerOpen
	}

	r := &Resilient{
		next:     params.Gateway,
		timeout:  timeout,
		attempts: uint64(attempts),
		base:     base,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    defaultBreakerWindow,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.logg == nil {
				return
			}
			ctx := r.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			r.logg.Warn(ctx, "payment gateway breaker state changed")
		},
		// declines are healthy answers from the gateway
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
	})
	return r, nil
}

func (r *Resilient) Authorize(ctx context.Context, req AuthorizeRequest) (Result, error) {
	return r.call(ctx, "authorize", func(ctx context.Context) (Result, error) {
		return r.next.Authorize(ctx, req)
	})
}

func (r *Resilient) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	return r.call(ctx, "charge", func(ctx context.Context) (Result, error) {
		return r.next.Charge(ctx, req)
	})
}

func (r *Resilient) Void(ctx context.Context, reference, idempotencyKey string) (Result, error) {
	return r.call(ctx, "void", func(ctx context.Context) (Result, error) {
		return r.next.Void(ctx, reference, idempotencyKey)
	})
}

func (r *Resilient) PaymentStatus(ctx context.Context, reference string) (Result, error) {
	return r.call(ctx, "status", func(ctx context.Context) (Result, error) {
		return r.next.PaymentStatus(ctx, reference)
	})
}

func (r *Resilient) call(ctx context.Context, op string, fn func(context.Context) (Result, error)) (Result, error) {
	var out Result
	start := time.Now()

	backoff := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		res, err := r.breaker.Execute(func() (interface{}, error) {
			return fn(callCtx)
		})
		if err != nil {
			if transient(err) && !breakerRejected(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = res.(Result)
		return nil
	})
	r.metrics.ObserveGatewayCall(op, time.Since(start), err)
	if err != nil {
		return Result{}, classify(op, err)
	}
	return out, nil
}

// IsDecline reports whether err is a definitive refusal rather than an
// unknown outcome.
func IsDecline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeclined) {
		return true
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	return !transient(err) && !breakerRejected(err)
}

func classify(op string, err error) error {
	msg := fmt.Sprintf("payment gateway %s failed", op)
	if IsDecline(err) {
		return pkgerrors.Wrap(pkgerrors.CodePaymentGateway, fmt.Errorf("%w: %w", ErrDeclined, err), msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentGateway, fmt.Errorf("%w: %w", ErrUnavailable, err), msg)
}

func transient(err error) bool {
	if err == nil {
		return false
	}
	if breakerRejected(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	switch typed.Code() {
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal, pkgerrors.CodeRateLimit:
		return true
	default:
		return false
	}
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
