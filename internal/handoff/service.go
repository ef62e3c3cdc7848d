package handoff

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

const (
	codeLength        = 6
	defaultTTL        = 72 * time.Hour
	defaultAttempts   = 5
	defaultWindow     = 15 * time.Minute
	rateLimitScopeFmt = "handoff:%s:%s"
)

var codeSpace = big.NewInt(1_000_000)

// ServiceParams wires the token issuer/verifier.
type ServiceParams struct {
	Repo           Repository
	Limiter        redis.RateLimiter
	Logger         *logger.Logger
	Metrics        *metrics.FulfillmentMetrics
	TTL            time.Duration
	VerifyAttempts int
	VerifyWindow   time.Duration
	Clock          func() time.Time
}

// Service issues and verifies the six digit codes that authenticate each
// physical handoff of a bag. Both operations run on the caller's transaction
// so a consumed code commits together with the bag transition it unlocked.
type Service struct {
	repo     Repository
	limiter  redis.RateLimiter
	logg     *logger.Logger
	metrics  *metrics.FulfillmentMetrics
	ttl      time.Duration
	attempts int64
	window   time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "handoff repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	attempts := params.VerifyAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	window := params.VerifyWindow
	if window <= 0 {
		window = defaultWindow
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     params.Repo,
		limiter:  params.Limiter,
		logg:     logg,
		metrics:  params.Metrics,
		ttl:      ttl,
		attempts: int64(attempts),
		window:   window,
		now:      now,
	}, nil
}

// Issue replaces any live code for (bagID, handoffType) with a fresh one.
func (s *Service) Issue(ctx context.Context, tx *gorm.DB, bagID uuid.UUID, handoffType enums.HandoffType) (string, error) {
	if !handoffType.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid handoff type")
	}
	code, err := generateCode()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate handoff code")
	}
	repo := s.repo.WithTx(tx)
	if err := repo.DeleteActive(ctx, bagID, handoffType); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear previous handoff code")
	}
	now := s.now()
	token := &models.HandoffToken{
		ID:          uuid.New(),
		BagID:       bagID,
		HandoffType: handoffType,
		Code:        code,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := repo.Create(ctx, token); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store handoff code")
	}
	s.logg.Debug(s.logg.WithField(ctx, "handoff_type", handoffType.String()), "handoff code issued")
	return code, nil
}

// Verify consumes the live code for the key when submitted matches it.
// A wrong code leaves the token untouched so the courier may try again.
func (s *Service) Verify(ctx context.Context, tx *gorm.DB, bagID uuid.UUID, handoffType enums.HandoffType, submitted string) error {
	outcome := "ok"
	defer func() { s.metrics.IncHandoff(handoffType.String(), outcome) }()

	if err := s.checkRate(ctx, bagID, handoffType); err != nil {
		outcome = "rate_limited"
		return err
	}

	repo := s.repo.WithTx(tx)
	token, err := repo.FindActive(ctx, bagID, handoffType)
	if err != nil {
		outcome = "error"
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load handoff code")
	}
	now := s.now()
	if token == nil || !now.Before(token.ExpiresAt) {
		outcome = "not_found"
		return pkgerrors.New(pkgerrors.CodeTokenNotFound, "no active handoff code").
			WithDetails(map[string]any{"handoff_type": handoffType})
	}

	candidate := strings.TrimSpace(submitted)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(token.Code)) != 1 {
		outcome = "mismatch"
		return pkgerrors.New(pkgerrors.CodeTokenMismatch, "handoff code does not match")
	}

	consumed, err := repo.Consume(ctx, token.ID, now)
	if err != nil {
		outcome = "error"
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume handoff code")
	}
	if !consumed {
		outcome = "not_found"
		return pkgerrors.New(pkgerrors.CodeTokenNotFound, "handoff code already used")
	}
	return nil
}

// ActiveCodes returns the live codes of a bag keyed by handoff type.
func (s *Service) ActiveCodes(ctx context.Context, bagID uuid.UUID) (map[enums.HandoffType]string, error) {
	tokens, err := s.repo.ListActive(ctx, bagID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[enums.HandoffType]string, len(tokens))
	for _, token := range tokens {
		if now.Before(token.ExpiresAt) {
			out[token.HandoffType] = token.Code
		}
	}
	return out, nil
}

func (s *Service) checkRate(ctx context.Context, bagID uuid.UUID, handoffType enums.HandoffType) error {
	if s.limiter == nil {
		return nil
	}
	scope := fmt.Sprintf(rateLimitScopeFmt, bagID, handoffType)
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, scope, s.attempts, s.window)
	if err != nil {
		// fail open
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "handoff rate limiter unavailable")
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many handoff code attempts")
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}
