package virology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/clock"
	"github.com/imrishuroy/virology-token-service/internal/logger"
	"github.com/imrishuroy/virology-token-service/internal/metrics"
	"github.com/imrishuroy/virology-token-service/internal/orders"
	"github.com/imrishuroy/virology-token-service/internal/tokens"
)

const (
	// DefaultMaxTokenAttempts bounds token allocation retries on collision.
	DefaultMaxTokenAttempts = 3
	// DefaultOrderTTL is how long a test order stays retrievable.
	DefaultOrderTTL = 4 * 7 * 24 * time.Hour
)

// Config groups the service settings.
type Config struct {
	Websites         WebsiteConfig
	MaxTokenAttempts int
	OrderTTL         time.Duration
}

// Service implements ordering, result lookup, result posting and CTA exchange.
type Service struct {
	store       Store
	tokens      TokenGenerator
	clock       clock.Clock
	websites    WebsiteConfig
	maxAttempts int
	orderTTL    time.Duration
	metrics     metrics.Recorder
	log         *zap.Logger
}

// NewService wires a Service. Zero config values fall back to the defaults.
func NewService(store Store, gen TokenGenerator, c clock.Clock, cfg Config, rec metrics.Recorder, log *zap.Logger) *Service {
	if cfg.MaxTokenAttempts <= 0 {
		cfg.MaxTokenAttempts = DefaultMaxTokenAttempts
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = DefaultOrderTTL
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		tokens:      gen,
		clock:       c,
		websites:    cfg.Websites,
		maxAttempts: cfg.MaxTokenAttempts,
		orderTTL:    cfg.OrderTTL,
		metrics:     rec,
		log:         log,
	}
}

// CreateOrder allocates a fresh token triple and persists a pending order. A collision on
// any token regenerates all three; after maxAttempts collisions it gives up with
// ErrTokenSpaceExhausted.
func (s *Service) CreateOrder(ctx context.Context, kind orders.Kind) (TestOrderTokens, error) {
	log := logger.FromContext(ctx, s.log).With(zap.String("kind", string(kind)))

	website, err := s.websites.URLFor(kind)
	if err != nil {
		return TestOrderTokens{}, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.clock.Now()
		order := orders.TestOrder{
			CtaToken:                    s.tokens.NewCtaToken(),
			TestResultPollingToken:      s.tokens.NewPollingToken(),
			DiagnosisKeySubmissionToken: s.tokens.NewSubmissionToken(),
			Kind:                        kind,
			Status:                      orders.StatusPending,
			CreatedAt:                   now.UTC(),
			ExpireAt:                    now.Add(s.orderTTL).Unix(),
		}

		err := s.store.Create(ctx, order)
		if err == nil {
			s.metrics.Count(ctx, metrics.OrderCreated, map[string]string{"kind": string(kind)})
			log.Info("virology order created",
				zap.String("ctaToken", order.CtaToken),
				zap.String("testResultPollingToken", order.TestResultPollingToken),
				zap.Int("attempt", attempt),
			)
			return TestOrderTokens{
				Kind:                   kind,
				CtaToken:               order.CtaToken,
				TestResultPollingToken: order.TestResultPollingToken,
				WebsiteURL:             website,
			}, nil
		}
		if !errors.Is(err, orders.ErrAlreadyExists) {
			return TestOrderTokens{}, fmt.Errorf("persist test order: %w", err)
		}

		s.metrics.Count(ctx, metrics.TokenCollision, nil)
		log.Warn("token collision, regenerating", zap.Int("attempt", attempt))
	}

	s.metrics.Count(ctx, metrics.TokenSpaceExhausted, nil)
	log.Error("token space exhausted",
		zap.Int("attempts", s.maxAttempts),
		zap.Bool("alert", true),
	)
	return TestOrderTokens{}, ErrTokenSpaceExhausted
}

// Lookup reports whether the result for a polling token is available. It never changes
// the order, and malformed tokens are indistinguishable from unknown ones.
func (s *Service) Lookup(ctx context.Context, pollingToken string) (LookupOutcome, error) {
	outcome, err := s.lookup(ctx, pollingToken)
	if err == nil {
		s.metrics.Count(ctx, metrics.LookupOutcome, map[string]string{"outcome": outcome.Status.String()})
	}
	return outcome, err
}

func (s *Service) lookup(ctx context.Context, pollingToken string) (LookupOutcome, error) {
	if !tokens.ValidPollingToken(pollingToken) {
		return LookupOutcome{Status: LookupNotFound}, nil
	}

	order, err := s.store.GetByPollingToken(ctx, pollingToken)
	if err != nil {
		return LookupOutcome{}, fmt.Errorf("lookup test order: %w", err)
	}
	if order == nil {
		return LookupOutcome{Status: LookupNotFound}, nil
	}

	switch order.Status {
	case orders.StatusAvailable, orders.StatusConsumed:
		if order.TestResult == "" || order.TestEndDate == nil {
			return LookupOutcome{Status: LookupPending}, nil
		}
		return LookupOutcome{
			Status:      LookupAvailable,
			TestResult:  order.TestResult,
			TestEndDate: *order.TestEndDate,
		}, nil
	default:
		return LookupOutcome{Status: LookupPending}, nil
	}
}

// Exchange redeems a CTA token. The available -> consumed transition and the read of the
// result are one conditional write, so concurrent callers get the result at most once.
// Every caller that did not perform the transition sees ExchangePending, whether the
// order is still pending or was already consumed.
func (s *Service) Exchange(ctx context.Context, ctaToken string) (ExchangeOutcome, error) {
	outcome, err := s.exchange(ctx, tokens.NormalizeCtaToken(ctaToken))
	if err != nil {
		return outcome, err
	}

	s.metrics.Count(ctx, metrics.ExchangeOutcome, map[string]string{"outcome": outcome.Status.String()})
	logger.FromContext(ctx, s.log).Info("cta exchange",
		zap.String("ctaToken", logger.Redact(ctaToken)),
		zap.Stringer("outcome", outcome.Status),
	)
	return outcome, nil
}

func (s *Service) exchange(ctx context.Context, ctaToken string) (ExchangeOutcome, error) {
	if !tokens.ValidCtaToken(ctaToken) {
		return ExchangeOutcome{Status: ExchangeNotFound}, nil
	}

	prior, err := s.store.UpdateStatus(ctx, ctaToken, orders.StatusAvailable, orders.StatusConsumed, nil)
	switch {
	case err == nil:
		outcome := ExchangeOutcome{
			Status:                      ExchangeConsumed,
			TestResult:                  prior.TestResult,
			DiagnosisKeySubmissionToken: prior.DiagnosisKeySubmissionToken,
		}
		if prior.TestEndDate != nil {
			outcome.TestEndDate = *prior.TestEndDate
		}
		return outcome, nil
	case errors.Is(err, orders.ErrStatusMismatch):
		return ExchangeOutcome{Status: ExchangePending}, nil
	case errors.Is(err, orders.ErrNotFound):
		return ExchangeOutcome{Status: ExchangeNotFound}, nil
	default:
		return ExchangeOutcome{}, fmt.Errorf("exchange cta token: %w", err)
	}
}

// PostResult records a lab result and makes it available. Posting the same result twice
// is a no-op so queue redeliveries are harmless.
func (s *Service) PostResult(ctx context.Context, ctaToken string, result orders.Result) error {
	switch result.TestResult {
	case orders.ResultPositive, orders.ResultNegative, orders.ResultVoid:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResult, result.TestResult)
	}
	ctaToken = tokens.NormalizeCtaToken(ctaToken)
	if !tokens.ValidCtaToken(ctaToken) {
		return orders.ErrNotFound
	}

	current, err := s.store.UpdateStatus(ctx, ctaToken, orders.StatusPending, orders.StatusAvailable, &result)
	switch {
	case err == nil:
		s.metrics.Count(ctx, metrics.ResultPosted, map[string]string{"result": result.TestResult})
		logger.FromContext(ctx, s.log).Info("test result posted",
			zap.String("ctaToken", logger.Redact(ctaToken)),
			zap.String("testResult", result.TestResult),
		)
		return nil
	case errors.Is(err, orders.ErrStatusMismatch):
		if sameResult(current, result) {
			return nil
		}
		return ErrOrderNotPending
	case errors.Is(err, orders.ErrNotFound):
		return err
	default:
		return fmt.Errorf("post test result: %w", err)
	}
}

func sameResult(o *orders.TestOrder, r orders.Result) bool {
	return o != nil &&
		o.Status == orders.StatusAvailable &&
		o.TestResult == r.TestResult &&
		o.TestEndDate != nil &&
		o.TestEndDate.Equal(r.TestEndDate)
}

var _ Exchanger = (*Service)(nil)
