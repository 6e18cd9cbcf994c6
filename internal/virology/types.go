package virology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/virology-token-service/internal/orders"
)

var (
	// ErrTokenSpaceExhausted means every token allocation attempt collided. It is an
	// infrastructure fault, not a user error.
	ErrTokenSpaceExhausted = errors.New("token space exhausted: max token persistence attempts reached")
	// ErrOrderNotPending is returned when a result is posted for an order that already
	// has a different result or was consumed.
	ErrOrderNotPending = errors.New("test order is not pending")
	// ErrInvalidResult is returned for result values other than POSITIVE, NEGATIVE or VOID.
	ErrInvalidResult = errors.New("invalid test result")
	// ErrUnknownKind is returned for an order kind without a configured website.
	ErrUnknownKind = errors.New("unknown order kind")
)

// Store is the token store the service runs against. orders.Store and orders.MemoryStore
// implement it.
type Store interface {
	Create(ctx context.Context, order orders.TestOrder) error
	GetByCtaToken(ctx context.Context, ctaToken string) (*orders.TestOrder, error)
	GetByPollingToken(ctx context.Context, pollingToken string) (*orders.TestOrder, error)
	UpdateStatus(ctx context.Context, ctaToken string, expected, newStatus orders.Status, result *orders.Result) (*orders.TestOrder, error)
}

// TokenGenerator produces fresh opaque tokens.
type TokenGenerator interface {
	NewCtaToken() string
	NewPollingToken() string
	NewSubmissionToken() string
}

// Exchanger redeems a CTA token for its result.
type Exchanger interface {
	Exchange(ctx context.Context, ctaToken string) (ExchangeOutcome, error)
}

// WebsiteConfig holds the website a citizen is sent to for each order kind.
type WebsiteConfig struct {
	OrderWebsite    string
	RegisterWebsite string
}

// URLFor returns the website for kind.
func (w WebsiteConfig) URLFor(kind orders.Kind) (string, error) {
	switch kind {
	case orders.KindOrder:
		return w.OrderWebsite, nil
	case orders.KindRegister:
		return w.RegisterWebsite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// TestOrderTokens is what an order or registration hands back to the citizen. The
// submission token stays server side.
type TestOrderTokens struct {
	Kind                   orders.Kind
	CtaToken               string
	TestResultPollingToken string
	WebsiteURL             string
}

// LookupStatus is the outcome of polling for a result.
type LookupStatus int

const (
	LookupNotFound LookupStatus = iota
	LookupPending
	LookupAvailable
)

func (s LookupStatus) String() string {
	switch s {
	case LookupPending:
		return "pending"
	case LookupAvailable:
		return "available"
	default:
		return "not_found"
	}
}

// LookupOutcome carries the result when Status is LookupAvailable.
type LookupOutcome struct {
	Status      LookupStatus
	TestResult  string
	TestEndDate time.Time
}

// ExchangeStatus is the outcome of a CTA exchange.
type ExchangeStatus int

const (
	ExchangeNotFound ExchangeStatus = iota
	ExchangePending
	ExchangeConsumed
)

func (s ExchangeStatus) String() string {
	switch s {
	case ExchangePending:
		return "pending"
	case ExchangeConsumed:
		return "consumed"
	default:
		return "not_found"
	}
}

// ExchangeOutcome carries the result when Status is ExchangeConsumed. Only the caller
// that performed the transition ever sees it.
type ExchangeOutcome struct {
	Status                      ExchangeStatus
	TestResult                  string
	TestEndDate                 time.Time
	DiagnosisKeySubmissionToken string
}
