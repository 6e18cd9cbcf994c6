package orders

import (
	"context"
	"sync"

	"github.com/imrishuroy/virology-token-service/internal/clock"
)

// MemoryStore is an in-process Store for local runs and tests. A single mutex gives the
// same per-item linearizable conditional writes DynamoDB provides.
type MemoryStore struct {
	mu          sync.Mutex
	clock       clock.Clock
	orders      map[string]TestOrder
	polling     map[string]string // polling token -> cta token
	submissions map[string]string // submission token -> cta token
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:       c,
		orders:      make(map[string]TestOrder),
		polling:     make(map[string]string),
		submissions: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, order TestOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.CtaToken]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.polling[order.TestResultPollingToken]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.submissions[order.DiagnosisKeySubmissionToken]; ok {
		return ErrAlreadyExists
	}

	now := m.clock.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	m.orders[order.CtaToken] = cloneOrder(order)
	m.polling[order.TestResultPollingToken] = order.CtaToken
	m.submissions[order.DiagnosisKeySubmissionToken] = order.CtaToken
	return nil
}

func (m *MemoryStore) GetByCtaToken(_ context.Context, ctaToken string) (*TestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(ctaToken), nil
}

func (m *MemoryStore) GetByPollingToken(_ context.Context, pollingToken string) (*TestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cta, ok := m.polling[pollingToken]
	if !ok {
		return nil, nil
	}
	return m.live(cta), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, ctaToken string, expected, newStatus Status, result *Result) (*TestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.live(ctaToken)
	if current == nil {
		return nil, ErrNotFound
	}
	if current.Status != expected {
		return current, ErrStatusMismatch
	}

	prior := cloneOrder(*current)
	next := *current
	next.Status = newStatus
	next.UpdatedAt = m.clock.Now().UTC()
	if result != nil {
		endDate := result.TestEndDate
		next.TestResult = result.TestResult
		next.TestEndDate = &endDate
	}
	m.orders[ctaToken] = next
	return &prior, nil
}

// live returns a copy of the order, or nil if it is absent or expired. Caller holds mu.
func (m *MemoryStore) live(ctaToken string) *TestOrder {
	o, ok := m.orders[ctaToken]
	if !ok || o.Expired(m.clock.Now()) {
		return nil
	}
	c := cloneOrder(o)
	return &c
}

func cloneOrder(src TestOrder) TestOrder {
	dst := src
	if src.TestEndDate != nil {
		d := *src.TestEndDate
		dst.TestEndDate = &d
	}
	return dst
}
