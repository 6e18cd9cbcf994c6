package virology

import "time"

// ResultMessage is queued by the result upload endpoint and consumed by the worker.
type ResultMessage struct {
	CtaToken      string    `json:"ctaToken"`
	TestEndDate   time.Time `json:"testEndDate"`
	TestResult    string    `json:"testResult"`
	CorrelationID string    `json:"correlationId,omitempty"`
}
