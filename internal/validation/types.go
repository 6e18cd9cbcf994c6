package validation

// CtaExchangeRequest is the payload for POST /virology-test/cta-exchange.
type CtaExchangeRequest struct {
	CtaToken string `json:"ctaToken" validate:"required"` // checked by the service, not here
	Country  string `json:"country,omitempty"`
}

// LookupRequest is the payload for POST /virology-test/results.
type LookupRequest struct {
	TestResultPollingToken string `json:"testResultPollingToken" validate:"required"`
}

// TestResultUploadRequest is the payload labs send to POST /upload/virology-test/result.
type TestResultUploadRequest struct {
	CtaToken    string `json:"ctaToken" validate:"required,ctatoken"`
	TestEndDate string `json:"testEndDate" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	TestResult  string `json:"testResult" validate:"required,oneof=POSITIVE NEGATIVE VOID"`
}
