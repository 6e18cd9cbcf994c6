package orders

import "time"

// Status is the lifecycle state of a test order. It only ever advances
// pending -> available -> consumed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAvailable Status = "available"
	StatusConsumed  Status = "consumed"
)

// Kind records how the test kit entered the system.
type Kind string

const (
	KindOrder    Kind = "ORDER"
	KindRegister Kind = "REGISTER"
)

// Test result values posted by the labs.
const (
	ResultPositive = "POSITIVE"
	ResultNegative = "NEGATIVE"
	ResultVoid     = "VOID"
)

// TestOrder is the item stored in the test orders table, keyed by ctaToken.
type TestOrder struct {
	CtaToken                    string     `dynamodbav:"ctaToken"` // PK
	TestResultPollingToken      string     `dynamodbav:"testResultPollingToken"`
	DiagnosisKeySubmissionToken string     `dynamodbav:"diagnosisKeySubmissionToken"`
	Kind                        Kind       `dynamodbav:"kind"`
	Status                      Status     `dynamodbav:"status"`
	TestResult                  string     `dynamodbav:"testResult,omitempty"`
	TestEndDate                 *time.Time `dynamodbav:"testEndDate,omitempty"`
	CreatedAt                   time.Time  `dynamodbav:"createdAt"`
	UpdatedAt                   time.Time  `dynamodbav:"updatedAt"`
	ExpireAt                    int64      `dynamodbav:"expireAt"` // TTL epoch seconds
}

// Expired reports whether the order is past its TTL. DynamoDB deletes expired items
// lazily, so reads must filter them.
func (o *TestOrder) Expired(now time.Time) bool {
	return o.ExpireAt > 0 && now.Unix() >= o.ExpireAt
}

// Result is the lab outcome written when an order becomes available.
type Result struct {
	TestResult  string
	TestEndDate time.Time
}

// pollingTokenItem guards uniqueness of the polling token and maps it back to the order.
type pollingTokenItem struct {
	TestResultPollingToken string `dynamodbav:"testResultPollingToken"` // PK
	CtaToken               string `dynamodbav:"ctaToken"`
	ExpireAt               int64  `dynamodbav:"expireAt"`
}

// submissionTokenItem guards uniqueness of the diagnosis key submission token.
type submissionTokenItem struct {
	DiagnosisKeySubmissionToken string `dynamodbav:"diagnosisKeySubmissionToken"` // PK
	CtaToken                    string `dynamodbav:"ctaToken"`
	ExpireAt                    int64  `dynamodbav:"expireAt"`
}
