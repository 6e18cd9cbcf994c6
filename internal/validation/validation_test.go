package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/virology-token-service/internal/tokens"
)

func TestTestResultUploadRequest_Valid(t *testing.T) {
	v := New()

	req := TestResultUploadRequest{
		CtaToken:    tokens.NewGenerator().NewCtaToken(),
		TestEndDate: "2020-09-10T00:00:00Z",
		TestResult:  "NEGATIVE",
	}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	// labs may send the token upper case
	req.CtaToken = strings.ToUpper(req.CtaToken)
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected upper case token to be valid, got error: %v", err)
	}
}

func TestTestResultUploadRequest_Invalid(t *testing.T) {
	v := New()
	good := TestResultUploadRequest{
		CtaToken:    tokens.NewGenerator().NewCtaToken(),
		TestEndDate: "2020-09-10T00:00:00Z",
		TestResult:  "POSITIVE",
	}

	cases := map[string]func(r *TestResultUploadRequest){
		"bad checksum":  func(r *TestResultUploadRequest) { r.CtaToken = "aaaaaaaa" },
		"missing token": func(r *TestResultUploadRequest) { r.CtaToken = "" },
		"unknown result": func(r *TestResultUploadRequest) {
			r.TestResult = "MAYBE"
		},
		"date only":    func(r *TestResultUploadRequest) { r.TestEndDate = "2020-09-10" },
		"missing date": func(r *TestResultUploadRequest) { r.TestEndDate = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := good
			mutate(&req)
			if err := v.Struct(req); err == nil {
				t.Fatalf("expected validation error, got nil")
			}
		})
	}
}

func TestPollingTokenTag(t *testing.T) {
	v := New()
	type req struct {
		Token string `validate:"pollingtoken"`
	}
	if err := v.Struct(req{Token: tokens.NewGenerator().NewPollingToken()}); err != nil {
		t.Fatalf("expected valid polling token, got %v", err)
	}
	if err := v.Struct(req{Token: "not-a-uuid"}); err == nil {
		t.Fatal("expected error for malformed polling token")
	}
}

func TestBind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "valid", body: `{"testResultPollingToken":"abc"}`},
		{name: "not json", body: `{`, code: "invalid_request_body"},
		{name: "wrong type", body: `{"testResultPollingToken":42}`, code: "invalid_request_body"},
		{name: "missing field", body: `{}`, code: "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var out LookupRequest
			err := Bind(c, &out, v)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if out.TestResultPollingToken != "abc" {
					t.Fatalf("body not bound: %+v", out)
				}
				return
			}

			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if verr.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, verr.Code)
			}
			if w.Body.Len() != 0 {
				t.Fatalf("Bind must not write a response, got %q", w.Body.String())
			}
		})
	}
}
