package validation

import (
	"errors"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Bind decodes the JSON body into out and validates it. It writes nothing to the
// response; endpoints answer bad bodies with different status codes.
func Bind(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return &Error{Code: "invalid_request_body", err: err}
	}
	if err := v.Struct(out); err != nil {
		return &Error{Code: "validation_failed", Fields: fieldErrors(err), err: err}
	}
	return nil
}

// Error describes why a request body was rejected.
type Error struct {
	Code   string
	Fields map[string]string
	err    error
}

func (e *Error) Error() string { return e.Code + ": " + e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
