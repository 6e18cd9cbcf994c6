package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/virology-token-service/internal/tokens"
)

// New returns a validator with the token tags registered:
//
//	ctatoken      8 character CTA token with a valid check character
//	pollingtoken  UUID shaped polling token
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// registration only fails for an empty tag or a nil func
	_ = v.RegisterValidation("ctatoken", func(fl validatorv10.FieldLevel) bool {
		return tokens.ValidCtaToken(tokens.NormalizeCtaToken(fl.Field().String()))
	})
	_ = v.RegisterValidation("pollingtoken", func(fl validatorv10.FieldLevel) bool {
		return tokens.ValidPollingToken(fl.Field().String())
	})

	return v
}
