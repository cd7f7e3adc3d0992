package kafka

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

// InvalidEnvelopeError marks a record that can never be processed. It is
// logged and committed, never retried.
type InvalidEnvelopeError struct {
	Reason string
}

func (e *InvalidEnvelopeError) Error() string {
	return "invalid claim envelope: " + e.Reason
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeEnvelope parses a record value. Only structural JSON errors are
// reported here; see ValidateEnvelope for field checks.
func DecodeEnvelope(value []byte) (models.ClaimEnvelope, error) {
	var env models.ClaimEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return models.ClaimEnvelope{}, &InvalidEnvelopeError{Reason: fmt.Sprintf("not a well-formed object: %v", err)}
	}
	return env, nil
}

// ValidateEnvelope checks the fields the intake pipeline depends on.
func ValidateEnvelope(env models.ClaimEnvelope) error {
	err := validate.Struct(env)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &InvalidEnvelopeError{Reason: err.Error()}
	}
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "ClaimEnvelope.")
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("missing %s", field))
		case "oneof":
			reasons = append(reasons, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return &InvalidEnvelopeError{Reason: strings.Join(reasons, "; ")}
}
