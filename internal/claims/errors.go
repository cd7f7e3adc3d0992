package claims

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

var (
	ErrTokenRequired       = errors.New("resolution token is required")
	ErrTokenNotFound       = errors.New("resolution token is invalid")
	ErrTokenExpired        = errors.New("resolution token has expired")
	ErrTokenUsed           = errors.New("resolution token was already used")
	ErrDescriptionTooShort = errors.New("resolution description is too short")
	ErrClaimIDRequired     = errors.New("claim id is required")
	ErrClaimNotFound       = errors.New("claim not found")
	ErrClosureForbidden    = errors.New("supervisor closure is restricted to the lighting service")
)

// StatusError reports a claim that is not in the status an operation requires.
type StatusError struct {
	Actual   models.ClaimStatus
	Expected models.ClaimStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("claim status is %s, expected %s", e.Actual, e.Expected)
}
