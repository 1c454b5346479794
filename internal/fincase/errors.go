package fincase

import (
	"errors"
	"fmt"
)

// Conflict codes, shared by both case families. Handlers translate them to
// family-specific wire codes where the public API requires it.
const (
	CodeOpenCaseExists       = "open_case_exists"
	CodeRecordNotEligible    = "record_not_eligible"
	CodeCaseNotDraft         = "case_not_draft"
	CodeCaseEmpty            = "case_empty"
	CodeFourEyesViolation    = "four_eyes_violation"
	CodeInvalidAmount        = "invalid_approved_amount"
	CodeInvalidCaseState     = "invalid_case_state"
	CodeCaseAlreadyFinalized = "case_already_finalized"
)

// ErrCaseNotFound indicates the case does not exist in the organization scope.
var ErrCaseNotFound = errors.New("finance case not found")

// Conflict is a caller-correctable rule violation. Every Conflict maps to
// HTTP 409; nothing in the engine is retried automatically and a Conflict
// always leaves persisted state unchanged.
type Conflict struct {
	Code    string
	Message string
	Details map[string]any
}

// NewConflict constructs a Conflict error.
func NewConflict(code, message string, details map[string]any) *Conflict {
	return &Conflict{Code: code, Message: message, Details: details}
}

// Error implements the error interface.
func (c *Conflict) Error() string {
	return fmt.Sprintf("%s: %s", c.Code, c.Message)
}

// AsConflict unwraps a Conflict from an error chain.
func AsConflict(err error) (*Conflict, bool) {
	var c *Conflict
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
