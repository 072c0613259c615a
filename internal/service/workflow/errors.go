package workflow

import "errors"

// Sentinel errors for the workflow layer. Only guard violations reach
// callers; upstream failures are recorded on the session instead.
var (
	ErrCategoryRequired     = errors.New("category is required")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrReferenceURLRequired = errors.New("reference URL is required")
	ErrInvalidTransition    = errors.New("invalid workflow transition")
	ErrNoDocument           = errors.New("no newsletter has been generated")
	ErrNoSections           = errors.New("newsletter has no sections")
	ErrNotEditing           = errors.New("newsletter is not being edited")
	ErrSectionIndex         = errors.New("section index out of range")
	ErrOperationInFlight    = errors.New("another operation is in progress")
	ErrSessionNotFound      = errors.New("session not found")
	ErrRecipientFile        = errors.New("recipient file could not be read")
)
