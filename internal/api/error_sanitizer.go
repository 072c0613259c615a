package api

import (
	"errors"
	"net/http"

	"github.com/ignite/newsletter-ai/internal/pkg/httputil"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
	"github.com/ignite/newsletter-ai/internal/recipients"
	"github.com/ignite/newsletter-ai/internal/service/archive"
	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

// Error codes returned alongside the message so clients need not match text.
const (
	codeNotFound   = "not_found"
	codeConflict   = "conflict"
	codeInvalid    = "invalid_request"
	codeBusy       = "operation_in_flight"
	codeInternal   = "internal_error"
	codeNoArchive  = "archive_disabled"
	codeNoS3Bucket = "recipient_bucket_disabled"
)

var (
	notFoundErrors = []error{workflow.ErrSessionNotFound, archive.ErrNotFound}
	badInputErrors = []error{
		workflow.ErrCategoryRequired,
		workflow.ErrUnknownCategory,
		workflow.ErrReferenceURLRequired,
		workflow.ErrNoDocument,
		workflow.ErrNoSections,
		workflow.ErrNotEditing,
		workflow.ErrSectionIndex,
		workflow.ErrRecipientFile,
		recipients.ErrFileTooLarge,
		archive.ErrInvalidDocument,
	}
)

func matches(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// respondError maps domain errors onto status codes. Anything unrecognised
// is logged in full and answered with a generic 500 so internal details
// never reach the client.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case matches(err, notFoundErrors):
		httputil.ErrorCode(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, workflow.ErrOperationInFlight):
		httputil.ErrorCode(w, http.StatusConflict, codeBusy, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		httputil.ErrorCode(w, http.StatusConflict, codeConflict, err.Error())
	case matches(err, badInputErrors):
		httputil.ErrorCode(w, http.StatusBadRequest, codeInvalid, err.Error())
	default:
		logger.Error("api: request failed", "error", err)
		httputil.ErrorCode(w, http.StatusInternalServerError, codeInternal, "An internal error occurred")
	}
}
