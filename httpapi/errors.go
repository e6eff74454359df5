package httpapi

import (
	"errors"
	"net/http"

	"projectmatch/application"
	"projectmatch/auth"
	"projectmatch/db"
	"projectmatch/directory"
	"projectmatch/proposal"
)

var errRoleForbidden = errors.New("httpapi: role not permitted for this operation")

// writeDomainError translates service sentinels into HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, proposal.ErrNotFound),
		errors.Is(err, application.ErrNotFound),
		errors.Is(err, application.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, err)

	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)

	case errors.Is(err, proposal.ErrNotAssigned),
		errors.Is(err, application.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err)

	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, proposal.ErrAlreadyReviewed),
		errors.Is(err, proposal.ErrReviewClosed),
		errors.Is(err, proposal.ErrWorkloadExceeded),
		errors.Is(err, application.ErrDuplicate),
		errors.Is(err, application.ErrAlreadySelected),
		errors.Is(err, application.ErrLimitExceeded),
		errors.Is(err, application.ErrNotPending):
		writeError(w, http.StatusConflict, err)

	case errors.Is(err, proposal.ErrInsufficientReviewers),
		errors.Is(err, application.ErrNotApplicable):
		writeError(w, http.StatusUnprocessableEntity, err)

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrAreaRequired),
		errors.Is(err, proposal.ErrOwnerNotFaculty),
		errors.Is(err, proposal.ErrFeedbackRequired),
		errors.Is(err, proposal.ErrFeedbackTooLong):
		writeError(w, http.StatusBadRequest, err)

	case db.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, err)

	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
