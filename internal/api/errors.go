package api

import (
	"errors"
	"net/http"

	"github.com/ignite/lead-disposition/internal/pkg/hostname"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/service/assignment"
	"github.com/ignite/lead-disposition/internal/service/disposition"
	"github.com/ignite/lead-disposition/internal/service/fill"
	"github.com/ignite/lead-disposition/internal/service/ingest"
	"github.com/ignite/lead-disposition/internal/service/ownership"
	"github.com/ignite/lead-disposition/internal/service/tam"
	"github.com/ignite/lead-disposition/internal/store"
)

// respondError maps engine errors to status codes. Anything unrecognised
// is logged and returned as a generic 500.
func respondError(w http.ResponseWriter, err error) {
	var (
		conflict   *ownership.ConflictError
		transition *disposition.TransitionError
	)
	switch {
	case errors.As(err, &conflict):
		httputil.Conflict(w, "ownership_conflict", err.Error(), map[string]any{
			"domain":               conflict.Domain,
			"client_owner_id":      conflict.Owner,
			"ownership_expires_at": conflict.ExpiresAt,
		})
	case errors.As(err, &transition):
		httputil.Conflict(w, "invalid_transition", err.Error(), map[string]any{
			"from": transition.From,
			"to":   transition.To,
		})
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, ownership.ErrNotOwner):
		httputil.Forbidden(w, "not_owner", err.Error())
	case errors.Is(err, store.ErrDuplicateKey):
		httputil.Conflict(w, "duplicate", err.Error(), nil)
	case errors.Is(err, assignment.ErrAlreadyCompleted):
		httputil.Conflict(w, "already_completed", err.Error(), nil)
	case errors.Is(err, disposition.ErrChannelSuppressed):
		httputil.Conflict(w, "channel_suppressed", err.Error(), nil)
	case errors.Is(err, ownership.ErrContention), errors.Is(err, disposition.ErrContention), errors.Is(err, store.ErrStaleWrite):
		httputil.Error(w, http.StatusServiceUnavailable, "contention", "concurrent update, retry the request")
	case errors.Is(err, ingest.ErrInvalidEmail), errors.Is(err, ingest.ErrMissingClient),
		errors.Is(err, ingest.ErrMissingEmailColumn), errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, hostname.ErrInvalid), errors.Is(err, ownership.ErrInvalidReason),
		errors.Is(err, fill.ErrInvalidRequest), errors.Is(err, tam.ErrNoClient):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, tam.ErrInconsistent):
		log.Error("tam snapshot inconsistent", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "inconsistent", "snapshot counts are inconsistent")
	default:
		httputil.InternalError(w, err)
	}
}
