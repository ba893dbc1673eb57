package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/ids"
	"github.com/drblury/quoteflow/internal/runtime/logging"
	"github.com/drblury/quoteflow/internal/runtime/store"
)

// NewOutcomeRouter serves GET /v1/outcomes/{key} from st and GET /healthz.
// Callers may mount further read-only routes on the returned router.
func NewOutcomeRouter(st store.Store, logger logging.ServiceLogger) chi.Router {
	r := newRouter(logger)
	r.Get("/v1/outcomes/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !ids.IsCorrelationKey(key) {
			reject(w, http.StatusBadRequest, "key is not a correlation key")
			return
		}

		outcome, err := st.Get(r.Context(), key)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, outcome)
		case errors.Is(err, qerrors.ErrOutcomeNotFound):
			reject(w, http.StatusNotFound, "no outcome recorded for key")
		default:
			logger.Error("Outcome lookup failed", err, logging.LogFields{"correlation_key": key})
			reject(w, http.StatusInternalServerError, "outcome lookup failed")
		}
	})
	return r
}
