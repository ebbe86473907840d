package fever

import (
	"errors"
	"io"
	"net/http"

	"github.com/bryan-buckman/feverd/internal/metrics"
	log "gopkg.in/inconshreveable/log15.v2"
)

const maxFormMemory = 1 << 20

// Handler serves the Fever endpoint.
type Handler struct {
	responder *Responder
	enabled   bool
	logger    log.Logger
}

// NewHandler returns a Handler. When enabled is false every request other
// than a refresh is answered with 503.
func NewHandler(responder *Responder, enabled bool, logger log.Logger) *Handler {
	return &Handler{responder: responder, enabled: enabled, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.Debug("could not parse form", "error", err)
	}
	form := r.Form

	if _, ok := form[FieldRefresh]; ok {
		// Feeds are refreshed by the poller; the client only needs a 200.
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.enabled {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "Service Unavailable!")
		return
	}

	req := ParseRequest(form)
	env, err := h.responder.Respond(req)
	if err != nil {
		h.logger.Error("fever request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	body, err := Serialize(env, req.Format)
	if err != nil {
		h.logger.Error("could not serialize fever response", "format", req.Format, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	metrics.RecordFeverRequest(req.Format.String(), env.Auth)

	w.Header().Set("Content-Type", req.Format.ContentType())
	w.Write(body)
}
