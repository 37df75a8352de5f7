package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/session"
)

// SessionHandler serves /api/session and its control actions.
type SessionHandler struct {
	ctrl Controller
}

// NewSessionHandler creates a SessionHandler for ctrl.
func NewSessionHandler(ctrl Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

type stopRequest struct {
	Reason string `json:"reason"`
}

type skipResponse struct {
	Skipped bool             `json:"skipped"`
	Session session.Snapshot `json:"session"`
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/session and /api/session/{start,stop,restart,skip}
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	ctx := r.Context()
	switch action {
	case "start":
		h.respond(w, h.ctrl.Start(ctx))
	case "restart":
		h.respond(w, h.ctrl.Restart(ctx))
	case "stop":
		var req stopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Reason == "" {
			req.Reason = "stopped by user"
		}
		h.respond(w, h.ctrl.Stop(ctx, req.Reason))
	case "skip":
		skipped, err := h.ctrl.Skip(ctx)
		if err != nil {
			h.respond(w, err)
			return
		}
		writeJSON(w, http.StatusOK, skipResponse{Skipped: skipped, Session: h.ctrl.Snapshot()})
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// respond maps a control error to a status and otherwise returns the
// current snapshot.
func (h *SessionHandler) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
	case errors.Is(err, session.ErrNoEngine), errors.Is(err, session.ErrNoGestures):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClassifierUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}
