// Package api provides the HTTP handlers of the mudra control surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Controller drives the validation session.
type Controller interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context, reason string) error
	Skip(ctx context.Context) (bool, error)
	Snapshot() session.Snapshot
}

// Trainer builds templates from stored samples.
type Trainer interface {
	Train(ctx context.Context, label string) (*store.Template, error)
	Forget(label string) error
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
