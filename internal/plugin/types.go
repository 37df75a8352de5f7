// Package plugin runs out-of-process feedback plugins in response to
// session events.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/mudra/internal/session"
)

// ManifestFile is the manifest file name looked up in each plugin directory.
const ManifestFile = "plugin.json"

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Events lists the session event types the plugin subscribes to. An
	// empty list subscribes to every event.
	Events []session.EventType `json:"events"`
	Config json.RawMessage     `json:"config,omitempty"`
}

// Request is written to a plugin's stdin.
type Request struct {
	Event  session.Event   `json:"event"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Subscribes reports whether the plugin handles events of type t.
func (p *Plugin) Subscribes(t session.EventType) bool {
	return len(p.Manifest.Events) == 0 || slices.Contains(p.Manifest.Events, t)
}
