// Package main provides a feedback plugin that plays a sound for session
// feedback. It uses afplay on macOS and paplay elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Event is the subset of a session event the plugin reads.
type Event struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Success bool   `json:"success"`
	Tag     string `json:"tag"`
}

// Request represents the input from the plugin executor.
type Request struct {
	Event  Event           `json:"event"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Sounds overrides the sound file played for each cue.
type Sounds struct {
	Success   string `json:"success"`
	Retry     string `json:"retry"`
	Completed string `json:"completed"`
}

var defaultSounds = map[string]Sounds{
	"darwin": {
		Success:   "/System/Library/Sounds/Glass.aiff",
		Retry:     "/System/Library/Sounds/Basso.aiff",
		Completed: "/System/Library/Sounds/Hero.aiff",
	},
	"linux": {
		Success:   "/usr/share/sounds/freedesktop/stereo/complete.oga",
		Retry:     "/usr/share/sounds/freedesktop/stereo/dialog-warning.oga",
		Completed: "/usr/share/sounds/freedesktop/stereo/bell.oga",
	},
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	sounds := defaultSounds[runtime.GOOS]
	if len(req.Config) > 0 {
		var override Sounds
		if err := json.Unmarshal(req.Config, &override); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
		sounds = merge(sounds, override)
	}

	file := soundFor(req.Event, sounds)
	if file == "" {
		writeSuccessResponse()
		return
	}

	if err := play(file); err != nil {
		writeErrorResponse(fmt.Sprintf("play %s: %v", file, err))
		return
	}
	writeSuccessResponse()
}

// soundFor picks the sound for e, or "" when the event has no cue.
func soundFor(e Event, s Sounds) string {
	switch e.Type {
	case "feedback-playing":
		if e.Tag == "success" {
			return s.Success
		}
		return s.Retry
	case "all-gestures-completed":
		return s.Completed
	}
	return ""
}

func merge(base, override Sounds) Sounds {
	if override.Success != "" {
		base.Success = override.Success
	}
	if override.Retry != "" {
		base.Retry = override.Retry
	}
	if override.Completed != "" {
		base.Completed = override.Completed
	}
	return base
}

func play(file string) error {
	player := "paplay"
	if runtime.GOOS == "darwin" {
		player = "afplay"
	}
	output, err := exec.Command(player, file).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
