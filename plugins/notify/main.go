// Package main provides a feedback plugin that shows desktop notifications
// for retries and the end of a session. It uses AppleScript on macOS and
// notify-send elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Event is the subset of a session event the plugin reads.
type Event struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
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

const title = "mudra"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	msg := message(req.Event)
	if msg == "" {
		writeSuccessResponse()
		return
	}

	if err := show(msg); err != nil {
		writeErrorResponse(fmt.Sprintf("notify failed: %v", err))
		return
	}
	writeSuccessResponse()
}

// message returns the notification body for e, or "" to stay quiet.
func message(e Event) string {
	switch e.Type {
	case "gesture-retry":
		return fmt.Sprintf("Try %s again (attempt %d)", e.Label, e.Attempt+1)
	case "all-gestures-completed":
		return "All gestures completed"
	case "session-stopped":
		if e.Reason == "" {
			return "Session stopped"
		}
		return "Session stopped: " + e.Reason
	}
	return ""
}

func show(msg string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("osascript", "-e", buildNotificationScript(title, msg))
	} else {
		cmd = exec.Command("notify-send", title, msg)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// buildNotificationScript generates an AppleScript that displays msg.
func buildNotificationScript(title, msg string) string {
	return fmt.Sprintf(`display notification "%s" with title "%s"`, escape(msg), escape(title))
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
