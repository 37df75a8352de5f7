// Package tray provides a system tray interface for the mudra gesture
// validation system.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/session"
)

// Action is a session control chosen from the menu.
type Action string

// Menu actions.
const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionSkip    Action = "skip"
)

// Tray represents the system tray application. It observes session events
// to keep its status line current.
type Tray struct {
	onAction    func(Action)
	onDashboard func()
	onQuit      func()
	status      string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuStatus  *systray.MenuItem
	menuStart   *systray.MenuItem
	menuStop    *systray.MenuItem
	menuRestart *systray.MenuItem
	menuSkip    *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{status: "Idle"}
}

// OnAction sets the callback invoked for Start, Stop, Restart and Skip.
func (t *Tray) OnAction(fn func(Action)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAction = fn
}

// OnDashboard sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra Gesture Validation")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status, "Session status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuStart = systray.AddMenuItem("Start", "Start a validation session")
	t.menuStop = systray.AddMenuItem("Stop", "Stop the session")
	t.menuRestart = systray.AddMenuItem("Restart", "Restart from the first gesture")
	t.menuSkip = systray.AddMenuItem("Skip Gesture", "Skip the current gesture")
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuStart.ClickedCh:
				t.handleAction(ActionStart)
			case <-t.menuStop.ClickedCh:
				t.handleAction(ActionStop)
			case <-t.menuRestart.ClickedCh:
				t.handleAction(ActionRestart)
			case <-t.menuSkip.ClickedCh:
				t.handleAction(ActionSkip)
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func (t *Tray) handleAction(a Action) {
	t.mu.RLock()
	callback := t.onAction
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(a)
	}
}

// handleDashboard handles the dashboard menu item click.
func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// OnEvent implements session.Observer by updating the status line.
func (t *Tray) OnEvent(e session.Event) {
	if line, ok := StatusLine(e); ok {
		t.SetStatus(line)
	}
}

// SetStatus updates the status line in the menu.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
}

// Status returns the current status line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// StatusLine renders e for the menu. It reports false for events that do
// not change the status.
func StatusLine(e session.Event) (string, bool) {
	switch e.Type {
	case session.EventSessionStarted:
		return "Session started", true
	case session.EventGestureRetry:
		return fmt.Sprintf("Retry %d: %s", e.Attempt, e.Label), true
	case session.EventGestureResult:
		switch {
		case e.Success:
			return fmt.Sprintf("Passed: %s", e.Label), true
		case e.Reason != "":
			return fmt.Sprintf("%s: %s", e.Reason, e.Label), true
		default:
			return fmt.Sprintf("Failed: %s", e.Label), true
		}
	case session.EventAllCompleted:
		return "Completed", true
	case session.EventSessionStopped:
		if e.Reason != "" {
			return "Stopped: " + e.Reason, true
		}
		return "Stopped", true
	}
	return "", false
}
