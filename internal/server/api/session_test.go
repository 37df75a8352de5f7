package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/session"
)

// fakeController records control calls and serves a fixed snapshot.
type fakeController struct {
	snap    session.Snapshot
	err     error
	skipped bool
	calls   []string
	reason  string
}

func (c *fakeController) Start(context.Context) error {
	c.calls = append(c.calls, "start")
	if c.err == nil {
		c.snap.Phase = session.Collecting
	}
	return c.err
}

func (c *fakeController) Restart(context.Context) error {
	c.calls = append(c.calls, "restart")
	return c.err
}

func (c *fakeController) Stop(_ context.Context, reason string) error {
	c.calls = append(c.calls, "stop")
	c.reason = reason
	c.snap.Phase = session.Idle
	return c.err
}

func (c *fakeController) Skip(context.Context) (bool, error) {
	c.calls = append(c.calls, "skip")
	return c.skipped, c.err
}

func (c *fakeController) Snapshot() session.Snapshot {
	return c.snap
}

func TestSessionHandler_Get(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Phase: session.Idle, Total: 3, Status: "ready"}}
	handler := NewSessionHandler(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var snap session.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if snap.Total != 3 || snap.Status != "ready" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSessionHandler_Actions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
		call   string
	}{
		{"start", "/api/session/start", "", nil, http.StatusOK, "start"},
		{"restart", "/api/session/restart", "", nil, http.StatusOK, "restart"},
		{"stop", "/api/session/stop", "", nil, http.StatusOK, "stop"},
		{"start without engine", "/api/session/start", "", session.ErrNoEngine, http.StatusConflict, "start"},
		{"start without gestures", "/api/session/start", "", session.ErrNoGestures, http.StatusConflict, "start"},
		{"start with classifier gone", "/api/session/start", "", fmt.Errorf("%w: bridge: client closed", session.ErrClassifierUnavailable), http.StatusServiceUnavailable, "start"},
		{"runner gone", "/api/session/restart", "", errors.New("not running"), http.StatusServiceUnavailable, "restart"},
		{"stop with bad body", "/api/session/stop", "{", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{err: tt.err}
			handler := NewSessionHandler(ctrl)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.call == "" {
				if len(ctrl.calls) != 0 {
					t.Errorf("expected no controller calls, got %v", ctrl.calls)
				}
				return
			}
			if len(ctrl.calls) != 1 || ctrl.calls[0] != tt.call {
				t.Errorf("expected call %q, got %v", tt.call, ctrl.calls)
			}
		})
	}
}

func TestSessionHandler_StopReason(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		ctrl := &fakeController{}
		req := httptest.NewRequest(http.MethodPost, "/api/session/stop", nil)
		NewSessionHandler(ctrl).ServeHTTP(httptest.NewRecorder(), req)

		if ctrl.reason != "stopped by user" {
			t.Errorf("expected default reason, got %q", ctrl.reason)
		}
	})

	t.Run("from body", func(t *testing.T) {
		ctrl := &fakeController{}
		req := httptest.NewRequest(http.MethodPost, "/api/session/stop", strings.NewReader(`{"reason":"lunch"}`))
		NewSessionHandler(ctrl).ServeHTTP(httptest.NewRecorder(), req)

		if ctrl.reason != "lunch" {
			t.Errorf("expected reason lunch, got %q", ctrl.reason)
		}
	})
}

func TestSessionHandler_Skip(t *testing.T) {
	ctrl := &fakeController{skipped: true, snap: session.Snapshot{Phase: session.Collecting, Index: 1}}
	handler := NewSessionHandler(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/session/skip", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response skipResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Skipped {
		t.Error("expected skipped=true")
	}
	if response.Session.Index != 1 {
		t.Errorf("expected session index 1, got %d", response.Session.Index)
	}
}

func TestSessionHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSessionHandler(&fakeController{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/session"},
		{http.MethodGet, "/api/session/start"},
		{http.MethodDelete, "/api/session/stop"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
			}
		})
	}
}

func TestSessionHandler_UnknownAction(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/session/dance", nil)
	rec := httptest.NewRecorder()
	NewSessionHandler(&fakeController{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
