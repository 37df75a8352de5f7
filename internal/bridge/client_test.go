package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func waitResponse(t *testing.T, c *Client) Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if resp, ok := c.Poll(); ok {
			return resp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for response")
	return Response{}
}

func waitStop(t *testing.T, c *Client) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reason, ok := c.PollStop(); ok {
			return reason
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for stop request")
	return ""
}

func TestClient_SubmitAndPoll(t *testing.T) {
	local, remote := net.Pipe()
	c := NewClient(local, DefaultClientConfig())
	defer c.Close()

	go func() {
		scanner := bufio.NewScanner(remote)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			remote.Write([]byte("garbage\n"))
			data, _ := json.Marshal(Response{Top1: req.TargetLabel, TargetLabel: req.TargetLabel, Prob: 0.8, Confidence: 0.6, Match: true})
			remote.Write(append(data, '\n'))
		}
	}()

	if err := c.Submit(fistWindow()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	resp := waitResponse(t, c)
	if resp.TargetLabel != "fist" || !resp.Match || resp.Prob != 0.8 {
		t.Errorf("unexpected response %+v", resp)
	}
	if _, ok := c.Poll(); ok {
		t.Error("expected malformed line to be skipped")
	}
}

func TestClient_SendStop(t *testing.T) {
	local, remote := net.Pipe()
	c := NewClient(local, DefaultClientConfig())
	defer c.Close()

	if err := c.SendStop(); err != nil {
		t.Fatalf("SendStop() error = %v", err)
	}

	remote.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(remote).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if strings.TrimSpace(line) != `{"command":"stop"}` {
		t.Errorf("unexpected stop line %q", line)
	}
}

func TestClient_PeerCloseRequestsStop(t *testing.T) {
	local, remote := net.Pipe()
	c := NewClient(local, DefaultClientConfig())
	defer c.Close()

	remote.Close()

	reason := waitStop(t, c)
	if !strings.Contains(reason, "closed") {
		t.Errorf("unexpected stop reason %q", reason)
	}
	if _, ok := c.PollStop(); ok {
		t.Error("expected a single stop request")
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Submit(fistWindow()) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Submit(fistWindow()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after connection loss, got %v", err)
	}
	if err := c.Err(); !errors.Is(err, ErrClosed) {
		t.Errorf("Err() after connection loss = %v, want ErrClosed", err)
	}
}

func TestClient_Err(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := NewClient(local, DefaultClientConfig())
	if err := c.Err(); err != nil {
		t.Errorf("Err() on a live client = %v, want nil", err)
	}

	c.Close()
	if err := c.Err(); !errors.Is(err, ErrClosed) {
		t.Errorf("Err() after Close = %v, want ErrClosed", err)
	}
}

func TestClient_QueueFull(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := NewClient(local, ClientConfig{QueueSize: 1})
	defer c.Close()

	var full bool
	for i := 0; i < 3; i++ {
		if err := c.Submit(fistWindow()); errors.Is(err, ErrQueueFull) {
			full = true
		}
	}
	if !full {
		t.Error("expected the bounded queue to reject a submission")
	}
}

func TestClient_Close(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := NewClient(local, ClientConfig{JoinTimeout: time.Second})

	start := time.Now()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("expected Close to return within the join timeout")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.Submit(fistWindow()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, ok := c.PollStop(); ok {
		t.Error("expected no stop request after a local close")
	}
}
