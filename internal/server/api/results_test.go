package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

func TestResultsHandler(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range []store.Result{
		{SessionID: "a", Index: 0, Label: "fist", Success: true, Probability: 0.9, Confidence: 0.8},
		{SessionID: "a", Index: 1, Label: "open_palm", Reason: "timeout"},
		{SessionID: "b", Index: 0, Label: "fist", Success: true, Probability: 0.7, Confidence: 0.6},
	} {
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.Results().Create(&r); err != nil {
			t.Fatalf("failed to create result: %v", err)
		}
	}
	handler := NewResultsHandler(s)

	get := func(t *testing.T, url string) (int, listResultsResponse) {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		var response listResultsResponse
		if rec.Code == http.StatusOK {
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
		}
		return rec.Code, response
	}

	t.Run("recent", func(t *testing.T) {
		code, response := get(t, "/api/results")
		if code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, code)
		}
		if len(response.Results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(response.Results))
		}
		if response.Results[0].SessionID != "b" {
			t.Errorf("expected newest result first, got session %q", response.Results[0].SessionID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		_, response := get(t, "/api/results?limit=2")
		if len(response.Results) != 2 {
			t.Errorf("expected 2 results, got %d", len(response.Results))
		}
	})

	t.Run("by session", func(t *testing.T) {
		_, response := get(t, "/api/results?session=a")
		if len(response.Results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(response.Results))
		}
		if response.Results[1].Reason != "timeout" || response.Results[1].Success {
			t.Errorf("unexpected second result %+v", response.Results[1])
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		code, response := get(t, "/api/results?session=zzz")
		if code != http.StatusOK || response.Results == nil || len(response.Results) != 0 {
			t.Errorf("expected an empty list, got %d %+v", code, response)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"abc", "-1"} {
			if code, _ := get(t, "/api/results?limit="+q); code != http.StatusBadRequest {
				t.Errorf("limit=%s: expected status %d, got %d", q, http.StatusBadRequest, code)
			}
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/results", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestLabelsHandler(t *testing.T) {
	handler := NewLabelsHandler(gesture.NewLabelMap([]string{"fist", "", "thumbs_up"}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/labels", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response listLabelsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Labels) != 2 {
		t.Fatalf("expected gaps to be skipped, got %+v", response.Labels)
	}
	if response.Labels[1].Index != 2 || response.Labels[1].Label != "thumbs_up" {
		t.Errorf("unexpected label entry %+v", response.Labels[1])
	}
}
