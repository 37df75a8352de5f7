package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// fakeTrainer stores a fixed template for any label with samples.
type fakeTrainer struct {
	store   *store.Store
	err     error
	trained []string
	forgot  []string
}

func (f *fakeTrainer) Train(_ context.Context, label string) (*store.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.trained = append(f.trained, label)
	tmpl := &store.Template{Label: label, SampleCount: 1, Rows: [][]float64{{1, 2}}}
	if err := f.store.Templates().Save(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (f *fakeTrainer) Forget(label string) error {
	f.forgot = append(f.forgot, label)
	return f.store.Templates().Delete(label)
}

func testLabels() *gesture.LabelMap {
	return gesture.NewLabelMap([]string{"fist", "open_palm", "thumbs_up"})
}

func fistFrames(n int) []detector.Frame {
	frames := make([]detector.Frame, n)
	for i := range frames {
		frames[i] = detector.FistLandmarks().Frame(int64(i * 33))
	}
	return frames
}

func postSample(t *testing.T, h http.Handler, label string, frames []detector.Frame) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(createSampleRequest{Frames: frames})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/gestures/"+label+"/samples", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGestureHandler_List(t *testing.T) {
	s := newTestStore(t)
	trainer := &fakeTrainer{store: s}
	handler := NewGestureHandler(s, testLabels(), trainer)

	for range 2 {
		if err := s.Samples().Create(&store.Sample{Label: "fist", Frames: fistFrames(4)}); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}
	if _, err := trainer.Train(context.Background(), "fist"); err != nil {
		t.Fatalf("failed to train: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/gestures", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response listGesturesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Gestures) != 3 {
		t.Fatalf("expected 3 gestures, got %d", len(response.Gestures))
	}

	fist := response.Gestures[0]
	if fist.Label != "fist" || fist.Samples != 2 || !fist.Trained || fist.TrainedAt == nil {
		t.Errorf("unexpected fist entry %+v", fist)
	}
	palm := response.Gestures[1]
	if palm.Index != 1 || palm.Samples != 0 || palm.Trained {
		t.Errorf("unexpected open_palm entry %+v", palm)
	}
}

func TestGestureHandler_CreateSample(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, testLabels(), nil)

	rec := postSample(t, handler, "FIST", fistFrames(5))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var created store.Sample
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected an assigned sample ID")
	}
	if created.Label != "fist" {
		t.Errorf("expected canonical label fist, got %q", created.Label)
	}
	if created.FrameCount != 5 {
		t.Errorf("expected 5 frames, got %d", created.FrameCount)
	}
	if len(created.Frames) != 0 {
		t.Error("expected frames to be omitted from the response")
	}

	stored, err := s.Samples().GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if len(stored.Frames) != 5 {
		t.Errorf("expected 5 stored frames, got %d", len(stored.Frames))
	}
}

func TestGestureHandler_CreateSample_Invalid(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, testLabels(), nil)

	t.Run("too few frames", func(t *testing.T) {
		rec := postSample(t, handler, "fist", fistFrames(1))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/gestures/fist/samples", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		rec := postSample(t, handler, "wave", fistFrames(3))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestGestureHandler_ListAndDeleteSamples(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, testLabels(), nil)

	for range 3 {
		if rec := postSample(t, handler, "fist", fistFrames(2)); rec.Code != http.StatusCreated {
			t.Fatalf("failed to create sample: %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/gestures/fist/samples", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var listed listSamplesResponse
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(listed.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(listed.Samples))
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/gestures/fist/samples", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var removed deleteSamplesResponse
	if err := json.NewDecoder(rec.Body).Decode(&removed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if removed.Removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed.Removed)
	}

	n, err := s.Samples().CountByLabel("fist")
	if err != nil {
		t.Fatalf("CountByLabel() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no samples left, got %d", n)
	}
}

func TestGestureHandler_Train(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"trained", nil, http.StatusOK},
		{"no samples", fmt.Errorf("train fist: %w", inference.ErrNoSamples), http.StatusConflict},
		{"unknown label", inference.ErrUnknownLabel, http.StatusNotFound},
		{"failure", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			trainer := &fakeTrainer{store: s, err: tt.err}
			handler := NewGestureHandler(s, testLabels(), trainer)

			req := httptest.NewRequest(http.MethodPost, "/api/gestures/open_palm/train", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.err != nil {
				return
			}

			var tmpl store.Template
			if err := json.NewDecoder(rec.Body).Decode(&tmpl); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if tmpl.Label != "open_palm" || tmpl.ID == "" {
				t.Errorf("unexpected template %+v", tmpl)
			}
			if len(tmpl.Rows) != 0 {
				t.Error("expected rows to be omitted from the response")
			}
		})
	}
}

func TestGestureHandler_ForgetTemplate(t *testing.T) {
	s := newTestStore(t)
	trainer := &fakeTrainer{store: s}
	handler := NewGestureHandler(s, testLabels(), trainer)

	if _, err := trainer.Train(context.Background(), "fist"); err != nil {
		t.Fatalf("failed to train: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/gestures/fist/template", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/gestures/fist/template", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d for a second delete, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGestureHandler_NoTrainer(t *testing.T) {
	handler := NewGestureHandler(newTestStore(t), testLabels(), nil)

	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/api/gestures/fist/train"},
		{http.MethodDelete, "/api/gestures/fist/template"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusNotImplemented, rec.Code)
		}
	}
}

func TestGestureHandler_Routing(t *testing.T) {
	handler := NewGestureHandler(newTestStore(t), testLabels(), nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPost, "/api/gestures", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/gestures/fist", http.StatusNotFound},
		{http.MethodGet, "/api/gestures/fist/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/gestures/fist/train", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/gestures/fist/samples", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/gestures/fist/samples/extra", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
