package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

// MinSampleFrames is the fewest frames a recorded sample may have.
const MinSampleFrames = 2

// GestureHandler serves per-label training resources:
//
//	GET    /api/gestures
//	GET    /api/gestures/{label}/samples
//	POST   /api/gestures/{label}/samples
//	DELETE /api/gestures/{label}/samples
//	POST   /api/gestures/{label}/train
//	DELETE /api/gestures/{label}/template
type GestureHandler struct {
	store   *store.Store
	labels  *gesture.LabelMap
	trainer Trainer
}

// NewGestureHandler creates a GestureHandler. trainer may be nil when the
// classifier is remote, in which case training routes answer 501.
func NewGestureHandler(s *store.Store, labels *gesture.LabelMap, trainer Trainer) *GestureHandler {
	return &GestureHandler{store: s, labels: labels, trainer: trainer}
}

type gestureResponse struct {
	Index     int        `json:"index"`
	Label     string     `json:"label"`
	Samples   int        `json:"samples"`
	Trained   bool       `json:"trained"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
}

type listGesturesResponse struct {
	Gestures []gestureResponse `json:"gestures"`
}

type createSampleRequest struct {
	Frames []detector.Frame `json:"frames"`
}

type listSamplesResponse struct {
	Samples []store.Sample `json:"samples"`
}

type deleteSamplesResponse struct {
	Removed int64 `json:"removed"`
}

// ServeHTTP implements the http.Handler interface and routes requests to
// the appropriate method.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/gestures"), "/")

	if path == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	i, ok := h.labels.Index(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown gesture label")
		return
	}
	label := h.labels.Label(i)

	switch parts[1] {
	case "samples":
		switch r.Method {
		case http.MethodGet:
			h.listSamples(w, r, label)
		case http.MethodPost:
			h.createSample(w, r, label)
		case http.MethodDelete:
			h.deleteSamples(w, r, label)
		default:
			methodNotAllowed(w)
		}
	case "train":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.train(w, r, label)
	case "template":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		h.forget(w, r, label)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// list handles GET /api/gestures.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.Templates().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	trained := make(map[string]time.Time, len(templates))
	for _, t := range templates {
		trained[strings.ToLower(t.Label)] = t.UpdatedAt
	}

	response := listGesturesResponse{Gestures: make([]gestureResponse, 0, h.labels.Len())}
	for i, label := range h.labels.Labels() {
		if label == "" {
			continue
		}

		n, err := h.store.Samples().CountByLabel(label)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count samples")
			return
		}

		g := gestureResponse{Index: i, Label: label, Samples: n}
		if at, ok := trained[strings.ToLower(label)]; ok {
			g.Trained = true
			g.TrainedAt = &at
		}
		response.Gestures = append(response.Gestures, g)
	}

	writeJSON(w, http.StatusOK, response)
}

// listSamples handles GET /api/gestures/{label}/samples. Frames are
// omitted from the listing.
func (h *GestureHandler) listSamples(w http.ResponseWriter, r *http.Request, label string) {
	samples, err := h.store.Samples().ListByLabel(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{Samples: make([]store.Sample, 0, len(samples))}
	for _, s := range samples {
		s.Frames = nil
		response.Samples = append(response.Samples, s)
	}

	writeJSON(w, http.StatusOK, response)
}

// createSample handles POST /api/gestures/{label}/samples.
func (h *GestureHandler) createSample(w http.ResponseWriter, r *http.Request, label string) {
	var req createSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Frames) < MinSampleFrames {
		writeError(w, http.StatusBadRequest, "A sample needs at least 2 frames")
		return
	}

	sample := &store.Sample{Label: label, Frames: req.Frames}
	if err := h.store.Samples().Create(sample); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save sample")
		return
	}

	sample.Frames = nil
	writeJSON(w, http.StatusCreated, sample)
}

// deleteSamples handles DELETE /api/gestures/{label}/samples.
func (h *GestureHandler) deleteSamples(w http.ResponseWriter, r *http.Request, label string) {
	n, err := h.store.Samples().DeleteByLabel(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}

	writeJSON(w, http.StatusOK, deleteSamplesResponse{Removed: n})
}

// train handles POST /api/gestures/{label}/train.
func (h *GestureHandler) train(w http.ResponseWriter, r *http.Request, label string) {
	if h.trainer == nil {
		writeError(w, http.StatusNotImplemented, "Training needs the template classifier")
		return
	}

	tmpl, err := h.trainer.Train(r.Context(), label)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrNoSamples):
			writeError(w, http.StatusConflict, "No samples recorded for this gesture")
		case errors.Is(err, inference.ErrUnknownLabel):
			writeError(w, http.StatusNotFound, "Unknown gesture label")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to train gesture")
		}
		return
	}

	tmpl.Rows = nil
	writeJSON(w, http.StatusOK, tmpl)
}

// forget handles DELETE /api/gestures/{label}/template.
func (h *GestureHandler) forget(w http.ResponseWriter, r *http.Request, label string) {
	if h.trainer == nil {
		writeError(w, http.StatusNotImplemented, "Training needs the template classifier")
		return
	}

	if err := h.trainer.Forget(label); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture has no template")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
