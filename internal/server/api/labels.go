package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/gesture"
)

// LabelsHandler serves GET /api/labels.
type LabelsHandler struct {
	labels *gesture.LabelMap
}

// NewLabelsHandler creates a LabelsHandler for labels.
func NewLabelsHandler(labels *gesture.LabelMap) *LabelsHandler {
	return &LabelsHandler{labels: labels}
}

type labelResponse struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

type listLabelsResponse struct {
	Labels []labelResponse `json:"labels"`
}

// ServeHTTP implements the http.Handler interface.
func (h *LabelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	response := listLabelsResponse{Labels: make([]labelResponse, 0, h.labels.Len())}
	for i, l := range h.labels.Labels() {
		if l == "" {
			continue
		}
		response.Labels = append(response.Labels, labelResponse{Index: i, Label: l})
	}

	writeJSON(w, http.StatusOK, response)
}
