package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/store"
)

// ResultsHandler serves GET /api/results.
type ResultsHandler struct {
	store *store.Store
}

// NewResultsHandler creates a ResultsHandler with the given store.
func NewResultsHandler(s *store.Store) *ResultsHandler {
	return &ResultsHandler{store: s}
}

type listResultsResponse struct {
	Results []store.Result `json:"results"`
}

// ServeHTTP implements the http.Handler interface. The optional session
// query parameter selects one session; limit caps the recent results.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()

	var (
		results []store.Result
		err     error
	)
	if id := q.Get("session"); id != "" {
		results, err = h.store.Results().ListBySession(id)
	} else {
		limit := 0
		if s := q.Get("limit"); s != "" {
			limit, err = strconv.Atoi(s)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
		}
		results, err = h.store.Results().List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	if results == nil {
		results = []store.Result{}
	}
	writeJSON(w, http.StatusOK, listResultsResponse{Results: results})
}
