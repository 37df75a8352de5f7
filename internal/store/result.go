package store

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/session"
)

// DefaultResultLimit caps List when no limit is given.
const DefaultResultLimit = 100

// Result is the outcome of one gesture within a session.
type Result struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Index       int       `json:"index"`
	Label       string    `json:"label"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	Probability float64   `json:"probability"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultRepository stores session results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// Create inserts a result. A missing ID or creation time is filled in.
func (r *ResultRepository) Create(res *Result) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO results (id, session_id, gesture_index, label, success, reason, probability, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.SessionID, res.Index, res.Label, res.Success, res.Reason,
		res.Probability, res.Confidence, res.CreatedAt,
	)
	return err
}

// List retrieves the most recent results, newest first. A limit of zero or
// less uses DefaultResultLimit.
func (r *ResultRepository) List(limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	return r.query(
		`SELECT id, session_id, gesture_index, label, success, reason, probability, confidence, created_at
		 FROM results ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// ListBySession retrieves the results of one session in gesture order.
func (r *ResultRepository) ListBySession(sessionID string) ([]Result, error) {
	return r.query(
		`SELECT id, session_id, gesture_index, label, success, reason, probability, confidence, created_at
		 FROM results WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID,
	)
}

func (r *ResultRepository) query(q string, args ...any) ([]Result, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		var success int
		if err := rows.Scan(&res.ID, &res.SessionID, &res.Index, &res.Label, &success,
			&res.Reason, &res.Probability, &res.Confidence, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Success = success != 0
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// ResultRecorder is a session observer that stores every gesture-result
// event.
type ResultRecorder struct {
	results *ResultRepository
}

// NewResultRecorder returns a recorder writing to s.
func NewResultRecorder(s *Store) *ResultRecorder {
	return &ResultRecorder{results: s.Results()}
}

// OnEvent implements session.Observer.
func (r *ResultRecorder) OnEvent(e session.Event) {
	if e.Type != session.EventGestureResult {
		return
	}

	res := &Result{
		SessionID:   e.SessionID,
		Index:       e.Index,
		Label:       e.Label,
		Success:     e.Success,
		Reason:      e.Reason,
		Probability: e.Probability,
		Confidence:  e.Confidence,
		CreatedAt:   e.Time,
	}
	if err := r.results.Create(res); err != nil {
		log.Printf("Error recording result for %q: %v", e.Label, err)
	}
}
