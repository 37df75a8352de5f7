package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Sample is a recorded landmark window for one label.
type Sample struct {
	ID         int64            `json:"id"`
	Label      string           `json:"label"`
	FrameCount int              `json:"frame_count"`
	Frames     []detector.Frame `json:"frames,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// SampleRepository provides CRUD operations for recorded samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create inserts a sample and fills in its ID and creation time.
func (r *SampleRepository) Create(s *Sample) error {
	data, err := json.Marshal(s.Frames)
	if err != nil {
		return fmt.Errorf("encode sample frames: %w", err)
	}

	s.FrameCount = len(s.Frames)
	s.CreatedAt = time.Now()

	res, err := r.db.Exec(
		`INSERT INTO samples (label, frame_count, data, created_at) VALUES (?, ?, ?, ?)`,
		s.Label, s.FrameCount, string(data), s.CreatedAt,
	)
	if err != nil {
		return err
	}

	s.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves a sample including its frames.
func (r *SampleRepository) GetByID(id int64) (*Sample, error) {
	s := &Sample{}
	var data string

	err := r.db.QueryRow(
		`SELECT id, label, frame_count, data, created_at FROM samples WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Label, &s.FrameCount, &data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &s.Frames); err != nil {
		return nil, fmt.Errorf("decode sample %d: %w", id, err)
	}
	return s, nil
}

// ListByLabel retrieves all samples for label, oldest first, including
// their frames.
func (r *SampleRepository) ListByLabel(label string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, label, frame_count, data, created_at
		 FROM samples
		 WHERE label = ?
		 ORDER BY id`,
		label,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.Label, &s.FrameCount, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &s.Frames); err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", s.ID, err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// CountByLabel returns the number of samples recorded for label.
func (r *SampleRepository) CountByLabel(label string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM samples WHERE label = ?`, label).Scan(&n)
	return n, err
}

// DeleteByLabel removes all samples for label and returns how many were
// removed.
func (r *SampleRepository) DeleteByLabel(label string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM samples WHERE label = ?`, label)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
