package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Template is a trained feature sequence for one label.
type Template struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	SampleCount int         `json:"sample_count"`
	Rows        [][]float64 `json:"rows,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TemplateRepository stores trained templates.
type TemplateRepository struct {
	db *sql.DB
}

// Templates returns the template repository for this store.
func (s *Store) Templates() *TemplateRepository {
	return &TemplateRepository{db: s.db}
}

// Save inserts the template or replaces the one already stored for its
// label. The stored ID and timestamps are written back to t.
func (r *TemplateRepository) Save(t *Template) error {
	data, err := json.Marshal(t.Rows)
	if err != nil {
		return fmt.Errorf("encode template rows: %w", err)
	}

	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	_, err = r.db.Exec(
		`INSERT INTO templates (id, label, sample_count, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET
			sample_count = excluded.sample_count,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		t.ID, t.Label, t.SampleCount, string(data), now, now,
	)
	if err != nil {
		return err
	}

	stored, err := r.GetByLabel(t.Label)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}

// GetByLabel retrieves the template for label.
func (r *TemplateRepository) GetByLabel(label string) (*Template, error) {
	t := &Template{}
	var data string

	err := r.db.QueryRow(
		`SELECT id, label, sample_count, data, created_at, updated_at
		 FROM templates WHERE label = ?`,
		label,
	).Scan(&t.ID, &t.Label, &t.SampleCount, &data, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &t.Rows); err != nil {
		return nil, fmt.Errorf("decode template %q: %w", label, err)
	}
	return t, nil
}

// List retrieves all templates ordered by label.
func (r *TemplateRepository) List() ([]*Template, error) {
	rows, err := r.db.Query(
		`SELECT id, label, sample_count, data, created_at, updated_at
		 FROM templates ORDER BY label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t := &Template{}
		var data string
		if err := rows.Scan(&t.ID, &t.Label, &t.SampleCount, &data, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &t.Rows); err != nil {
			return nil, fmt.Errorf("decode template %q: %w", t.Label, err)
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

// Delete removes the template for label.
func (r *TemplateRepository) Delete(label string) error {
	res, err := r.db.Exec(`DELETE FROM templates WHERE label = ?`, label)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
