package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
)

// Label is one classifier class stored in the database.
type Label struct {
	ClassIndex int       `json:"class_index"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"created_at"`
}

// LabelRepository stores the classifier label map.
type LabelRepository struct {
	db *sql.DB
}

// Labels returns the label repository for this store.
func (s *Store) Labels() *LabelRepository {
	return &LabelRepository{db: s.db}
}

// Replace swaps the stored labels for the entries of m in a single
// transaction. Gaps in m are not stored.
func (r *LabelRepository) Replace(m *gesture.LabelMap) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM labels`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO labels (class_index, label, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i, l := range m.Labels() {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if _, err := stmt.Exec(i, l, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List retrieves all labels ordered by class index.
func (r *LabelRepository) List() ([]Label, error) {
	rows, err := r.db.Query(`SELECT class_index, label, created_at FROM labels ORDER BY class_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ClassIndex, &l.Label, &l.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return labels, nil
}

// LabelMap rebuilds a gesture.LabelMap from the stored labels. Missing class
// indices become gaps.
func (r *LabelRepository) LabelMap() (*gesture.LabelMap, error) {
	stored, err := r.List()
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return gesture.NewLabelMap(nil), nil
	}

	labels := make([]string, stored[len(stored)-1].ClassIndex+1)
	for _, l := range stored {
		labels[l.ClassIndex] = l.Label
	}
	return gesture.NewLabelMap(labels), nil
}
