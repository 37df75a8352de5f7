package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Labels table - classifier output index to gesture label
		`CREATE TABLE IF NOT EXISTS labels (
			class_index INTEGER PRIMARY KEY CHECK(class_index >= 0),
			label TEXT NOT NULL UNIQUE COLLATE NOCASE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Samples table - recorded landmark windows used for training
		`CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL COLLATE NOCASE,
			frame_count INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Templates table - averaged feature sequences, one per label
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL UNIQUE COLLATE NOCASE,
			sample_count INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Results table - one row per gesture result of a session
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			gesture_index INTEGER NOT NULL,
			label TEXT NOT NULL,
			success INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			probability REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_samples_label ON samples(label)`,
		`CREATE INDEX IF NOT EXISTS idx_results_session_id ON results(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
