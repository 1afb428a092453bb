// Package storage persists scan results (records, duplicate groups,
// decisions, scan history) in SQLite so review and staging commands can
// operate on a prior scan without re-hashing.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"imageorganizer/internal/models"
)

// Storage is the scan catalog.
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens (and if needed creates) the catalog database.
func NewStorage(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 1

func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		source_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		location TEXT DEFAULT '',
		size_bytes INTEGER NOT NULL,
		content_hash TEXT DEFAULT '',
		similarity_hash INTEGER DEFAULT 0,
		has_similarity INTEGER DEFAULT 0,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		format TEXT DEFAULT '',
		has_exif INTEGER DEFAULT 0,
		modified_at TEXT NOT NULL,
		fingerprint_failed INTEGER DEFAULT 0,
		score REAL DEFAULT 0,
		group_id INTEGER DEFAULT 0,
		decision TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(origin, source_id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_content_hash ON records(content_hash);
	CREATE INDEX IF NOT EXISTS idx_records_group_id ON records(group_id);
	CREATE INDEX IF NOT EXISTS idx_records_origin ON records(origin);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY,
		origin TEXT NOT NULL,
		kind TEXT NOT NULL,
		max_distance INTEGER NOT NULL DEFAULT 0,
		keep_origin TEXT DEFAULT '',
		keep_source_id TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		target TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_records INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRecords inserts or updates records, keyed by (origin, source_id).
func (s *Storage) SaveRecords(records []*models.ImageRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO records (origin, source_id, display_name, location, size_bytes,
			content_hash, similarity_hash, has_similarity, width, height, format,
			has_exif, modified_at, fingerprint_failed, score, group_id, decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin, source_id) DO UPDATE SET
			display_name = excluded.display_name,
			location = excluded.location,
			size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash,
			similarity_hash = excluded.similarity_hash,
			has_similarity = excluded.has_similarity,
			width = excluded.width,
			height = excluded.height,
			format = excluded.format,
			has_exif = excluded.has_exif,
			modified_at = excluded.modified_at,
			fingerprint_failed = excluded.fingerprint_failed,
			score = excluded.score,
			group_id = excluded.group_id,
			decision = excluded.decision
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(
			string(rec.Origin),
			rec.SourceID,
			rec.DisplayName,
			rec.Location,
			rec.SizeBytes,
			rec.ContentHash,
			int64(rec.SimilarityHash), // cast for SQLite compatibility
			boolToInt(rec.HasSimilarityHash),
			rec.Width,
			rec.Height,
			rec.Format,
			boolToInt(rec.HasExif),
			rec.ModifiedAt.UTC().Format(time.RFC3339Nano),
			boolToInt(rec.FingerprintFailed),
			rec.Score,
			rec.GroupID,
			"",
		)
		if err != nil {
			return fmt.Errorf("failed to save record %s: %w", rec.SourceID, err)
		}
	}

	return tx.Commit()
}

const recordColumns = `id, origin, source_id, display_name, location, size_bytes,
	content_hash, similarity_hash, has_similarity, width, height, format,
	has_exif, modified_at, fingerprint_failed, score, group_id, decision`

func scanRecord(rows *sql.Rows) (*models.ImageRecord, models.Decision, error) {
	rec := &models.ImageRecord{}
	var (
		origin      string
		simHash     int64
		hasSim      int
		hasExif     int
		failed      int
		modifiedAt  string
		decisionStr string
	)
	err := rows.Scan(
		&rec.ID,
		&origin,
		&rec.SourceID,
		&rec.DisplayName,
		&rec.Location,
		&rec.SizeBytes,
		&rec.ContentHash,
		&simHash,
		&hasSim,
		&rec.Width,
		&rec.Height,
		&rec.Format,
		&hasExif,
		&modifiedAt,
		&failed,
		&rec.Score,
		&rec.GroupID,
		&decisionStr,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan row: %w", err)
	}

	rec.Origin = models.Origin(origin)
	rec.SimilarityHash = uint64(simHash)
	rec.HasSimilarityHash = hasSim == 1
	rec.HasExif = hasExif == 1
	rec.FingerprintFailed = failed == 1
	rec.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modifiedAt)

	return rec, models.Decision(decisionStr), nil
}

// GetRecords returns all stored records, optionally filtered by origin
// (pass "" for all).
func (s *Storage) GetRecords(origin models.Origin) ([]*models.ImageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records ORDER BY origin, source_id`
	args := []any{}
	if origin != "" {
		query = `SELECT ` + recordColumns + ` FROM records WHERE origin = ? ORDER BY source_id`
		args = append(args, string(origin))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.ImageRecord
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReplaceGroups replaces the stored groups of one origin with a fresh
// clustering result, updating member group assignments and decisions.
// Group ids are renumbered past the existing maximum so groups of the
// other origin keep their identities.
func (s *Storage) ReplaceGroups(origin models.Origin, groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM groups WHERE origin = ?`, string(origin)); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}
	if _, err := tx.Exec(`UPDATE records SET group_id = 0, decision = '' WHERE origin = ?`, string(origin)); err != nil {
		return fmt.Errorf("failed to reset group assignments: %w", err)
	}

	var maxID int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM groups`).Scan(&maxID); err != nil {
		return fmt.Errorf("failed to read group id sequence: %w", err)
	}

	groupStmt, err := tx.Prepare(`
		INSERT INTO groups (id, origin, kind, max_distance, keep_origin, keep_source_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare group statement: %w", err)
	}
	defer groupStmt.Close()

	memberStmt, err := tx.Prepare(`
		UPDATE records SET group_id = ?, decision = ? WHERE origin = ? AND source_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare member statement: %w", err)
	}
	defer memberStmt.Close()

	for i, g := range groups {
		g.ID = maxID + i + 1
		for _, m := range g.Members {
			m.GroupID = g.ID
		}
	}
	for _, g := range groups {
		keepOrigin, keepSourceID := "", ""
		if g.RecommendedKeep != nil {
			keepOrigin = string(g.RecommendedKeep.Origin)
			keepSourceID = g.RecommendedKeep.SourceID
		}
		if _, err := groupStmt.Exec(g.ID, string(origin), string(g.Kind), g.MaxInternalDistance, keepOrigin, keepSourceID); err != nil {
			return fmt.Errorf("failed to save group %d: %w", g.ID, err)
		}
		for _, m := range g.Members {
			if _, err := memberStmt.Exec(g.ID, string(g.Decision(m)), string(m.Origin), m.SourceID); err != nil {
				return fmt.Errorf("failed to update member %s: %w", m.SourceID, err)
			}
		}
	}

	return tx.Commit()
}

// GetGroups rebuilds all duplicate groups, members ordered by score
// descending, with persisted decisions attached.
func (s *Storage) GetGroups() ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query(`SELECT id, kind, max_distance, keep_origin, keep_source_id FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	type groupRow struct {
		id           int
		kind         string
		maxDistance  int
		keepOrigin   string
		keepSourceID string
	}
	var groupRows []groupRow
	for rows.Next() {
		var gr groupRow
		if err := rows.Scan(&gr.id, &gr.kind, &gr.maxDistance, &gr.keepOrigin, &gr.keepSourceID); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groupRows = append(groupRows, gr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var groups []*models.DuplicateGroup
	for _, gr := range groupRows {
		g := &models.DuplicateGroup{
			ID:                  gr.id,
			Kind:                models.MatchKind(gr.kind),
			MaxInternalDistance: gr.maxDistance,
			Decisions:           make(map[models.RecordKey]models.Decision),
		}

		memberRows, err := s.db.Query(
			`SELECT `+recordColumns+` FROM records WHERE group_id = ? ORDER BY score DESC, source_id`, gr.id)
		if err != nil {
			return nil, fmt.Errorf("failed to query group members: %w", err)
		}
		for memberRows.Next() {
			rec, decision, err := scanRecord(memberRows)
			if err != nil {
				memberRows.Close()
				return nil, err
			}
			g.Members = append(g.Members, rec)
			if decision != "" {
				g.Decisions[rec.Key()] = decision
			}
			if string(rec.Origin) == gr.keepOrigin && rec.SourceID == gr.keepSourceID {
				g.RecommendedKeep = rec
			}
		}
		memberRows.Close()

		groups = append(groups, g)
	}

	return groups, nil
}

// SetDecision overrides the stored decision for one record.
func (s *Storage) SetDecision(origin models.Origin, sourceID string, d models.Decision) error {
	res, err := s.db.Exec(
		`UPDATE records SET decision = ? WHERE origin = ? AND source_id = ?`,
		string(d), string(origin), sourceID)
	if err != nil {
		return fmt.Errorf("failed to set decision: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record not found: %s/%s", origin, sourceID)
	}
	return nil
}

// DeleteRecord removes a record from the catalog.
func (s *Storage) DeleteRecord(origin models.Origin, sourceID string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE origin = ? AND source_id = ?`, string(origin), sourceID)
	return err
}

// RecordScan records a scan in history.
func (s *Storage) RecordScan(origin models.Origin, target string, totalRecords, totalGroups, totalDuplicates int) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_history (origin, target, total_records, total_groups, total_duplicates)
		VALUES (?, ?, ?, ?, ?)
	`, string(origin), target, totalRecords, totalGroups, totalDuplicates)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
