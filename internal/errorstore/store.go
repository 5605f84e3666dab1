// Package errorstore is the persistent, fingerprinted repository of past
// build diagnostics and the fixes that empirically resolved them, per
// spec.md §4.2 and §6. Grounded on the four-table schema spec.md §6
// prescribes, backed by github.com/mattn/go-sqlite3 (the embedded
// relational database dependency donated by the 3rg0n-Bjarne example).
package errorstore

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogErrorStore = base.NewLogCategory("ErrorStore")

const schemaVersion = 1

const ddl = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS error_patterns (
	id TEXT PRIMARY KEY,
	normalized_text TEXT NOT NULL,
	category TEXT NOT NULL,
	embedding BLOB,
	occurrences INTEGER NOT NULL DEFAULT 0,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_patterns_text ON error_patterns(normalized_text);
CREATE TABLE IF NOT EXISTS error_fixes (
	id TEXT PRIMARY KEY,
	pattern_id TEXT NOT NULL REFERENCES error_patterns(id),
	action TEXT NOT NULL,
	description TEXT NOT NULL,
	successes INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	UNIQUE(pattern_id, action)
);
CREATE TABLE IF NOT EXISTS fix_history (
	id TEXT PRIMARY KEY,
	pattern_id TEXT NOT NULL,
	fix_id TEXT NOT NULL,
	project_path TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	outcome TEXT NOT NULL
);
`

// Store is the embedded-database-backed error store. Concurrent writers
// serialize through SQLite's own transaction mechanism; readers may be
// concurrent, per spec.md §4.2's invariant.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the SQLite file at path. An empty path opens
// an in-memory store, useful for tests and for a degraded "no suggestions"
// mode when the configured cache directory is unwritable.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("errorstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers anyway; avoid lock contention churn

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("errorstore: migrate schema: %w", err)
	}
	if err := setMetaIfAbsent(db, "schema_version", fmt.Sprint(schemaVersion)); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func setMetaIfAbsent(db *sql.DB, key, value string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Pattern is the normalized-diagnostic record described in spec.md §3.
type Pattern struct {
	ID             string
	NormalizedText string
	Category       string
	Occurrences    int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// RecordDiagnostic normalizes raw, upserts its pattern, and bumps the
// occurrence counter / last-seen timestamp. Implements spec.md §4.2's
// record_diagnostic operation.
func (s *Store) RecordDiagnostic(raw string) (patternID string, err error) {
	normalized := Normalize(raw)
	category := Category(normalized)
	now := time.Now()

	existing, err := s.findExact(normalized)
	if err != nil {
		return "", err
	}
	if existing != nil {
		_, err = s.db.Exec(`UPDATE error_patterns SET occurrences = occurrences + 1, last_seen = ? WHERE id = ?`, now, existing.ID)
		return existing.ID, err
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO error_patterns(id, normalized_text, category, occurrences, first_seen, last_seen) VALUES (?, ?, ?, 1, ?, ?)`,
		id, normalized, category, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("errorstore: insert pattern: %w", err)
	}
	return id, nil
}

func (s *Store) findExact(normalized string) (*Pattern, error) {
	row := s.db.QueryRow(`SELECT id, normalized_text, category, occurrences, first_seen, last_seen FROM error_patterns WHERE normalized_text = ?`, normalized)
	var p Pattern
	if err := row.Scan(&p.ID, &p.NormalizedText, &p.Category, &p.Occurrences, &p.FirstSeen, &p.LastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("errorstore: query pattern: %w", err)
	}
	return &p, nil
}

// Fix is the structured remediation record of spec.md §3.
type Fix struct {
	ID          string
	PatternID   string
	Action      string
	Description string
	Successes   int
	Failures    int
}

func (f Fix) Confidence() float64 {
	total := f.Successes + f.Failures
	if total == 0 {
		return 0
	}
	return float64(f.Successes) / float64(total)
}

// RecordFix upserts a (pattern, action) fix record, increments its
// success/failure counter, and appends an immutable history entry — spec.md
// §4.2's record_fix operation. Counters are never decremented.
func (s *Store) RecordFix(patternID, action, description, projectPath string, outcome bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var fixID string
	row := tx.QueryRow(`SELECT id FROM error_fixes WHERE pattern_id = ? AND action = ?`, patternID, action)
	switch err := row.Scan(&fixID); err {
	case nil:
		column := "failures"
		if outcome {
			column = "successes"
		}
		if _, err := tx.Exec(fmt.Sprintf(`UPDATE error_fixes SET %s = %s + 1 WHERE id = ?`, column, column), fixID); err != nil {
			return err
		}
	case sql.ErrNoRows:
		fixID = uuid.NewString()
		successes, failures := 0, 0
		if outcome {
			successes = 1
		} else {
			failures = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO error_fixes(id, pattern_id, action, description, successes, failures) VALUES (?, ?, ?, ?, ?, ?)`,
			fixID, patternID, action, description, successes, failures,
		); err != nil {
			return err
		}
	default:
		return err
	}

	outcomeStr := "failure"
	if outcome {
		outcomeStr = "success"
	}
	if _, err := tx.Exec(
		`INSERT INTO fix_history(id, pattern_id, fix_id, project_path, timestamp, outcome) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), patternID, fixID, projectPath, time.Now(), outcomeStr,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// FindSimilar matches raw against stored patterns: an exact fingerprint
// (normalized-text) hit first, otherwise token-Jaccard similarity, keeping
// up to limit results with score >= threshold, sorted descending —
// spec.md §4.2's find_similar.
func (s *Store) FindSimilar(raw string, threshold float64, limit int) ([]ScoredPattern, error) {
	normalized := Normalize(raw)

	if exact, err := s.findExact(normalized); err != nil {
		return nil, err
	} else if exact != nil {
		return []ScoredPattern{{Pattern: *exact, Score: 1.0}}, nil
	}

	rows, err := s.db.Query(`SELECT id, normalized_text, category, occurrences, first_seen, last_seen FROM error_patterns`)
	if err != nil {
		return nil, fmt.Errorf("errorstore: scan patterns: %w", err)
	}
	defer rows.Close()

	var scored []ScoredPattern
	for rows.Next() {
		var p Pattern
		if err := rows.Scan(&p.ID, &p.NormalizedText, &p.Category, &p.Occurrences, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, err
		}
		score := jaccard(normalized, p.NormalizedText)
		if score >= threshold {
			scored = append(scored, ScoredPattern{Pattern: p, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

type ScoredPattern struct {
	Pattern Pattern
	Score   float64
}

// RankedFix is one suggested remediation, confidence-weighted by pattern
// similarity per spec.md §4.2's suggest_fixes.
type RankedFix struct {
	Fix        Fix
	Similarity float64
	Rank       float64 // confidence * similarity
}

// SuggestFixes joins find_similar's results to the fix table and orders by
// confidence * pattern-similarity, discarding entries below
// confidenceThreshold.
func (s *Store) SuggestFixes(raw string, similarityThreshold, confidenceThreshold float64, limit int) ([]RankedFix, error) {
	similar, err := s.FindSimilar(raw, similarityThreshold, 0)
	if err != nil {
		return nil, err
	}

	var ranked []RankedFix
	for _, sp := range similar {
		rows, err := s.db.Query(`SELECT id, pattern_id, action, description, successes, failures FROM error_fixes WHERE pattern_id = ?`, sp.Pattern.ID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var f Fix
			if err := rows.Scan(&f.ID, &f.PatternID, &f.Action, &f.Description, &f.Successes, &f.Failures); err != nil {
				rows.Close()
				return nil, err
			}
			confidence := f.Confidence()
			if confidence < confidenceThreshold {
				continue
			}
			ranked = append(ranked, RankedFix{Fix: f, Similarity: sp.Score, Rank: confidence * sp.Score})
		}
		rows.Close()
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Rank > ranked[j].Rank })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
