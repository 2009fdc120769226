// Package sqlite provides the durable Store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/internalerr"
	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and initializes
// the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	title TEXT,
	body TEXT,
	url TEXT,
	replies INTEGER DEFAULT 0,
	likes INTEGER DEFAULT 0,
	language TEXT,
	timestamp TEXT,
	tags TEXT,
	content_hash TEXT,
	created_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_hash ON records(content_hash);

CREATE TABLE IF NOT EXISTS snapshots (
	round_id TEXT PRIMARY KEY,
	taken_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_entries (
	round_id TEXT NOT NULL,
	rank INTEGER NOT NULL,
	key TEXT NOT NULL,
	name TEXT,
	category TEXT,
	score REAL,
	tier TEXT,
	trend TEXT,
	mentions INTEGER,
	sources TEXT,
	urls TEXT,
	tags TEXT,
	replies INTEGER,
	likes INTEGER,
	first_seen TEXT,
	flagged INTEGER DEFAULT 0,
	need TEXT,
	PRIMARY KEY(round_id, rank),
	FOREIGN KEY(round_id) REFERENCES snapshots(round_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS spend_ledger (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	model TEXT,
	operation TEXT,
	input_tokens INTEGER DEFAULT 0,
	output_tokens INTEGER DEFAULT 0,
	cost_usd REAL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS vocabulary (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	payload TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveRecords upserts records, keeping the larger interaction counts
// when the same post is seen again.
func (s *sqliteStore) SaveRecords(ctx context.Context, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records (id, source, title, body, url, replies, likes, language, timestamp, tags, content_hash, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	replies=MAX(replies, excluded.replies),
	likes=MAX(likes, excluded.likes),
	content_hash=excluded.content_hash;
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", internalerr.ErrInvalidInput)
		}
		tagsJSON, err := json.Marshal(r.Tags)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			r.ID, r.Source, r.Title, r.Body, r.URL,
			r.Replies, r.Likes, r.Language,
			r.Timestamp.UTC().Format(time.RFC3339),
			string(tagsJSON), r.ContentHash, now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FilterNewRecords returns records whose ID and content hash are unseen.
func (s *sqliteStore) FilterNewRecords(ctx context.Context, records []store.Record) ([]store.Record, error) {
	var fresh []store.Record
	for _, r := range records {
		var exists int
		err := s.db.QueryRowContext(ctx, `
SELECT EXISTS(
	SELECT 1 FROM records
	WHERE id = ? OR (content_hash <> '' AND content_hash = ?)
);
`, r.ID, r.ContentHash).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			fresh = append(fresh, r)
		}
	}
	return fresh, nil
}

// RecordCount returns the number of stored records.
func (s *sqliteStore) RecordCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// SaveSnapshot writes a ranking snapshot in one transaction. Saving the
// same round again replaces its entries.
func (s *sqliteStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	if snap.RoundID == "" {
		return fmt.Errorf("%w: snapshot without round id", internalerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshots (round_id, taken_at) VALUES (?, ?)
ON CONFLICT(round_id) DO UPDATE SET taken_at=excluded.taken_at;
`, snap.RoundID, snap.TakenAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_entries WHERE round_id=?`, snap.RoundID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshot_entries
	(round_id, rank, key, name, category, score, tier, trend, mentions,
	 sources, urls, tags, replies, likes, first_seen, flagged, need)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		sourcesJSON, err := json.Marshal(e.Sources)
		if err != nil {
			return err
		}
		urlsJSON, err := json.Marshal(e.URLs)
		if err != nil {
			return err
		}
		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			return err
		}
		needJSON, err := json.Marshal(e.Need)
		if err != nil {
			return err
		}
		flagged := 0
		if e.Flagged {
			flagged = 1
		}
		_, err = stmt.ExecContext(ctx,
			snap.RoundID, e.Rank, e.Key, e.Name, e.Category,
			e.Score, e.Tier, e.Trend, e.Mentions,
			string(sourcesJSON), string(urlsJSON), string(tagsJSON),
			e.Replies, e.Likes,
			e.FirstSeen.UTC().Format(time.RFC3339),
			flagged, string(needJSON),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestSnapshot returns the most recent snapshot.
func (s *sqliteStore) LatestSnapshot(ctx context.Context) (store.Snapshot, bool, error) {
	snaps, err := s.RecentSnapshots(ctx, 1)
	if err != nil {
		return store.Snapshot{}, false, err
	}
	if len(snaps) == 0 {
		return store.Snapshot{}, false, nil
	}
	return snaps[0], true, nil
}

// RecentSnapshots returns up to n snapshots, newest first.
func (s *sqliteStore) RecentSnapshots(ctx context.Context, n int) ([]store.Snapshot, error) {
	if n <= 0 {
		n = 4
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT round_id, taken_at
FROM snapshots
ORDER BY taken_at DESC, round_id DESC
LIMIT ?;
`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []store.Snapshot
	for rows.Next() {
		var snap store.Snapshot
		var takenAt string
		if err := rows.Scan(&snap.RoundID, &takenAt); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339, takenAt); perr == nil {
			snap.TakenAt = parsed
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		entries, err := s.loadEntries(ctx, snaps[i].RoundID)
		if err != nil {
			return nil, err
		}
		snaps[i].Entries = entries
	}
	return snaps, nil
}

func (s *sqliteStore) loadEntries(ctx context.Context, roundID string) ([]store.RankingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT rank, key, name, category, score, tier, trend, mentions,
       sources, urls, tags, replies, likes, first_seen, flagged, need
FROM snapshot_entries
WHERE round_id = ?
ORDER BY rank;
`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.RankingEntry
	for rows.Next() {
		var (
			e         store.RankingEntry
			sources   string
			urls      string
			tags      string
			firstSeen string
			flagged   int
			need      string
		)
		if err := rows.Scan(&e.Rank, &e.Key, &e.Name, &e.Category, &e.Score,
			&e.Tier, &e.Trend, &e.Mentions, &sources, &urls, &tags,
			&e.Replies, &e.Likes, &firstSeen, &flagged, &need); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(urls), &e.URLs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, err
		}
		if need != "" && need != "null" {
			var inferred topic.InferredNeed
			if err := json.Unmarshal([]byte(need), &inferred); err != nil {
				return nil, err
			}
			e.Need = &inferred
		}
		if parsed, perr := time.Parse(time.RFC3339, firstSeen); perr == nil {
			e.FirstSeen = parsed
		}
		e.Flagged = flagged != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddSpend appends one ledger entry.
func (s *sqliteStore) AddSpend(ctx context.Context, entry store.SpendEntry) error {
	ts := entry.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO spend_ledger (ts, model, operation, input_tokens, output_tokens, cost_usd)
VALUES (?, ?, ?, ?, ?, ?);
`, ts.UTC().Format(time.RFC3339), entry.Model, entry.Operation,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD)
	return err
}

// MonthlySpend sums the ledger for one "2006-01" month.
func (s *sqliteStore) MonthlySpend(ctx context.Context, month string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(cost_usd), 0)
FROM spend_ledger
WHERE substr(ts, 1, 7) = ?;
`, month).Scan(&total)
	return total, err
}

// LoadVocabulary reads the stored vocabulary.
func (s *sqliteStore) LoadVocabulary(ctx context.Context) (config.Vocabulary, bool, error) {
	var (
		version int
		payload string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, payload FROM vocabulary WHERE id=1`).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return config.Vocabulary{}, false, nil
	}
	if err != nil {
		return config.Vocabulary{}, false, err
	}

	var v config.Vocabulary
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return config.Vocabulary{}, false, err
	}
	v.Version = version
	return v, true, nil
}

// SaveVocabulary writes the vocabulary, bumping its version. The save
// is rejected when the stored version no longer matches the one the
// caller loaded.
func (s *sqliteStore) SaveVocabulary(ctx context.Context, v config.Vocabulary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stored int
	err = tx.QueryRowContext(ctx, `SELECT version FROM vocabulary WHERE id=1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		stored = 0
	case err != nil:
		return err
	}

	if stored != 0 && stored != v.Version {
		return fmt.Errorf("%w: stored version %d, caller has %d",
			internalerr.ErrVersionConflict, stored, v.Version)
	}

	next := v.Version + 1
	v.Version = next
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO vocabulary (id, version, payload) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET version=excluded.version, payload=excluded.payload;
`, next, string(payload)); err != nil {
		return err
	}

	return tx.Commit()
}
