// Package store defines the persistence interface for the pipeline:
// raw records, ranking snapshots, the spend ledger and the vocabulary.
package store

import (
	"context"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// Record is one cleaned input post or comment.
type Record struct {
	ID          string
	Source      string
	Title       string
	Body        string
	URL         string
	Replies     int
	Likes       int
	Language    string
	Timestamp   time.Time
	Tags        topic.TagSet
	ContentHash string
}

// RankingEntry is one row of a persisted ranking snapshot.
type RankingEntry struct {
	Rank      int
	Key       string
	Name      string
	Category  string
	Score     float64
	Tier      string
	Trend     string
	Mentions  int
	Sources   []string
	URLs      []string
	Tags      topic.TagSet
	Replies   int
	Likes     int
	FirstSeen time.Time
	Flagged   bool
	Need      *topic.InferredNeed
}

// Snapshot is the full ranking of one pipeline round.
type Snapshot struct {
	RoundID string
	TakenAt time.Time
	Entries []RankingEntry
}

// SpendEntry is one line of the oracle spend ledger.
type SpendEntry struct {
	Time         time.Time
	Model        string
	Operation    string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Store is the persistence interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// Records.
	SaveRecords(ctx context.Context, records []Record) error
	// FilterNewRecords returns the subset of records whose ID and
	// content hash have not been seen before.
	FilterNewRecords(ctx context.Context, records []Record) ([]Record, error)
	RecordCount(ctx context.Context) (int64, error)

	// Snapshots. RecentSnapshots returns newest first.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LatestSnapshot(ctx context.Context) (Snapshot, bool, error)
	RecentSnapshots(ctx context.Context, n int) ([]Snapshot, error)

	// Spend ledger. Month is formatted "2006-01" in UTC.
	AddSpend(ctx context.Context, entry SpendEntry) error
	MonthlySpend(ctx context.Context, month string) (float64, error)

	// Vocabulary with optimistic concurrency: SaveVocabulary fails with
	// internalerr.ErrVersionConflict when the stored version moved past
	// the one the caller loaded.
	LoadVocabulary(ctx context.Context) (config.Vocabulary, bool, error)
	SaveVocabulary(ctx context.Context, v config.Vocabulary) error

	Close() error
}
