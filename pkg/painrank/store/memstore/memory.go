// Package memstore provides an in-memory Store used in tests and
// one-shot runs where durability is not needed.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/internalerr"
	"github.com/cognicore/painrank/pkg/painrank/store"
)

// memStore implements the Store interface in memory
type memStore struct {
	mu sync.RWMutex

	records   map[string]store.Record
	hashes    map[string]struct{}
	snapshots []store.Snapshot
	ledger    []store.SpendEntry

	vocab    config.Vocabulary
	hasVocab bool
}

// New creates an empty in-memory store.
func New() store.Store {
	return &memStore{
		records: make(map[string]store.Record),
		hashes:  make(map[string]struct{}),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) SaveRecords(ctx context.Context, records []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", internalerr.ErrInvalidInput)
		}
		if prev, ok := m.records[r.ID]; ok {
			if prev.Replies > r.Replies {
				r.Replies = prev.Replies
			}
			if prev.Likes > r.Likes {
				r.Likes = prev.Likes
			}
		}
		m.records[r.ID] = copyRecord(r)
		if r.ContentHash != "" {
			m.hashes[r.ContentHash] = struct{}{}
		}
	}
	return nil
}

func (m *memStore) FilterNewRecords(ctx context.Context, records []store.Record) ([]store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fresh []store.Record
	for _, r := range records {
		if _, ok := m.records[r.ID]; ok {
			continue
		}
		if r.ContentHash != "" {
			if _, ok := m.hashes[r.ContentHash]; ok {
				continue
			}
		}
		fresh = append(fresh, r)
	}
	return fresh, nil
}

func (m *memStore) RecordCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	if snap.RoundID == "" {
		return fmt.Errorf("%w: snapshot without round id", internalerr.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copySnapshot(snap)
	for i, existing := range m.snapshots {
		if existing.RoundID == snap.RoundID {
			m.snapshots[i] = cp
			return nil
		}
	}
	m.snapshots = append(m.snapshots, cp)
	return nil
}

func (m *memStore) LatestSnapshot(ctx context.Context) (store.Snapshot, bool, error) {
	snaps, err := m.RecentSnapshots(ctx, 1)
	if err != nil || len(snaps) == 0 {
		return store.Snapshot{}, false, err
	}
	return snaps[0], true, nil
}

func (m *memStore) RecentSnapshots(ctx context.Context, n int) ([]store.Snapshot, error) {
	if n <= 0 {
		n = 4
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]store.Snapshot, len(m.snapshots))
	copy(ordered, m.snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].TakenAt.Equal(ordered[j].TakenAt) {
			return ordered[i].TakenAt.After(ordered[j].TakenAt)
		}
		return ordered[i].RoundID > ordered[j].RoundID
	})
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	out := make([]store.Snapshot, len(ordered))
	for i, snap := range ordered {
		out[i] = copySnapshot(snap)
	}
	return out, nil
}

func (m *memStore) AddSpend(ctx context.Context, entry store.SpendEntry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = append(m.ledger, entry)
	return nil
}

func (m *memStore) MonthlySpend(ctx context.Context, month string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, e := range m.ledger {
		if e.Time.UTC().Format("2006-01") == month {
			total += e.CostUSD
		}
	}
	return total, nil
}

func (m *memStore) LoadVocabulary(ctx context.Context) (config.Vocabulary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasVocab {
		return config.Vocabulary{}, false, nil
	}
	return m.vocab.Clone(), true, nil
}

func (m *memStore) SaveVocabulary(ctx context.Context, v config.Vocabulary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasVocab && m.vocab.Version != v.Version {
		return fmt.Errorf("%w: stored version %d, caller has %d",
			internalerr.ErrVersionConflict, m.vocab.Version, v.Version)
	}

	cp := v.Clone()
	cp.Version = v.Version + 1
	m.vocab = cp
	m.hasVocab = true
	return nil
}

func copyRecord(r store.Record) store.Record {
	r.Tags = r.Tags.Clone()
	return r
}

func copySnapshot(snap store.Snapshot) store.Snapshot {
	cp := snap
	cp.Entries = make([]store.RankingEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		ec := e
		ec.Sources = append([]string(nil), e.Sources...)
		ec.URLs = append([]string(nil), e.URLs...)
		ec.Tags = e.Tags.Clone()
		ec.Need = e.Need.Clone()
		cp.Entries[i] = ec
	}
	return cp
}
