// Package ingest loads raw community records from JSONL export files.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

// line mirrors one JSONL row as the crawlers export it.
type line struct {
	ID        string              `json:"id"`
	Source    string              `json:"source"`
	Title     string              `json:"title"`
	Body      string              `json:"text"`
	URL       string              `json:"url"`
	Replies   int                 `json:"replies"`
	Likes     int                 `json:"likes"`
	Language  string              `json:"language"`
	Timestamp time.Time           `json:"timestamp"`
	Tags      map[string][]string `json:"tags"`
}

// LoadFromJSONL loads records from a JSONL file. Malformed lines are
// skipped with a warning; a file with no valid lines is an error.
func LoadFromJSONL(path string, logger *slog.Logger) ([]store.Record, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var records []store.Record
	for i, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			logger.Warn("skipping malformed line", "file", path, "line", i+1, "error", err)
			continue
		}
		records = append(records, store.Record{
			ID:        l.ID,
			Source:    l.Source,
			Title:     l.Title,
			Body:      l.Body,
			URL:       l.URL,
			Replies:   l.Replies,
			Likes:     l.Likes,
			Language:  l.Language,
			Timestamp: l.Timestamp,
			Tags:      topic.TagSet(l.Tags),
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid records in %s", path)
	}
	return records, nil
}
