// Package clean normalizes raw records before they enter the funnel:
// markup stripping, body truncation, content hashing and in-batch
// deduplication.
package clean

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/painrank/pkg/painrank/store"
)

// Cleaner normalizes record text.
type Cleaner struct {
	// MaxBodyRunes truncates longer bodies; zero means no limit.
	MaxBodyRunes int
}

// Clean returns cleaned copies of records with content hashes set,
// dropping records that duplicate an earlier record in the same batch
// and records with no usable text at all.
func (c *Cleaner) Clean(records []store.Record) []store.Record {
	seen := make(map[string]struct{}, len(records))
	var out []store.Record

	for _, r := range records {
		r.Title = collapse(StripMarkup(r.Title))
		r.Body = collapse(StripMarkup(r.Body))
		if c.MaxBodyRunes > 0 {
			r.Body = Truncate(r.Body, c.MaxBodyRunes)
		}
		if r.Title == "" && r.Body == "" {
			continue
		}

		r.ContentHash = Hash(r.Title, r.Body)
		if _, dup := seen[r.ContentHash]; dup {
			continue
		}
		seen[r.ContentHash] = struct{}{}
		out = append(out, r)
	}
	return out
}

// StripMarkup removes HTML tags, keeping text content. Plain text
// passes through unchanged.
func StripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	tok := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.Write(tok.Text())
		}
	}
	return sb.String()
}

// Hash returns the md5 hex digest of title and body, the identity used
// for cross-round deduplication.
func Hash(title, body string) string {
	sum := md5.Sum([]byte(title + "\n" + body))
	return hex.EncodeToString(sum[:])
}

// Truncate cuts s to at most n runes, appending an ellipsis when it
// actually cut something.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
