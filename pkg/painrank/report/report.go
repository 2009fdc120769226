// Package report renders the weekly markdown digest comparing the
// current week's ranking against the previous one.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cognicore/painrank/pkg/painrank/store"
)

// Meta describes the reporting window.
type Meta struct {
	From   time.Time
	To     time.Time
	Rounds int
}

// Threshold for calling a week-over-week change a rise or a fall.
const changeDelta = 3.0

// Build renders the weekly report. Both inputs may span several rounds;
// per topic the best score of the week is used.
func Build(current, previous []store.RankingEntry, meta Meta) string {
	cur := bestByKey(current)
	prev := bestByKey(previous)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# 周报 Weekly Pain-Point Report\n\n")
	fmt.Fprintf(&sb, "%s ~ %s · %d rounds · %d topics\n\n",
		meta.From.Format("2006-01-02"), meta.To.Format("2006-01-02"),
		meta.Rounds, len(cur))

	top := sortedEntries(cur)
	if len(top) > 10 {
		top = top[:10]
	}
	sb.WriteString("## Top 10\n\n")
	sb.WriteString("| # | 痛点 | 分类 | 分数 | 提及 | 等级 | 趋势 |\n")
	sb.WriteString("|---|------|------|------|------|------|------|\n")
	for i, e := range top {
		name := e.Name
		if e.Flagged {
			name += " ⚠"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %.1f | %d | %s | %s |\n",
			i+1, name, e.Category, e.Score, e.Mentions, e.Tier, e.Trend)
	}
	sb.WriteString("\n")

	var fresh, risers, fallers []store.RankingEntry
	var vanished []store.RankingEntry
	for _, e := range sortedEntries(cur) {
		old, ok := prev[e.Key]
		if !ok {
			fresh = append(fresh, e)
			continue
		}
		switch delta := e.Score - old.Score; {
		case delta > changeDelta:
			risers = append(risers, e)
		case delta < -changeDelta:
			fallers = append(fallers, e)
		}
	}
	for _, e := range sortedEntries(prev) {
		if _, ok := cur[e.Key]; !ok {
			vanished = append(vanished, e)
		}
	}

	section(&sb, "## 新增 New this week", fresh, func(e store.RankingEntry) string {
		return fmt.Sprintf("- **%s** (%s, %.1f)", e.Name, e.Category, e.Score)
	})
	section(&sb, "## 上升 Rising", risers, func(e store.RankingEntry) string {
		return fmt.Sprintf("- **%s** %.1f (was %.1f)", e.Name, e.Score, prev[e.Key].Score)
	})
	section(&sb, "## 下降 Falling", fallers, func(e store.RankingEntry) string {
		return fmt.Sprintf("- **%s** %.1f (was %.1f)", e.Name, e.Score, prev[e.Key].Score)
	})
	section(&sb, "## 消失 Dropped off", vanished, func(e store.RankingEntry) string {
		return fmt.Sprintf("- %s (last %.1f)", e.Name, e.Score)
	})

	sb.WriteString("## 金牌需求 Gold-tier needs\n\n")
	gold := 0
	for _, e := range sortedEntries(cur) {
		if e.Tier != "gold" || e.Need.Empty() {
			continue
		}
		gold++
		fmt.Fprintf(&sb, "- **%s** → %s\n", e.Name, e.Need.Need)
	}
	if gold == 0 {
		sb.WriteString("_none this week_\n")
	}

	return sb.String()
}

func section(sb *strings.Builder, title string, entries []store.RankingEntry, line func(store.RankingEntry) string) {
	sb.WriteString(title + "\n\n")
	if len(entries) == 0 {
		sb.WriteString("_none_\n\n")
		return
	}
	for _, e := range entries {
		sb.WriteString(line(e) + "\n")
	}
	sb.WriteString("\n")
}

// bestByKey keeps the highest-scoring entry per topic key.
func bestByKey(entries []store.RankingEntry) map[string]store.RankingEntry {
	out := make(map[string]store.RankingEntry, len(entries))
	for _, e := range entries {
		if best, ok := out[e.Key]; !ok || e.Score > best.Score {
			out[e.Key] = e
		}
	}
	return out
}

func sortedEntries(m map[string]store.RankingEntry) []store.RankingEntry {
	out := make([]store.RankingEntry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	return out
}
