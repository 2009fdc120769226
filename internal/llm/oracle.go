package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cognicore/painrank/pkg/painrank"
	"github.com/cognicore/painrank/pkg/painrank/aggregate"
	"github.com/cognicore/painrank/pkg/painrank/funnel"
	"github.com/cognicore/painrank/pkg/painrank/store"
	"github.com/cognicore/painrank/pkg/painrank/topic"
)

var (
	_ funnel.Classifier     = (*Client)(nil)
	_ painrank.Extractor    = (*Client)(nil)
	_ painrank.NeedInferrer = (*Client)(nil)
	_ painrank.NeedReviewer = (*Client)(nil)
	_ aggregate.MergeOracle = (*Client)(nil)
)

// judgementLine accepts one judgement per reply line, tolerating an
// echoed "N." numbering prefix. Anything else on a line is not a
// judgement; globbing loose digits out of prose would misalign every
// title after the first stray match.
var judgementLine = regexp.MustCompile(`^(?:\d+\s*[.)、:：]\s*)?([012])$`)

// ClassifyBatch judges titles for pain-point relevance: 0 irrelevant,
// 1 uncertain, 2 definite.
func (c *Client) ClassifyBatch(ctx context.Context, titles []string) ([]funnel.Class, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, title := range titles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
	}

	system := "You screen GPU community post titles for real user pain points. " +
		"For each numbered title answer exactly one digit: " +
		"0 = not about a GPU problem, 1 = unclear, 2 = clearly a GPU pain point. " +
		"Reply with the digits only, one per line, in order."
	out, err := c.Chat(ctx, "classify", system, sb.String())
	if err != nil {
		return nil, err
	}

	classes := parseJudgements(out, len(titles))
	if len(classes) == 0 {
		return nil, fmt.Errorf("classify: no judgements in response")
	}
	return classes, nil
}

func parseJudgements(out string, n int) []funnel.Class {
	var classes []funnel.Class
	for _, line := range strings.Split(out, "\n") {
		m := judgementLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		switch m[1] {
		case "0":
			classes = append(classes, funnel.ClassIrrelevant)
		case "2":
			classes = append(classes, funnel.ClassDefinite)
		default:
			classes = append(classes, funnel.ClassUncertain)
		}
		if len(classes) == n {
			break
		}
	}
	return classes
}

type extractedPoint struct {
	PainPoint   string   `json:"pain_point"`
	Category    string   `json:"category"`
	Intensity   float64  `json:"intensity"`
	Evidence    string   `json:"evidence"`
	RecordIndex int      `json:"record_index"`
	Models      []string `json:"models"`
}

// Extract pulls pain-point mentions out of records, in batches. Deep
// analysis sees more body text than light. A failed batch is skipped;
// the error is returned only when every batch failed.
func (c *Client) Extract(ctx context.Context, records []store.Record, depth painrank.Depth) ([]topic.Mention, error) {
	bodyRunes := 400
	if depth == painrank.DepthLight {
		bodyRunes = 150
	}

	batchSize := c.ExtractBatch
	if batchSize <= 0 {
		batchSize = 10
	}

	var mentions []topic.Mention
	var lastErr error
	failed := 0
	batches := 0

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		batches++

		got, err := c.extractBatch(ctx, batch, bodyRunes)
		if err != nil {
			c.Logger.Warn("extract batch failed", "depth", string(depth),
				"batch_start", start, "error", err)
			failed++
			lastErr = err
			continue
		}
		mentions = append(mentions, got...)
	}

	if batches > 0 && failed == batches {
		return nil, fmt.Errorf("extract: all %d batches failed: %w", batches, lastErr)
	}
	return mentions, nil
}

func (c *Client) extractBatch(ctx context.Context, batch []store.Record, bodyRunes int) ([]topic.Mention, error) {
	var sb strings.Builder
	for i, r := range batch {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i, r.Title, truncateRunes(r.Body, bodyRunes))
	}

	system := "You extract GPU user pain points from community posts. " +
		"Reply with a JSON array; one object per distinct pain point: " +
		`{"pain_point": short name, "category": one of ` +
		`性能|价格|散热|驱动|生态|显存|功耗|其他, "intensity": 0.0-1.0, ` +
		`"evidence": short quote, "record_index": source post number, ` +
		`"models": GPU models named}. Empty array if none.`
	out, err := c.Chat(ctx, "extract", system, sb.String())
	if err != nil {
		return nil, err
	}

	var points []extractedPoint
	if err := decodeArray(out, &points); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	var mentions []topic.Mention
	for _, p := range points {
		if strings.TrimSpace(p.PainPoint) == "" {
			continue
		}
		idx := p.RecordIndex
		if idx < 0 || idx >= len(batch) {
			idx = 0
		}
		r := batch[idx]

		m := topic.Mention{
			Label:     p.PainPoint,
			Category:  strings.TrimSpace(p.Category),
			Intensity: clamp01(p.Intensity),
			Evidence:  p.Evidence,
			Sources:   []string{r.Source},
			Replies:   r.Replies,
			Likes:     r.Likes,
			FirstSeen: r.Timestamp,
			Tags:      r.Tags.Clone(),
			Count:     1,
		}
		if r.URL != "" {
			m.SourceURLs = []string{r.URL}
		}
		if len(p.Models) > 0 {
			m.Tags = m.Tags.MergeFrom(topic.TagSet{"model": p.Models})
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}

type inferredPayload struct {
	HiddenNeed     string   `json:"hidden_need"`
	ReasoningChain []string `json:"reasoning_chain"`
	Confidence     float64  `json:"confidence"`
}

// InferNeed derives the latent user need behind a topic. Low-confidence
// answers are discarded and return nil.
func (c *Client) InferNeed(ctx context.Context, t *topic.Aggregated) (*topic.InferredNeed, error) {
	system := "You infer the latent user need behind a GPU pain point. " +
		`Reply with one JSON object: {"hidden_need": what the user actually ` +
		`wants, "reasoning_chain": list of inference steps, "confidence": 0.0-1.0}.`
	user := fmt.Sprintf("Pain point: %s\nCategory: %s\nEvidence: %s\nMentions: %d",
		t.Name, t.Category, t.Evidence, t.Count)

	out, err := c.Chat(ctx, "infer_need", system, user)
	if err != nil {
		return nil, err
	}

	floor := c.MinNeedConfidence
	if floor <= 0 {
		floor = 0.4
	}
	var payload inferredPayload
	if err := decodeObject(out, &payload); err != nil {
		return nil, fmt.Errorf("infer need: %w", err)
	}
	if strings.TrimSpace(payload.HiddenNeed) == "" || payload.Confidence < floor {
		return nil, nil
	}
	return &topic.InferredNeed{
		Need:           payload.HiddenNeed,
		ReasoningChain: payload.ReasoningChain,
		Confidence:     clamp01(payload.Confidence),
	}, nil
}

type reviewPayload struct {
	Verdict string `json:"verdict"`
	Comment string `json:"comment"`
}

// ReviewNeed has an inferred need judged as strong, moderate or weak.
func (c *Client) ReviewNeed(ctx context.Context, t *topic.Aggregated, need *topic.InferredNeed) (*topic.NeedReview, error) {
	system := "You review an inferred user need behind a GPU pain point for " +
		"plausibility and evidence support. " +
		`Reply with one JSON object: {"verdict": "strong"|"moderate"|"weak", "comment": one sentence}.`
	user := fmt.Sprintf("Pain point: %s\nInferred need: %s\nReasoning: %s\nConfidence: %.2f",
		t.Name, need.Need, strings.Join(need.ReasoningChain, " -> "), need.Confidence)

	out, err := c.Chat(ctx, "review_need", system, user)
	if err != nil {
		return nil, err
	}

	var payload reviewPayload
	if err := decodeObject(out, &payload); err != nil {
		return nil, fmt.Errorf("review need: %w", err)
	}
	return &topic.NeedReview{
		Verdict: topic.ParseVerdict(payload.Verdict),
		Comment: payload.Comment,
	}, nil
}

type mergePayload struct {
	Indices []int  `json:"indices"`
	Name    string `json:"name"`
}

// MergeCandidates asks which topic names describe the same pain point.
func (c *Client) MergeCandidates(ctx context.Context, names, categories []string) ([]aggregate.MergeGroup, error) {
	if len(names) != len(categories) {
		return nil, errors.New("merge: names and categories length mismatch")
	}

	var sb strings.Builder
	for i, name := range names {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n", i, name, categories[i])
	}

	system := "You deduplicate GPU pain-point topics. Topics describing the " +
		"same underlying problem, including translations across languages, " +
		"belong in one group. Never group topics from different categories. " +
		`Reply with a JSON array of groups: {"indices": [topic numbers], ` +
		`"name": best merged display name}. Topics that stand alone are omitted.`
	out, err := c.Chat(ctx, "merge", system, sb.String())
	if err != nil {
		return nil, err
	}

	var payloads []mergePayload
	if err := decodeArray(out, &payloads); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	groups := make([]aggregate.MergeGroup, 0, len(payloads))
	for _, p := range payloads {
		groups = append(groups, aggregate.MergeGroup{Indices: p.Indices, Name: p.Name})
	}
	return groups, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
