// Package retrieval turns topic slugs into bounded context text for the
// generation prompts.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"
)

// Doc types recognised in retrieved metadata.
const (
	DocTranscripts = "transcripts"
	DocExtraNotes  = "extra_notes"
	DocSlides      = "slides"
)

// DiscoveryQuery is the broad query used to enumerate a corpus.
const DiscoveryQuery = "List all the files"

// Item is one retrieved passage.
type Item struct {
	Topic   string            `json:"topic"`
	Text    string            `json:"text"`
	Rank    float64           `json:"rank"`
	DocType string            `json:"doc_type,omitempty"`
	Source  string            `json:"source,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Retriever fetches up to k passages for query. An empty topic means no
// topic filter.
type Retriever interface {
	Retrieve(ctx context.Context, query, topic string, k int) ([]Item, error)
}

// ClassifyDocType maps free-form type metadata onto one of the known doc
// types, or "" when nothing matches.
func ClassifyDocType(raw string) string {
	dt := strings.ToLower(raw)
	switch {
	case strings.Contains(dt, "transcript"):
		return DocTranscripts
	case strings.Contains(dt, "extra"), strings.Contains(dt, "note"):
		return DocExtraNotes
	case strings.Contains(dt, "slide"):
		return DocSlides
	}
	return ""
}

// Builder assembles context under a character budget.
type Builder struct {
	retriever Retriever
	log       *slog.Logger
}

func NewBuilder(r Retriever, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{retriever: r, log: log}
}

// Build walks topics in order, taking at most perTopicCap passages from each
// and truncating to the remaining budget. Budget counts passage runes only,
// not the [TOPIC ...] headers. A topic whose retrieval fails is skipped.
func (b *Builder) Build(ctx context.Context, topics []string, charBudget, perTopicCap int, docTypes ...string) (string, error) {
	if perTopicCap <= 0 || charBudget <= 0 {
		return "", nil
	}
	fetch := perTopicCap
	if len(docTypes) > 0 {
		fetch = perTopicCap * 4
	}

	budget := charBudget
	var chunks []string
	for _, topic := range topics {
		if budget <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		items, err := b.retriever.Retrieve(ctx, topic, topic, fetch)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			b.log.Warn("retrieval failed", "topic", topic, "error", err)
			continue
		}
		taken := 0
		for _, it := range items {
			if taken >= perTopicCap || budget <= 0 {
				break
			}
			if len(docTypes) > 0 && !matchesDocType(it.DocType, docTypes) {
				continue
			}
			snippet := strings.TrimSpace(it.Text)
			if snippet == "" {
				continue
			}
			snippet = truncateRunes(snippet, budget)
			chunks = append(chunks, fmt.Sprintf("[TOPIC %s]\n%s", topic, snippet))
			budget -= utf8.RuneCountInString(snippet)
			taken++
		}
	}
	return strings.Join(chunks, "\n\n"), nil
}

func matchesDocType(dt string, allowed []string) bool {
	if c := ClassifyDocType(dt); c != "" {
		dt = c
	}
	for _, a := range allowed {
		if a == dt {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// DiscoverTopics returns the sorted unique topics among the top k passages
// of an unfiltered retrieval.
func DiscoverTopics(ctx context.Context, r Retriever, k int) ([]string, error) {
	stats, err := Survey(ctx, r, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Topic
	}
	return out, nil
}

// TopicStat counts passages of one topic by doc type.
type TopicStat struct {
	Topic       string `json:"topic"`
	Transcripts int    `json:"transcripts"`
	ExtraNotes  int    `json:"extra_notes"`
	Slides      int    `json:"slides"`
	Other       int    `json:"other"`
}

// Total is the number of passages counted for the topic.
func (s TopicStat) Total() int { return s.Transcripts + s.ExtraNotes + s.Slides + s.Other }

// Survey is DiscoverTopics with per-topic doc-type counts.
func Survey(ctx context.Context, r Retriever, k int) ([]TopicStat, error) {
	items, err := r.Retrieve(ctx, DiscoveryQuery, "", k)
	if err != nil {
		return nil, fmt.Errorf("discover topics: %w", err)
	}
	byTopic := make(map[string]*TopicStat)
	for _, it := range items {
		if it.Topic == "" {
			continue
		}
		st, ok := byTopic[it.Topic]
		if !ok {
			st = &TopicStat{Topic: it.Topic}
			byTopic[it.Topic] = st
		}
		switch ClassifyDocType(it.DocType) {
		case DocTranscripts:
			st.Transcripts++
		case DocExtraNotes:
			st.ExtraNotes++
		case DocSlides:
			st.Slides++
		default:
			st.Other++
		}
	}
	out := make([]TopicStat, 0, len(byTopic))
	for _, st := range byTopic {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

// Static serves a fixed list of items, in order. It backs tests and dry runs.
type Static struct {
	Items []Item
}

func (s Static) Retrieve(ctx context.Context, query, topic string, k int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range s.Items {
		if topic != "" && it.Topic != topic {
			continue
		}
		out = append(out, it)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out, nil
}
