package pathstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/notesmith/internal/retrieval"
)

// Passage is the value stored per passage node.
type Passage struct {
	Text    string            `json:"text"`
	DocType string            `json:"doc_type,omitempty"`
	Source  string            `json:"source,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Retriever serves passages stored under {prefix}/topics. Results keep the
// server's scan order and are ranked by position.
type Retriever struct {
	client *Client
	prefix string
	log    *slog.Logger
}

func NewRetriever(c *Client, prefix string, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{client: c, prefix: strings.Trim(prefix, "/"), log: log}
}

func (r *Retriever) topicsKey() string {
	if r.prefix == "" {
		return "topics"
	}
	return r.prefix + "/topics"
}

func (r *Retriever) Retrieve(ctx context.Context, query, topic string, k int) ([]retrieval.Item, error) {
	key := r.topicsKey()
	if topic != "" {
		key += "/" + topic
	}
	nodes, err := r.client.ListChildren(ctx, key, k)
	if err != nil {
		return nil, err
	}
	items := make([]retrieval.Item, 0, len(nodes))
	for _, n := range nodes {
		var p Passage
		if err := json.Unmarshal(n.Value, &p); err != nil || strings.TrimSpace(p.Text) == "" {
			r.log.Debug("skipping node without passage text", "key", n.Key)
			continue
		}
		t := r.topicOf(n.Key)
		if topic != "" && t != topic {
			continue
		}
		items = append(items, retrieval.Item{
			Topic:   t,
			Text:    p.Text,
			Rank:    1 / float64(len(items)+1),
			DocType: p.DocType,
			Source:  p.Source,
			Extra:   p.Extra,
		})
		if k > 0 && len(items) == k {
			break
		}
	}
	return items, nil
}

// topicOf extracts the topic segment from {prefix}/topics/{topic}/{id}.
func (r *Retriever) topicOf(key string) string {
	rest, ok := strings.CutPrefix(strings.Trim(key, "/"), r.topicsKey()+"/")
	if !ok {
		return ""
	}
	topic, _, _ := strings.Cut(rest, "/")
	return topic
}

// Publish replaces the stored passages of every topic present in items.
func (r *Retriever) Publish(ctx context.Context, items []retrieval.Item) (int, error) {
	cleared := make(map[string]bool)
	n := 0
	for _, it := range items {
		if it.Topic == "" {
			continue
		}
		if !cleared[it.Topic] {
			if err := r.client.DeleteNode(ctx, r.topicsKey()+"/"+it.Topic, true); err != nil {
				return n, err
			}
			cleared[it.Topic] = true
		}
		key := fmt.Sprintf("%s/%s/%s", r.topicsKey(), it.Topic, uuid.NewString())
		err := r.client.PutNode(ctx, key, NodeRequest{
			Value:      Passage{Text: it.Text, DocType: it.DocType, Source: it.Source, Extra: it.Extra},
			MemoryType: "passage",
			Source:     it.Source,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	r.log.Info("corpus published", "passages", n, "topics", len(cleared))
	return n, nil
}
