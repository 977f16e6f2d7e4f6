package corpus

import "strings"

// ChunkConfig sizes passages in estimated tokens.
type ChunkConfig struct {
	Size    int // target passage size
	Overlap int // carried over between consecutive passages
	Min     int // smaller passages are dropped
}

// DefaultChunkConfig suits retrieval snippets of a few hundred words.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: 400, Overlap: 40, Min: 3}
}

func (c ChunkConfig) withDefaults() ChunkConfig {
	d := DefaultChunkConfig()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = d.Overlap
		if c.Overlap >= c.Size {
			c.Overlap = 0
		}
	}
	if c.Min <= 0 {
		c.Min = d.Min
	}
	return c
}

// EstimateTokens approximates a token count from the number of words.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := int(float64(len(strings.Fields(text))) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Chunk walks tree and cuts its text into passages. Consecutive untitled
// siblings, such as transcript paragraphs, are packed together first.
func Chunk(tree *Tree, cfg ChunkConfig) []Passage {
	cfg = cfg.withDefaults()
	var out []Passage
	walkNodes(tree.Children, nil, cfg, &out)
	for i := range out {
		out[i].Index = i
	}
	return out
}

func walkNodes(nodes []*Node, breadcrumb []string, cfg ChunkConfig, out *[]Passage) {
	var loose []string
	page := 0
	flush := func() {
		if len(loose) > 0 {
			emit(strings.Join(loose, "\n\n"), breadcrumb, page, cfg, out)
			loose = nil
		}
	}
	for _, n := range nodes {
		if n.Title == "" && len(n.Children) == 0 {
			if len(loose) == 0 {
				page = n.Page
			}
			loose = append(loose, n.Text)
			continue
		}
		flush()
		bc := append(append([]string(nil), breadcrumb...), n.Title)
		if n.Title == "" {
			bc = breadcrumb
		}
		emit(n.Text, bc, n.Page, cfg, out)
		walkNodes(n.Children, bc, cfg, out)
	}
	flush()
}

func emit(text string, breadcrumb []string, page int, cfg ChunkConfig, out *[]Passage) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	parts := []string{text}
	if EstimateTokens(text) > cfg.Size {
		parts = splitText(text, cfg.Size, cfg.Overlap)
	}
	for _, p := range parts {
		if EstimateTokens(p) < cfg.Min {
			continue
		}
		*out = append(*out, Passage{
			Text:       p,
			Breadcrumb: append([]string(nil), breadcrumb...),
			Page:       page,
		})
	}
}

// splitText packs paragraphs up to target tokens. Oversized paragraphs are
// split on sentence boundaries.
func splitText(text string, target, overlap int) []string {
	var parts []string
	var current strings.Builder
	tokens := 0
	for _, para := range splitParagraphs(text) {
		n := EstimateTokens(para)
		if n > target {
			if tokens > 0 {
				parts = append(parts, current.String())
				current.Reset()
				tokens = 0
			}
			parts = append(parts, pack(splitSentences(para), " ", target, overlap)...)
			continue
		}
		if tokens+n > target && tokens > 0 {
			parts = append(parts, current.String())
			carry := tail(current.String(), overlap)
			current.Reset()
			tokens = 0
			if carry != "" {
				current.WriteString(carry)
				tokens = EstimateTokens(carry)
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		tokens += n
	}
	if tokens > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// pack joins pieces with sep up to target tokens per part.
func pack(pieces []string, sep string, target, overlap int) []string {
	var parts []string
	var current strings.Builder
	tokens := 0
	for _, s := range pieces {
		n := EstimateTokens(s)
		if tokens+n > target && tokens > 0 {
			parts = append(parts, current.String())
			carry := tail(current.String(), overlap)
			current.Reset()
			tokens = 0
			if carry != "" {
				current.WriteString(carry)
				tokens = EstimateTokens(carry)
			}
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(s)
		tokens += n
	}
	if tokens > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		current.WriteByte(c)
		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) && text[i+1] == ' ' {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// tail returns roughly the last n tokens of text.
func tail(text string, n int) string {
	words := strings.Fields(text)
	keep := int(float64(n) / 1.33)
	if keep <= 0 || len(words) <= keep {
		return ""
	}
	return strings.Join(words[len(words)-keep:], " ")
}
