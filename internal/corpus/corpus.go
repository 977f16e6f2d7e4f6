// Package corpus indexes a directory of course material for retrieval.
//
// Every subdirectory of the root is one topic; its slug is the directory
// name. Files below it are parsed by extension, cut into passages and
// classified by doc type from their path, so "limits/transcripts/week1.txt"
// yields transcript passages for the "limits" topic.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/notesmith/internal/retrieval"
	"github.com/dgallion1/notesmith/internal/section"
)

// Options controls how a corpus is loaded.
type Options struct {
	Chunk       ChunkConfig
	PDFFallback bool
	Parallel    int
	Log         *slog.Logger
}

// Index holds the passages of a corpus in load order. It is read-only after
// Load and safe for concurrent use.
type Index struct {
	root     string
	passages []passage
}

type passage struct {
	item  retrieval.Item
	terms map[string]int
}

type sourceFile struct {
	topic, path, rel string
}

// Load parses every supported file under root.
func Load(ctx context.Context, root string, opts Options) (*Index, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}

	files, err := listSources(root, log)
	if err != nil {
		return nil, err
	}

	results := make([][]passage, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ps, err := loadFile(f, opts)
			if err != nil {
				log.Warn("skipping unreadable source", "path", f.rel, "error", err)
				return nil
			}
			results[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{root: root}
	for _, ps := range results {
		idx.passages = append(idx.passages, ps...)
	}
	log.Info("corpus loaded", "root", root, "files", len(files), "passages", len(idx.passages))
	return idx, nil
}

func listSources(root string, log *slog.Logger) ([]sourceFile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus root: %w", err)
	}
	var files []sourceFile
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		topic := section.Slugify(e.Name())
		if topic == "" {
			continue
		}
		dir := filepath.Join(root, e.Name())
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, _ := filepath.Rel(root, path)
			if !Supported(path) {
				log.Debug("unsupported file", "path", rel)
				return nil
			}
			files = append(files, sourceFile{topic: topic, path: path, rel: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk topic %s: %w", e.Name(), err)
		}
	}
	return files, nil
}

func loadFile(f sourceFile, opts Options) ([]passage, error) {
	p, err := ParserFor(f.path, opts.PDFFallback)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	tree, err := p.Parse(fh, filepath.Base(f.path))
	if err != nil {
		return nil, err
	}

	docType := docTypeOf(f.rel)
	var out []passage
	for _, c := range Chunk(tree, opts.Chunk) {
		extra := map[string]string{"title": tree.Title}
		if len(c.Breadcrumb) > 0 {
			extra["breadcrumb"] = strings.Join(c.Breadcrumb, " > ")
		}
		if c.Page > 0 {
			extra["page"] = strconv.Itoa(c.Page)
		}
		out = append(out, passage{
			item: retrieval.Item{
				Topic:   f.topic,
				Text:    c.Text,
				DocType: docType,
				Source:  f.rel,
				Extra:   extra,
			},
			terms: termCounts(c.Text),
		})
	}
	return out, nil
}

// docTypeOf classifies a corpus path. Anything after the topic directory
// can carry the type; PDFs default to slides.
func docTypeOf(rel string) string {
	parts := strings.Split(rel, "/")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	if dt := retrieval.ClassifyDocType(strings.Join(parts, "/")); dt != "" {
		return dt
	}
	if strings.EqualFold(filepath.Ext(rel), ".pdf") {
		return retrieval.DocSlides
	}
	return ""
}

// Len is the number of passages.
func (x *Index) Len() int { return len(x.passages) }

// Items returns every passage in load order.
func (x *Index) Items() []retrieval.Item {
	out := make([]retrieval.Item, len(x.passages))
	for i, p := range x.passages {
		out[i] = p.item
	}
	return out
}

// Retrieve ranks passages by log-scaled term overlap with query. Passages
// that share no term keep load order behind the matches, so a broad query
// enumerates the corpus.
func (x *Index) Retrieve(ctx context.Context, query, topic string, k int) ([]retrieval.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := termCounts(query)

	type scored struct {
		i     int
		score float64
	}
	var hits []scored
	for i, p := range x.passages {
		if topic != "" && p.item.Topic != topic {
			continue
		}
		var s float64
		for t := range q {
			if n := p.terms[t]; n > 0 {
				s += 1 + math.Log(float64(n))
			}
		}
		hits = append(hits, scored{i: i, score: s})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]retrieval.Item, len(hits))
	for j, h := range hits {
		it := x.passages[h.i].item
		it.Rank = h.score
		out[j] = it
	}
	return out, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "all": true, "are": true, "with": true,
	"that": true, "this": true, "from": true, "list": true, "files": true,
}

// termCounts lowercases s and counts its words of three or more letters.
// Topic slugs split on hyphens into separate terms.
func termCounts(s string) map[string]int {
	out := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		out[w]++
	}
	return out
}
