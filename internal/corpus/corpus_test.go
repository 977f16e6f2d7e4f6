package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dgallion1/notesmith/internal/retrieval"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func loadTestCorpus(t *testing.T) *Index {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"Limits/transcripts/week1.txt":   "Today we talk about limits and how a function approaches a value.",
		"Limits/extra/notes.md":          "# Epsilon delta\n\nThe epsilon delta definition of limits.",
		"Limits/readme.png":              "binary",
		"chain-rule/lecture.txt":         "The chain rule differentiates compositions.",
		"chain-rule/extra_notes/ex.html": "<html><body><p>Worked chain rule example with derivative steps.</p></body></html>",
		".hidden/skip.txt":               "never indexed",
		"stray.txt":                      "not in a topic directory",
	})
	idx, err := Load(context.Background(), root, Options{Chunk: ChunkConfig{Min: 1}})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestLoad_TopicsAndDocTypes(t *testing.T) {
	idx := loadTestCorpus(t)
	if idx.Len() != 4 {
		t.Fatalf("Len = %d, want 4", idx.Len())
	}
	items, err := idx.Retrieve(context.Background(), retrieval.DiscoveryQuery, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]string)
	for _, it := range items {
		got[it.Source] = it.Topic + "/" + it.DocType
	}
	want := map[string]string{
		"Limits/transcripts/week1.txt":   "limits/transcripts",
		"Limits/extra/notes.md":          "limits/extra_notes",
		"chain-rule/lecture.txt":         "chain-rule/",
		"chain-rule/extra_notes/ex.html": "chain-rule/extra_notes",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sources (-want +got):\n%s", diff)
	}

	topics, err := retrieval.DiscoverTopics(context.Background(), idx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"chain-rule", "limits"}, topics); diff != "" {
		t.Errorf("topics (-want +got):\n%s", diff)
	}
}

func TestRetrieve_RanksAndFilters(t *testing.T) {
	idx := loadTestCorpus(t)
	items, err := idx.Retrieve(context.Background(), "derivative example", "chain-rule", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Source != "chain-rule/extra_notes/ex.html" {
		t.Fatalf("top hit = %+v", items)
	}
	if items[0].Rank <= 0 {
		t.Errorf("rank = %v, want > 0", items[0].Rank)
	}

	items, err = idx.Retrieve(context.Background(), "limits", "limits", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if it.Topic != "limits" {
			t.Errorf("topic filter leaked %+v", it)
		}
	}
	if len(items) != 2 {
		t.Errorf("got %d limits passages, want 2", len(items))
	}
}

func TestRetrieve_FeedsBuilder(t *testing.T) {
	idx := loadTestCorpus(t)
	got, err := retrieval.NewBuilder(idx, nil).Build(context.Background(), []string{"chain-rule"}, 1000, 1, retrieval.DocExtraNotes)
	if err != nil {
		t.Fatal(err)
	}
	want := "[TOPIC chain-rule]\nWorked chain rule example with derivative steps."
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestRetrieve_Cancelled(t *testing.T) {
	idx := loadTestCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Retrieve(ctx, "x", "", 1); err == nil {
		t.Error("expected context error")
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestDocTypeOf(t *testing.T) {
	tests := map[string]string{
		"t/transcripts/a.txt": retrieval.DocTranscripts,
		"t/slides/deck.md":    retrieval.DocSlides,
		"t/deck.pdf":          retrieval.DocSlides,
		"t/notes.md":          retrieval.DocExtraNotes,
		"t/lecture.txt":       "",
		"notes/lecture.txt":   "",
	}
	for in, want := range tests {
		if got := docTypeOf(in); got != want {
			t.Errorf("docTypeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIndex_Items(t *testing.T) {
	idx := loadTestCorpus(t)
	items := idx.Items()
	if len(items) != idx.Len() {
		t.Fatalf("Items returned %d, Len = %d", len(items), idx.Len())
	}
	for _, it := range items {
		if it.Topic == "" || it.Text == "" {
			t.Errorf("incomplete item %+v", it)
		}
	}
}
