package pathstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dgallion1/notesmith/internal/retrieval"
)

// fakeServer is an in-memory pathstore keyed by path.
type fakeServer struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
	auth  []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{nodes: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		for k := range f.nodes {
			if k == key || (r.URL.Query().Get("children") == "true" && strings.HasPrefix(k, key+"/")) {
				delete(f.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		prefix, ok := strings.CutSuffix(key, "/*")
		if !ok {
			http.NotFound(w, r)
			return
		}
		var keys []string
		for k := range f.nodes {
			if strings.HasPrefix(k, prefix+"/") {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if limit, _ := strconv.Atoi(r.URL.Query().Get("limit")); limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}
		var out struct {
			Nodes []Node `json:"nodes"`
		}
		for _, k := range keys {
			out.Nodes = append(out.Nodes, Node{Key: k, Value: f.nodes[k]})
		}
		json.NewEncoder(w).Encode(out)
	}
}

func TestRetriever_PublishAndRetrieve(t *testing.T) {
	f, srv := newFakeServer(t)
	c := NewClient(srv.URL+"/", "secret")
	defer c.Close()
	r := NewRetriever(c, "/courses/calc/", nil)
	ctx := context.Background()

	items := []retrieval.Item{
		{Topic: "limits", Text: "Limits passage.", DocType: retrieval.DocTranscripts, Source: "limits/t.txt"},
		{Topic: "series", Text: "Series passage.", DocType: retrieval.DocExtraNotes},
		{Topic: "", Text: "no topic"},
	}
	n, err := r.Publish(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("published %d, want 2", n)
	}
	for k := range f.nodes {
		if !strings.HasPrefix(k, "courses/calc/topics/") {
			t.Errorf("node stored outside prefix: %s", k)
		}
	}

	got, err := r.Retrieve(ctx, "anything", "limits", 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []retrieval.Item{{Topic: "limits", Text: "Limits passage.", Rank: 1, DocType: retrieval.DocTranscripts, Source: "limits/t.txt"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Retrieve (-want +got):\n%s", diff)
	}

	topics, err := retrieval.DiscoverTopics(ctx, r, 100)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"limits", "series"}, topics); diff != "" {
		t.Errorf("topics (-want +got):\n%s", diff)
	}

	for _, h := range f.auth {
		if h != "Bearer secret" {
			t.Fatalf("unexpected Authorization header %q", h)
		}
	}
}

func TestRetriever_PublishReplacesTopic(t *testing.T) {
	f, srv := newFakeServer(t)
	r := NewRetriever(NewClient(srv.URL, "k"), "", nil)
	ctx := context.Background()
	for _, text := range []string{"old", "new"} {
		if _, err := r.Publish(ctx, []retrieval.Item{{Topic: "limits", Text: text}}); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(f.nodes))
	}
	got, err := r.Retrieve(ctx, "", "limits", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("got %+v", got)
	}
}

func TestRetriever_SkipsMalformedNodes(t *testing.T) {
	f, srv := newFakeServer(t)
	f.nodes["topics/limits/a"] = json.RawMessage(`"just a string"`)
	f.nodes["topics/limits/b"] = json.RawMessage(`{"text": "ok"}`)
	f.nodes["topics/limits/c"] = json.RawMessage(`{"text": "   "}`)
	r := NewRetriever(NewClient(srv.URL, "k"), "", nil)
	got, err := r.Retrieve(context.Background(), "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "ok" || got[0].Topic != "limits" {
		t.Errorf("got %+v", got)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k")
	_, err := c.ListChildren(context.Background(), "topics", 1)
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Errorf("err = %v, want status 403", err)
	}
	if err := c.PutNode(context.Background(), "x", NodeRequest{Value: 1}); err == nil {
		t.Error("PutNode: expected error")
	}
}
