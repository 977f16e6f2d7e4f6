package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record(time.Duration(ms)*time.Millisecond, nil)
	}
	stats.Record(time.Second, errors.New("boom"))

	snap := stats.Snapshot()
	if snap.Count != 5 || snap.Failures != 1 {
		t.Fatalf("expected count=5 failures=1, got %d/%d", snap.Count, snap.Failures)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got %d/%d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 || snap.P95Ms != 480 || snap.P99Ms != 496 {
		t.Fatalf("unexpected percentiles p50=%f p95=%f p99=%f", snap.P50Ms, snap.P95Ms, snap.P99Ms)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(100*time.Millisecond, nil)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}
	stats.Record(200*time.Millisecond, nil)
	if snap := stats.Snapshot(); snap.Count != 1 || snap.MinMs != 200 {
		t.Fatalf("expected one fresh sample of 200ms, got %+v", snap)
	}
}

func newClaudeServer(t *testing.T, status int, body string) (*httptest.Server, *[]anthropicRequest) {
	t.Helper()
	var seen []anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		raw, _ := io.ReadAll(r.Body)
		var req anthropicRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		seen = append(seen, req)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClaudeClient_Generate(t *testing.T) {
	srv, seen := newClaudeServer(t, http.StatusOK,
		`{"content":[{"type":"text","text":"\\section{A}"},{"type":"text","text":" more"}]}`)
	stats := NewStats(time.Hour)
	c := NewClaudeClient("key", "claude-test", 1024, WithEndpoint(srv.URL), WithStats(stats))
	defer c.Close()

	got, err := c.Generate(context.Background(), "write")
	if err != nil {
		t.Fatal(err)
	}
	if got != `\section{A} more` {
		t.Errorf("Generate = %q", got)
	}
	if len(*seen) != 1 || (*seen)[0].Model != "claude-test" || (*seen)[0].MaxTokens != 1024 {
		t.Errorf("unexpected request %+v", *seen)
	}
	if (*seen)[0].Messages[0].Content != "write" {
		t.Errorf("prompt not sent: %+v", (*seen)[0].Messages)
	}
	if stats.Snapshot().Count != 1 {
		t.Error("call not recorded in stats")
	}
}

func TestClaudeClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		empty     bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, true, false},
		{"server error", http.StatusBadGateway, `oops`, true, false},
		{"bad request", http.StatusBadRequest, `{"error":{"type":"invalid","message":"no"}}`, false, false},
		{"empty content", http.StatusOK, `{"content":[]}`, false, true},
		{"api error body", http.StatusOK, `{"error":{"type":"overloaded","message":"busy"}}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newClaudeServer(t, tt.status, tt.body)
			c := NewClaudeClient("key", "m", 0, WithEndpoint(srv.URL))
			_, err := c.Generate(context.Background(), "p")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", IsRetryable(err), tt.retryable, err)
			}
			if errors.Is(err, ErrEmptyResponse) != tt.empty {
				t.Errorf("ErrEmptyResponse = %v, want %v", errors.Is(err, ErrEmptyResponse), tt.empty)
			}
		})
	}
}

func TestRetrying_RetriesTransientErrors(t *testing.T) {
	calls := 0
	g := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", &RetryableError{StatusCode: 529}
		}
		return "ok", nil
	})
	r := &Retrying{Next: g, Retries: 3, Wait: func(int) time.Duration { return 0 }}
	got, err := r.Generate(context.Background(), "p")
	if err != nil || got != "ok" {
		t.Fatalf("Generate = %q, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrying_StopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("bad prompt")
	g := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", perm
	})
	r := &Retrying{Next: g, Retries: 3, Wait: func(int) time.Duration { return 0 }}
	if _, err := r.Generate(context.Background(), "p"); !errors.Is(err, perm) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrying_GivesUpAfterRetries(t *testing.T) {
	calls := 0
	g := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", &RetryableError{StatusCode: 503}
	})
	r := &Retrying{Next: g, Retries: 2, Wait: func(int) time.Duration { return 0 }}
	if _, err := r.Generate(context.Background(), "p"); !IsRetryable(err) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetrying_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		return "", &RetryableError{StatusCode: 429}
	})
	r := &Retrying{Next: g, Retries: 3, Wait: func(int) time.Duration { return time.Hour }}
	if _, err := r.Generate(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %v, want [%v, %v)", attempt, d, base, base+base/2)
		}
	}
}

func TestStripCodeBlock(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\nplain\n```":         "plain",
		"  no fence  ":            "no fence",
	}
	for in, want := range tests {
		if got := StripCodeBlock(in); got != want {
			t.Errorf("StripCodeBlock(%q) = %q, want %q", in, got, want)
		}
	}
}
