// Package llm provides the text generation capability used by the stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when the provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// Retrying retries a Generator on RetryableError with exponential backoff.
type Retrying struct {
	Next    Generator
	Log     *slog.Logger
	Retries int
	// Wait overrides Backoff; tests use it to avoid sleeping.
	Wait func(attempt int) time.Duration
}

// WithRetry wraps g with the default retry policy.
func WithRetry(g Generator, log *slog.Logger) *Retrying {
	return &Retrying{Next: g, Log: log, Retries: MaxRetries}
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	wait := r.Wait
	if wait == nil {
		wait = Backoff
	}
	retries := r.Retries
	if retries <= 0 {
		retries = 1
	}
	var text string
	var lastErr error
	for attempt := range retries {
		text, lastErr = r.Next.Generate(ctx, prompt)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == retries-1 {
			break
		}
		if r.Log != nil {
			r.Log.Warn("retryable generation error", "attempt", attempt, "error", lastErr)
		}
		select {
		case <-time.After(wait(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, lastErr
}

var codeBlockRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// StripCodeBlock removes one surrounding Markdown code fence, if present.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
