package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/notesmith/internal/assemble"
	"github.com/dgallion1/notesmith/internal/config"
	"github.com/dgallion1/notesmith/internal/corpus"
	"github.com/dgallion1/notesmith/internal/llm"
	"github.com/dgallion1/notesmith/internal/pathstore"
	"github.com/dgallion1/notesmith/internal/prompt"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/retrieval"
	"github.com/dgallion1/notesmith/internal/stage"
)

// openStore returns the configured registry backend and its closer.
func openStore(ctx context.Context, cfg config.Config) (registry.Store, func(), error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend == "sqlite" {
		s, err := registry.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	s, err := registry.NewFileStore(cfg.StoreDir)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}

// generator bundles the configured model client with its identity.
type generator struct {
	llm.Generator
	model string
	close func()
}

func newGenerator(ctx context.Context, cfg config.Config, stats *llm.Stats, log *slog.Logger) (*generator, error) {
	switch cfg.LLMProvider {
	case "gemini":
		g, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMMaxTokens, stats)
		if err != nil {
			return nil, err
		}
		return &generator{Generator: llm.WithRetry(g, log), model: g.Model(), close: func() {}}, nil
	case "anthropic":
		c := llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.LLMMaxTokens, llm.WithStats(stats))
		return &generator{Generator: llm.WithRetry(c, log), model: c.Model(), close: c.Close}, nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}

// offline stands in for a model on commands that never generate.
var offline = llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("no model configured for this command")
})

func loadCorpus(ctx context.Context, cfg config.Config, log *slog.Logger) (*corpus.Index, error) {
	root, err := filepath.Abs(cfg.CorpusDir)
	if err != nil {
		return nil, err
	}
	return corpus.Load(ctx, root, corpus.Options{
		Chunk:       corpus.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		PDFFallback: cfg.PDFFallbackPdftotext,
		Log:         log,
	})
}

func newPathstore(cfg config.Config, log *slog.Logger) (*pathstore.Retriever, func()) {
	c := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	return pathstore.NewRetriever(c, cfg.PathstorePrefix, log), c.Close
}

// newRetriever returns the configured context source and its closer.
func newRetriever(ctx context.Context, cfg config.Config, log *slog.Logger) (retrieval.Retriever, func(), error) {
	if err := cfg.ValidateRetriever(); err != nil {
		return nil, nil, err
	}
	if cfg.Retriever == "pathstore" {
		r, closeFn := newPathstore(cfg, log)
		return r, closeFn, nil
	}
	idx, err := loadCorpus(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("corpus loaded", "dir", cfg.CorpusDir, "passages", idx.Len())
	return idx, func() {}, nil
}

func newRunner(cfg config.Config, store registry.Store, gen llm.Generator, ret retrieval.Retriever, log *slog.Logger) (*stage.Runner, error) {
	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	preamble, err := assemble.LoadPreamble(cfg.PreambleFile)
	if err != nil {
		return nil, err
	}
	sc := cfg.StageConfig()
	sc.Preamble = preamble
	return stage.NewRunner(store, gen, ret, prompts, sc, log), nil
}

// app is everything a generating command needs.
type app struct {
	runner *stage.Runner
	store  registry.Store
	gen    *generator
	close  []func()
}

func (a *app) Close() {
	for i := len(a.close) - 1; i >= 0; i-- {
		a.close[i]()
	}
}

// newApp wires store, model and retriever. With generate false no model
// credentials are needed and the retriever is left empty.
func newApp(ctx context.Context, cfg config.Config, stats *llm.Stats, generate bool, log *slog.Logger) (*app, error) {
	a := &app{}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.close = append(a.close, closeStore)

	var gen llm.Generator = offline
	var ret retrieval.Retriever = retrieval.Static{}
	if generate {
		if err := cfg.Validate(); err != nil {
			a.Close()
			return nil, err
		}
		g, err := newGenerator(ctx, cfg, stats, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.gen = g
		a.close = append(a.close, g.close)
		gen = g

		r, closeRet, err := newRetriever(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.close = append(a.close, closeRet)
		ret = r
	}

	a.runner, err = newRunner(cfg, store, gen, ret, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
