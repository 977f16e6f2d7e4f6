package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/notesmith/internal/stage"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Registry storage
	StoreBackend string // file | sqlite
	StoreDir     string
	SQLitePath   string

	// Generation
	LLMProvider     string // anthropic | gemini
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	LLMMaxTokens    int

	// Retrieval
	Retriever       string // corpus | pathstore
	CorpusDir       string
	PathstoreURL    string
	PathstoreAPIKey string
	PathstorePrefix string

	// Context budgets
	SkeletonChars   int
	SkeletonTopK    int
	EnhanceChars    int
	EnhanceTopK     int
	MdframeChars    int
	MdframeTopK     int
	MdframeDocTypes []string

	// Limits
	DiscoveryK           int
	MaxSubsections       int
	MaxTargetsPerSection int
	StageConcurrency     int

	// Job queue
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration

	// Templates
	PromptsFile  string
	PreambleFile string

	// Corpus chunking
	ChunkSize            int
	ChunkOverlap         int
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port:   envOr("PORT", "8090"),
		APIKey: os.Getenv("NOTESMITH_API_KEY"),

		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", "file")),
		StoreDir:     envOr("STORE_DIR", "./data"),
		SQLitePath:   envOr("SQLITE_PATH", "./data/notesmith.db"),

		LLMProvider:     strings.ToLower(envOr("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMMaxTokens:    envInt("LLM_MAX_TOKENS", 8192),

		Retriever:       strings.ToLower(envOr("RETRIEVER", "corpus")),
		CorpusDir:       envOr("CORPUS_DIR", "./corpus"),
		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),
		PathstorePrefix: envOr("PATHSTORE_PREFIX", "notesmith"),

		SkeletonChars:   envInt("SKELETON_CTX_CHARS", 4000),
		SkeletonTopK:    envInt("SKELETON_TOPK", 2),
		EnhanceChars:    envInt("ENHANCE_CTX_CHARS", 4000),
		EnhanceTopK:     envInt("ENHANCE_TOPK", 2),
		MdframeChars:    envInt("MDFRAME_CTX_CHARS", 4000),
		MdframeTopK:     envInt("MDFRAME_TOPK", 1),
		MdframeDocTypes: envList("MDFRAME_DOC_TYPES", []string{"extra_notes"}),

		DiscoveryK:           envInt("TOPIC_DISCOVERY_K", 500),
		MaxSubsections:       envInt("MAX_SUBSECTIONS", 6),
		MaxTargetsPerSection: envInt("MAX_TARGETS_PER_SECTION", 10),
		StageConcurrency:     envInt("STAGE_CONCURRENCY", 4),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),
		JobTTL:       envDuration("JOB_TTL", 1*time.Hour),

		PromptsFile:  os.Getenv("PROMPTS_FILE"),
		PreambleFile: os.Getenv("PREAMBLE_FILE"),

		ChunkSize:            envInt("CHUNK_SIZE", 400),
		ChunkOverlap:         envInt("CHUNK_OVERLAP", 40),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 8192
	}
	if cfg.DiscoveryK <= 0 {
		cfg.DiscoveryK = 500
	}
	if cfg.MaxSubsections <= 0 {
		cfg.MaxSubsections = 6
	}
	if cfg.MaxTargetsPerSection <= 0 {
		cfg.MaxTargetsPerSection = 10
	}
	if cfg.StageConcurrency <= 0 {
		cfg.StageConcurrency = 4
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 400
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 40
	}

	return cfg
}

// StageConfig maps the budgets and limits onto the stage runner's config.
// The preamble text is loaded separately.
func (c Config) StageConfig() stage.Config {
	return stage.Config{
		SkeletonChars:        c.SkeletonChars,
		SkeletonTopK:         c.SkeletonTopK,
		EnhanceChars:         c.EnhanceChars,
		EnhanceTopK:          c.EnhanceTopK,
		MdframeChars:         c.MdframeChars,
		MdframeTopK:          c.MdframeTopK,
		MdframeDocTypes:      c.MdframeDocTypes,
		DiscoveryK:           c.DiscoveryK,
		MaxSubsections:       c.MaxSubsections,
		MaxTargetsPerSection: c.MaxTargetsPerSection,
		Concurrency:          c.StageConcurrency,
	}
}

// Validate checks the settings needed to generate. Serving additionally
// needs NOTESMITH_API_KEY; see ValidateServer.
func (c Config) Validate() error {
	return errors.Join(c.ValidateStore(), c.validateLLM(), c.ValidateRetriever())
}

// ValidateStore checks the registry backend settings.
func (c Config) ValidateStore() error {
	switch c.StoreBackend {
	case "file", "sqlite":
		return nil
	}
	return fmt.Errorf("STORE_BACKEND must be file or sqlite, got %q", c.StoreBackend)
}

func (c Config) validateLLM() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be anthropic or gemini, got %q", c.LLMProvider)
	}
	return nil
}

// ValidateRetriever checks the retrieval backend settings.
func (c Config) ValidateRetriever() error {
	switch c.Retriever {
	case "corpus":
		if c.CorpusDir == "" {
			return errors.New("CORPUS_DIR is required")
		}
	case "pathstore":
		if c.PathstoreAPIKey == "" {
			return errors.New("PATHSTORE_API_KEY is required")
		}
	default:
		return fmt.Errorf("RETRIEVER must be corpus or pathstore, got %q", c.Retriever)
	}
	return nil
}

// ValidateServer is Validate plus the API key check.
func (c Config) ValidateServer() error {
	err := c.Validate()
	if c.APIKey == "" {
		err = errors.Join(err, errors.New("NOTESMITH_API_KEY is required"))
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping empty entries. A value
// of "none" yields an empty list.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if strings.EqualFold(strings.TrimSpace(v), "none") {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
