// Package stage runs the three generation stages over a document:
// Skeleton plans the sections and writes the original layer, Enhance
// rewrites subsections into the enhanced layer and Patch fills mdframed
// boxes into the patched layer.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dgallion1/notesmith/internal/assemble"
	"github.com/dgallion1/notesmith/internal/latex"
	"github.com/dgallion1/notesmith/internal/llm"
	"github.com/dgallion1/notesmith/internal/prompt"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/retrieval"
	"github.com/dgallion1/notesmith/internal/sanitize"
	"github.com/dgallion1/notesmith/internal/section"
	"github.com/dgallion1/notesmith/internal/validate"
)

type Stage = section.Stage

const (
	Skeleton = section.StageSkeleton
	Enhance  = section.StageEnhance
	Patch    = section.StagePatch
)

// ErrNoSkeleton is returned by Enhance and Patch for a document that has
// not been through Skeleton.
var ErrNoSkeleton = errors.New("document has no skeleton")

// EvaluationTitle names the closing subsection every skeleton gets.
const EvaluationTitle = "Evaluation and Future Directions"

// Config holds retrieval budgets and limits for the stages.
type Config struct {
	SkeletonChars int
	SkeletonTopK  int
	EnhanceChars  int
	EnhanceTopK   int
	MdframeChars  int
	MdframeTopK   int
	// MdframeDocTypes restricts Patch context to these doc types.
	MdframeDocTypes []string

	DiscoveryK           int
	MaxSubsections       int
	MaxTargetsPerSection int
	Concurrency          int

	// Preamble is prepended by Assemble when non-empty.
	Preamble string
}

// DefaultConfig returns the stock budgets.
func DefaultConfig() Config {
	return Config{
		SkeletonChars:        4000,
		SkeletonTopK:         2,
		EnhanceChars:         4000,
		EnhanceTopK:          2,
		MdframeChars:         4000,
		MdframeTopK:          1,
		MdframeDocTypes:      []string{retrieval.DocExtraNotes},
		DiscoveryK:           500,
		MaxSubsections:       6,
		MaxTargetsPerSection: 10,
		Concurrency:          4,
	}
}

// SectionIssues lists validation issues recorded for one written layer.
type SectionIssues struct {
	Title  string           `json:"title"`
	Layer  section.Layer    `json:"layer"`
	Issues []validate.Issue `json:"issues"`
}

// Failure is a unit of work that did not produce content.
type Failure struct {
	Title string `json:"title"`
	Err   string `json:"error"`
}

// Result summarises one stage run.
type Result struct {
	Stage           Stage           `json:"stage"`
	DocumentID      string          `json:"document_id"`
	SectionsWritten int             `json:"sections_written"`
	Issues          []SectionIssues `json:"issues,omitempty"`
	Failures        []Failure       `json:"failures,omitempty"`
}

// collector gathers per-section outcomes from concurrent workers.
type collector struct {
	mu  sync.Mutex
	res Result
}

func (c *collector) wrote(title string, layer section.Layer, issues []validate.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.SectionsWritten++
	if len(issues) > 0 {
		c.res.Issues = append(c.res.Issues, SectionIssues{Title: title, Layer: layer, Issues: issues})
	}
}

func (c *collector) failed(title string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Failures = append(c.res.Failures, Failure{Title: title, Err: err.Error()})
}

func (c *collector) result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.res
	sort.SliceStable(res.Issues, func(i, j int) bool { return res.Issues[i].Title < res.Issues[j].Title })
	sort.SliceStable(res.Failures, func(i, j int) bool { return res.Failures[i].Title < res.Failures[j].Title })
	return res
}

// Runner executes stages against documents kept in a registry store.
type Runner struct {
	store   registry.Store
	gen     llm.Generator
	ret     retrieval.Retriever
	builder *retrieval.Builder
	prompts *prompt.Set
	cfg     Config
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRunner(store registry.Store, gen llm.Generator, ret retrieval.Retriever, prompts *prompt.Set, cfg Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if prompts == nil {
		prompts = prompt.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runner{
		store:   store,
		gen:     gen,
		ret:     ret,
		builder: retrieval.NewBuilder(ret, log),
		prompts: prompts,
		cfg:     cfg,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *Runner) docLock(docID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[docID] = l
	}
	return l
}

// Open returns the registry of a document.
func (r *Runner) Open(ctx context.Context, docID string) (*registry.Registry, error) {
	return registry.Open(ctx, r.store, docID)
}

// Describe records course metadata used by prompts and the preamble.
func (r *Runner) Describe(ctx context.Context, docID string, info section.Info) error {
	l := r.docLock(docID)
	l.Lock()
	defer l.Unlock()
	reg, err := r.Open(ctx, docID)
	if err != nil {
		return err
	}
	return reg.SetInfo(ctx, info)
}

// Run executes one stage. Runs on the same document are serialized.
func (r *Runner) Run(ctx context.Context, st Stage, docID string) (Result, error) {
	l := r.docLock(docID)
	l.Lock()
	defer l.Unlock()

	reg, err := r.Open(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	log := r.log.With("doc_id", docID, "stage", string(st))
	col := &collector{res: Result{Stage: st, DocumentID: docID}}

	switch st {
	case Skeleton:
		err = r.skeleton(ctx, reg, col, log)
	case Enhance, Patch:
		if !reg.Exists() {
			return Result{}, fmt.Errorf("%w: %s", ErrNoSkeleton, docID)
		}
		if st == Enhance {
			err = r.enhance(ctx, reg, col, log)
		} else {
			err = r.patch(ctx, reg, col, log)
		}
	default:
		return Result{}, fmt.Errorf("unknown stage %q", st)
	}
	if err != nil {
		return col.result(), err
	}
	if err := ctx.Err(); err != nil {
		return col.result(), err
	}
	if err := reg.MarkStage(ctx, st); err != nil {
		return col.result(), err
	}
	res := col.result()
	log.Info("stage complete",
		"sections_written", res.SectionsWritten,
		"with_issues", len(res.Issues),
		"failures", len(res.Failures),
	)
	return res, nil
}

// Assemble joins the document's sections into one LaTeX body.
func (r *Runner) Assemble(ctx context.Context, docID string) (assemble.Result, error) {
	reg, err := r.Open(ctx, docID)
	if err != nil {
		return assemble.Result{}, err
	}
	return assemble.New(reg, r.cfg.Preamble, r.log.With("doc_id", docID)).Assemble(ctx, reg.ListOrdered())
}

// ensureHeading prepends the kind's heading when the text lacks one.
func ensureHeading(ref section.Ref, text string) string {
	if latex.HasMacro(latex.Blank(text, latex.CommentSpans(text)), string(ref.Kind)) {
		return text
	}
	return ref.Kind.Heading(ref.Title) + "\n" + text
}

// commit normalises text, validates it and writes it as layer. Validation
// issues are recorded as a sidecar and never block the write.
func commit(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger, ref section.Ref, layer section.Layer, text string) error {
	text = sanitize.Sanitize(ensureHeading(ref, strings.TrimSpace(text)))
	issues := validate.Validate(ref, text)
	if err := reg.WriteLayer(ctx, ref.Title, layer, text); err != nil {
		return err
	}
	if err := reg.WriteDiagnostic(ctx, ref.Title, layer, issues); err != nil {
		log.Warn("diagnostic write failed", "title", ref.Title, "error", err)
	}
	if len(issues) > 0 {
		log.Warn("section has structural issues", "title", ref.Title, "layer", string(layer), "issues", validate.Summary(issues))
	}
	col.wrote(ref.Title, layer, issues)
	return nil
}

// moduleName picks the most specific course label available.
func moduleName(info section.Info) string {
	switch {
	case info.Module != "":
		return info.Module
	case info.Course != "":
		return info.Course
	}
	return info.Lesson
}

// generate calls the generator and treats a blank reply as a failure.
func (r *Runner) generate(ctx context.Context, p string) (string, error) {
	text, err := r.gen.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
