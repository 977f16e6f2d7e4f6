// Package assemble joins the resolved sections of a document into one LaTeX
// body terminated by a single \end{document}.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/notesmith/internal/sanitize"
	"github.com/dgallion1/notesmith/internal/section"
)

// ErrRootSectionMissing means the order-0 section is absent or has no
// content; assembly cannot proceed without it.
var ErrRootSectionMissing = errors.New("root section missing")

const endDocument = `\end{document}`

var endDocumentRe = regexp.MustCompile(`\\end\s*\{document\}`)

// Source resolves section content. *registry.Registry satisfies it.
type Source interface {
	Resolve(ctx context.Context, title string) (string, section.Layer, error)
	Info() section.Info
}

// Part records which layer contributed a section.
type Part struct {
	Title string        `json:"title"`
	Layer section.Layer `json:"layer"`
}

// Result is an assembled document.
type Result struct {
	Text    string   `json:"text"`
	Parts   []Part   `json:"parts"`
	Skipped []string `json:"skipped,omitempty"`
}

// Assembler concatenates sections, optionally under a preamble.
type Assembler struct {
	source   Source
	preamble string
	log      *slog.Logger
}

func New(src Source, preamble string, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{source: src, preamble: preamble, log: log}
}

// LoadPreamble reads a preamble template; an empty path means none.
func LoadPreamble(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read preamble: %w", err)
	}
	return string(data), nil
}

// Assemble resolves refs in (order, seq) order. Subsections that cannot be
// resolved are skipped; a missing root aborts.
func (a *Assembler) Assemble(ctx context.Context, refs []section.Ref) (Result, error) {
	refs = append([]section.Ref(nil), refs...)
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Order != refs[j].Order {
			return refs[i].Order < refs[j].Order
		}
		return refs[i].Seq < refs[j].Seq
	})
	if len(refs) == 0 || !refs[0].IsRoot() {
		return Result{}, ErrRootSectionMissing
	}

	var res Result
	var parts []string
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		text, layer, err := a.source.Resolve(ctx, ref.Title)
		if err != nil {
			if ref.IsRoot() {
				return Result{}, fmt.Errorf("%w: %q: %w", ErrRootSectionMissing, ref.Title, err)
			}
			a.log.Warn("skipping unresolvable section", "title", ref.Title, "error", err)
			res.Skipped = append(res.Skipped, ref.Title)
			continue
		}
		text = sanitize.Sanitize(text)
		if endDocumentRe.MatchString(text) {
			a.log.Warn("stripping stray end of document", "title", ref.Title)
			text = strings.TrimSpace(endDocumentRe.ReplaceAllString(text, ""))
		}
		if text == "" {
			if ref.IsRoot() {
				return Result{}, fmt.Errorf("%w: %q is empty", ErrRootSectionMissing, ref.Title)
			}
			res.Skipped = append(res.Skipped, ref.Title)
			continue
		}
		parts = append(parts, text)
		res.Parts = append(res.Parts, Part{Title: ref.Title, Layer: layer})
	}

	var sb strings.Builder
	if a.preamble != "" {
		sb.WriteString(strings.TrimRight(fillPreamble(a.preamble, a.source.Info()), "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(endDocument)
	sb.WriteString("\n")
	res.Text = sb.String()
	return res, nil
}

// fillPreamble substitutes the template placeholders and drops any
// \end{document} the template carries.
func fillPreamble(tmpl string, info section.Info) string {
	r := strings.NewReplacer(
		"TEMPLATE_COURSE_NAME", info.Course,
		"TEMPLATE_MODULE_NAME", info.Module,
		"TEMPLATE_LESSON_CODE", info.Lesson,
	)
	return endDocumentRe.ReplaceAllString(r.Replace(tmpl), "")
}
