package stage

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/notesmith/internal/prompt"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/sanitize"
	"github.com/dgallion1/notesmith/internal/section"
)

// TargetKind tells an existing mdframed block from a placeholder comment.
type TargetKind string

const (
	TargetEnvironment TargetKind = "environment"
	TargetPlaceholder TargetKind = "placeholder"
)

// Target is a span of section text the Patch stage regenerates.
type Target struct {
	Start, End int
	Kind       TargetKind
	Text       string
}

var (
	mdframedRe    = regexp.MustCompile(`(?s)\\begin\{mdframed\}.*?\\end\{mdframed\}`)
	placeholderRe = regexp.MustCompile(`(?mi)^[ \t]*%.*mdframe.*$`)
)

// FindTargets locates mdframed environments and placeholder comment lines in
// text, sorted by start offset. Placeholders inside an environment target do
// not count. At most max targets are returned when max > 0.
func FindTargets(text string, max int) []Target {
	var targets []Target
	envs := mdframedRe.FindAllStringIndex(text, -1)
	for _, m := range envs {
		targets = append(targets, Target{Start: m[0], End: m[1], Kind: TargetEnvironment, Text: text[m[0]:m[1]]})
	}
	for _, m := range placeholderRe.FindAllStringIndex(text, -1) {
		inside := false
		for _, e := range envs {
			if m[0] < e[1] && m[1] > e[0] {
				inside = true
				break
			}
		}
		if !inside {
			targets = append(targets, Target{Start: m[0], End: m[1], Kind: TargetPlaceholder, Text: text[m[0]:m[1]]})
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Start < targets[j].Start })
	if max > 0 && len(targets) > max {
		targets = targets[:max]
	}
	return targets
}

// Splice replaces t's span in text with repl.
func Splice(text string, t Target, repl string) string {
	return text[:t.Start] + repl + text[t.End:]
}

// SpliceAll applies replacements to non-overlapping targets in reverse start
// order so that each span still refers to the text it was found in. An
// empty replacement leaves its target untouched.
func SpliceAll(text string, targets []Target, repls []string) string {
	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return targets[order[a]].Start > targets[order[b]].Start })
	for _, i := range order {
		if repls[i] == "" {
			continue
		}
		text = Splice(text, targets[i], repls[i])
	}
	return text
}

// asMdframed sanitizes a generated block and wraps it in mdframed when the
// reply forgot the environment.
func asMdframed(reply string) string {
	block := sanitize.Sanitize(reply)
	if block == "" {
		return ""
	}
	if m := mdframedRe.FindString(block); m != "" {
		return m
	}
	return "\\begin{mdframed}\n" + block + "\n\\end{mdframed}"
}

func (r *Runner) patch(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger) error {
	refs := reg.ListOrdered()

	// Every section is read below the patched layer so re-runs see the same
	// input and never patch their own output.
	texts := make(map[string]string, len(refs))
	var doc []string
	for _, ref := range refs {
		text, _, err := reg.ResolveBelow(ctx, ref.Title, section.LayerPatched)
		if err != nil {
			log.Warn("section not resolvable, not patched", "title", ref.Title, "error", err)
			continue
		}
		texts[ref.Title] = text
		doc = append(doc, text)
	}
	document := strings.Join(doc, "\n\n")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, ref := range refs {
		text, ok := texts[ref.Title]
		if !ok {
			continue
		}
		targets := FindTargets(text, r.cfg.MaxTargetsPerSection)
		g.Go(func() error {
			if len(targets) == 0 {
				return clearPatched(gctx, reg, log, ref)
			}
			return r.patchOne(gctx, reg, col, log, ref, text, document, targets)
		})
	}
	return g.Wait()
}

// clearPatched drops a patched layer left by an earlier run, so the section
// resolves to the text this run started from.
func clearPatched(ctx context.Context, reg *registry.Registry, log *slog.Logger, ref section.Ref) error {
	if ctx.Err() != nil {
		return nil
	}
	has, err := reg.HasLayer(ctx, ref.Title, section.LayerPatched)
	if err != nil || !has {
		return err
	}
	log.Info("nothing to patch, clearing patched layer", "title", ref.Title)
	return reg.DeleteLayer(ctx, ref.Title, section.LayerPatched)
}

// patchOne regenerates every target of one section and splices the blocks
// in at once. When every generation fails the previous patched layer stays.
func (r *Runner) patchOne(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger, ref section.Ref, text, document string, targets []Target) error {
	extra, err := r.builder.Build(ctx, ref.Topics, r.cfg.MdframeChars, r.cfg.MdframeTopK, r.cfg.MdframeDocTypes...)
	if err != nil {
		col.failed(ref.Title, err)
		return nil
	}

	repls := make([]string, len(targets))
	changed, failed := false, false
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			col.failed(ref.Title, err)
			return nil
		}
		p, err := r.prompts.Mdframe(prompt.MdframeData{
			Title:    ref.Title,
			Document: document,
			Section:  text,
			Target:   t.Text,
			Context:  extra,
		})
		if err != nil {
			col.failed(ref.Title, err)
			return nil
		}
		reply, err := r.generate(ctx, p)
		if err != nil {
			log.Warn("mdframe generation failed", "title", ref.Title, "offset", t.Start, "error", err)
			col.failed(ref.Title, err)
			failed = true
			continue
		}
		repls[i] = asMdframed(reply)
		changed = changed || repls[i] != ""
	}
	switch {
	case changed:
		return commit(ctx, reg, col, log, ref, section.LayerPatched, SpliceAll(text, targets, repls))
	case failed:
		return nil
	}
	return clearPatched(ctx, reg, log, ref)
}
