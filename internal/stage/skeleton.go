package stage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dgallion1/notesmith/internal/llm"
	"github.com/dgallion1/notesmith/internal/prompt"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/retrieval"
	"github.com/dgallion1/notesmith/internal/section"
)

const defaultIntroTitle = "Introduction"

type outlineReply struct {
	IntroTitle  string `json:"intro_title"`
	Subsections []struct {
		Title        string   `json:"title"`
		Topics       []string `json:"topics"`
		Summary      string   `json:"summary"`
		SummaryLatex string   `json:"summary_latex"`
	} `json:"subsections"`
}

// ParseOutline decodes a generated outline and clamps it to the known
// topics: unknown slugs are dropped, at most max subsections are kept and
// topics no subsection covers end up in MissingTopics. ok is false when the
// reply is unusable.
func ParseOutline(raw string, topics []string, max int) (section.Outline, bool) {
	body := llm.StripCodeBlock(raw)
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		body = body[i : j+1]
	}
	var reply outlineReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return section.Outline{}, false
	}

	known := make(map[string]bool, len(topics))
	for _, t := range topics {
		known[t] = true
	}
	out := section.Outline{
		IntroTitle: strings.TrimSpace(reply.IntroTitle),
		Topics:     append([]string(nil), topics...),
	}
	if out.IntroTitle == "" {
		out.IntroTitle = defaultIntroTitle
	}
	titles := map[string]bool{out.IntroTitle: true, EvaluationTitle: true}
	for _, s := range reply.Subsections {
		if max > 0 && len(out.Subsections) == max {
			break
		}
		title := strings.TrimSpace(s.Title)
		if title == "" || titles[title] {
			continue
		}
		titles[title] = true
		entry := section.OutlineEntry{Title: title, Summary: strings.TrimSpace(s.Summary)}
		if entry.Summary == "" {
			entry.Summary = strings.TrimSpace(s.SummaryLatex)
		}
		seen := make(map[string]bool)
		for _, t := range s.Topics {
			if known[t] && !seen[t] {
				seen[t] = true
				entry.Topics = append(entry.Topics, t)
			}
		}
		out.Subsections = append(out.Subsections, entry)
	}
	if len(out.Subsections) == 0 && len(topics) > 0 {
		return section.Outline{}, false
	}
	out.MissingTopics = missingTopics(out)
	return out, true
}

// FallbackOutline plans one subsection per topic, up to max.
func FallbackOutline(topics []string, max int) section.Outline {
	out := section.Outline{IntroTitle: defaultIntroTitle, Topics: append([]string(nil), topics...)}
	caser := cases.Title(language.English)
	titles := map[string]bool{defaultIntroTitle: true, EvaluationTitle: true}
	for _, t := range topics {
		if max > 0 && len(out.Subsections) == max {
			break
		}
		title := caser.String(strings.NewReplacer("-", " ", "_", " ").Replace(t))
		if strings.TrimSpace(title) == "" || titles[title] {
			title = t
		}
		if titles[title] {
			continue
		}
		titles[title] = true
		out.Subsections = append(out.Subsections, section.OutlineEntry{Title: title, Topics: []string{t}})
	}
	out.MissingTopics = missingTopics(out)
	return out
}

func missingTopics(o section.Outline) []string {
	covered := make(map[string]bool)
	for _, s := range o.Subsections {
		for _, t := range s.Topics {
			covered[t] = true
		}
	}
	var missing []string
	for _, t := range o.Topics {
		if !covered[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

func (r *Runner) planOutline(ctx context.Context, module string, topics []string, log *slog.Logger) (section.Outline, string) {
	outlineCtx, err := r.builder.Build(ctx, topics, r.cfg.SkeletonChars, r.cfg.SkeletonTopK)
	if err != nil {
		log.Warn("outline context failed", "error", err)
	}
	p, err := r.prompts.Outline(prompt.OutlineData{
		Module:         module,
		Topics:         topics,
		MaxSubsections: r.cfg.MaxSubsections,
		Context:        outlineCtx,
	})
	if err != nil {
		log.Error("outline prompt failed", "error", err)
		return FallbackOutline(topics, r.cfg.MaxSubsections), outlineCtx
	}
	raw, err := r.generate(ctx, p)
	if err != nil {
		log.Warn("outline generation failed, using fallback", "error", err)
		return FallbackOutline(topics, r.cfg.MaxSubsections), outlineCtx
	}
	outline, ok := ParseOutline(raw, topics, r.cfg.MaxSubsections)
	if !ok {
		log.Warn("outline reply unusable, using fallback", "reply", truncate(raw, 200))
		return FallbackOutline(topics, r.cfg.MaxSubsections), outlineCtx
	}
	return outline, outlineCtx
}

func (r *Runner) skeleton(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger) error {
	topics, err := retrieval.DiscoverTopics(ctx, r.ret, r.cfg.DiscoveryK)
	if err != nil {
		return err
	}
	log.Info("topics discovered", "count", len(topics))

	module := moduleName(reg.Info())
	outline, outlineCtx := r.planOutline(ctx, module, topics, log)
	if len(outline.MissingTopics) > 0 {
		log.Warn("topics not covered by outline", "topics", outline.MissingTopics)
	}

	if err := reg.Reset(ctx); err != nil {
		return err
	}
	intro, err := reg.CreateSection(ctx, 0, section.KindSection, outline.IntroTitle, outline.Topics, false)
	if err != nil {
		return err
	}
	subs := make([]section.Ref, 0, len(outline.Subsections))
	subTitles := make([]string, 0, len(outline.Subsections))
	for i, e := range outline.Subsections {
		ref, err := reg.CreateSection(ctx, i+1, section.KindSubsection, e.Title, e.Topics, false)
		if err != nil {
			return err
		}
		subs = append(subs, ref)
		subTitles = append(subTitles, e.Title)
	}
	eval, err := reg.CreateSection(ctx, len(subs)+1, section.KindSubsection, EvaluationTitle, nil, true)
	if err != nil {
		return err
	}
	if err := reg.SetOutline(ctx, outline); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	g.Go(func() error {
		p, err := r.prompts.Intro(prompt.SectionData{
			Module: module, Title: intro.Title, Subsections: subTitles, Context: outlineCtx,
		})
		return r.draft(gctx, reg, col, log, intro, p, err)
	})
	for i, ref := range subs {
		entry := outline.Subsections[i]
		g.Go(func() error {
			subCtx, err := r.builder.Build(gctx, ref.Topics, r.cfg.SkeletonChars, r.cfg.SkeletonTopK)
			if err != nil {
				return r.draft(gctx, reg, col, log, ref, "", err)
			}
			p, err := r.prompts.Subsection(prompt.SectionData{
				Module: module, Title: ref.Title, Summary: entry.Summary, Topics: ref.Topics, Context: subCtx,
			})
			return r.draft(gctx, reg, col, log, ref, p, err)
		})
	}
	g.Go(func() error {
		p, err := r.prompts.Evaluation(prompt.SectionData{
			Module: module, Title: eval.Title, Subsections: subTitles,
		})
		return r.draft(gctx, reg, col, log, eval, p, err)
	})
	return g.Wait()
}

// draft generates the original layer of one section. A failed generation
// leaves any existing original layer alone, or writes a heading-only stub so
// the section stays resolvable.
func (r *Runner) draft(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger, ref section.Ref, p string, promptErr error) error {
	text, err := p, promptErr
	if err == nil {
		text, err = r.generate(ctx, p)
	}
	if err == nil {
		return commit(ctx, reg, col, log, ref, section.LayerOriginal, text)
	}

	log.Warn("section generation failed", "title", ref.Title, "error", err)
	col.failed(ref.Title, err)
	if ctx.Err() != nil {
		return nil
	}
	has, herr := reg.HasLayer(ctx, ref.Title, section.LayerOriginal)
	if herr != nil {
		return herr
	}
	if has {
		return nil
	}
	return commit(ctx, reg, col, log, ref, section.LayerOriginal, ref.Kind.Heading(ref.Title))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
