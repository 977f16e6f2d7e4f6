package stage

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/notesmith/internal/prompt"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/section"
)

func (r *Runner) enhance(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger) error {
	module := moduleName(reg.Info())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, ref := range reg.ListOrdered() {
		if ref.Kind != section.KindSubsection || ref.Terminal {
			continue
		}
		g.Go(func() error {
			return r.enhanceOne(gctx, reg, col, log, module, ref)
		})
	}
	return g.Wait()
}

func (r *Runner) enhanceOne(ctx context.Context, reg *registry.Registry, col *collector, log *slog.Logger, module string, ref section.Ref) error {
	current, _, err := reg.ResolveBelow(ctx, ref.Title, section.LayerEnhanced)
	if err != nil {
		log.Warn("nothing to enhance", "title", ref.Title, "error", err)
		col.failed(ref.Title, err)
		return nil
	}
	extra, err := r.builder.Build(ctx, ref.Topics, r.cfg.EnhanceChars, r.cfg.EnhanceTopK)
	if err != nil {
		col.failed(ref.Title, err)
		return nil
	}
	p, err := r.prompts.Enhance(prompt.SectionData{
		Module:  module,
		Title:   ref.Title,
		Topics:  ref.Topics,
		Current: current,
		Context: extra,
	})
	if err != nil {
		col.failed(ref.Title, err)
		return nil
	}
	text, err := r.generate(ctx, p)
	if err != nil {
		log.Warn("enhance generation failed", "title", ref.Title, "error", err)
		col.failed(ref.Title, err)
		return nil
	}
	return commit(ctx, reg, col, log, ref, section.LayerEnhanced, text)
}
