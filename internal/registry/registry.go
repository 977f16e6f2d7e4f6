// Package registry tracks the sections of a document and their layered
// content. Every section is addressed by title; each layer is written by the
// stage that owns it and resolution returns the highest layer present.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/notesmith/internal/section"
	"github.com/dgallion1/notesmith/internal/validate"
)

var (
	ErrInvalidOrder   = errors.New("invalid section order")
	ErrDuplicateRoot  = errors.New("document already has a root section")
	ErrDuplicateTitle = errors.New("section title already registered")
	ErrEmptyTitle     = errors.New("section title is empty")
	ErrEmptyContent   = errors.New("section content is empty")
	ErrUnknownSection = errors.New("unknown section")
	ErrNotResolvable  = errors.New("section has no content")
)

// Registry is the in-memory view of one document, written through to a Store.
// It is safe for concurrent use; writes to the same title are serialized.
type Registry struct {
	store Store
	docID string

	mu    sync.Mutex // guards man and locks
	man   Manifest
	locks map[string]*sync.Mutex
}

// Open loads the document's manifest from store, or starts an empty one.
func Open(ctx context.Context, store Store, docID string) (*Registry, error) {
	if !ValidDocID(docID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, docID)
	}
	m, err := store.LoadManifest(ctx, docID)
	switch {
	case errors.Is(err, ErrNotFound):
		m = Manifest{DocumentID: docID}
	case err != nil:
		return nil, fmt.Errorf("open registry %s: %w", docID, err)
	}
	m.DocumentID = docID
	return &Registry{store: store, docID: docID, man: m, locks: make(map[string]*sync.Mutex)}, nil
}

// DocumentID returns the id the registry was opened with.
func (r *Registry) DocumentID() string { return r.docID }

// Exists reports whether the document has at least one section.
func (r *Registry) Exists() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.man.Refs) > 0
}

// saveLocked persists the manifest. Caller holds r.mu.
func (r *Registry) saveLocked(ctx context.Context) error {
	r.man.UpdatedAt = time.Now().UTC()
	if err := r.store.SaveManifest(ctx, r.man); err != nil {
		return fmt.Errorf("save manifest %s: %w", r.docID, err)
	}
	return nil
}

// CreateSection registers a new section. The single Section must sit at
// order 0; subsections take positive orders.
func (r *Registry) CreateSection(ctx context.Context, order int, kind section.Kind, title string, topics []string, terminal bool) (section.Ref, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return section.Ref{}, ErrEmptyTitle
	}
	if order < 0 || !kind.Valid() || (order == 0) != (kind == section.KindSection) {
		return section.Ref{}, fmt.Errorf("%w: %s at order %d", ErrInvalidOrder, kind, order)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.man.Refs {
		if kind == section.KindSection && ref.Kind == section.KindSection {
			return section.Ref{}, ErrDuplicateRoot
		}
		if ref.Title == title {
			return section.Ref{}, fmt.Errorf("%w: %q", ErrDuplicateTitle, title)
		}
	}
	ref := section.Ref{
		Order:    order,
		Kind:     kind,
		Title:    title,
		Key:      section.KeyFor(title),
		Seq:      r.man.NextSeq,
		Topics:   append([]string(nil), topics...),
		Terminal: terminal,
	}
	r.man.NextSeq++
	r.man.Refs = append(r.man.Refs, ref)
	if err := r.saveLocked(ctx); err != nil {
		r.man.Refs = r.man.Refs[:len(r.man.Refs)-1]
		r.man.NextSeq--
		return section.Ref{}, err
	}
	return ref, nil
}

// Lookup returns the ref registered under title.
func (r *Registry) Lookup(title string) (section.Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.man.Refs {
		if ref.Title == title {
			return ref, true
		}
	}
	return section.Ref{}, false
}

// ListOrdered returns every ref sorted by order, ties broken by insertion.
func (r *Registry) ListOrdered() []section.Ref {
	r.mu.Lock()
	refs := make([]section.Ref, len(r.man.Refs))
	copy(refs, r.man.Refs)
	r.mu.Unlock()
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Order != refs[j].Order {
			return refs[i].Order < refs[j].Order
		}
		return refs[i].Seq < refs[j].Seq
	})
	return refs
}

// Reset forgets every ref and the outline. Layer content stays in the store
// and becomes reachable again if a section with the same title is recreated.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.man.Refs = nil
	r.man.Outline = nil
	return r.saveLocked(ctx)
}

func (r *Registry) titleLock(title string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[title]
	if !ok {
		l = &sync.Mutex{}
		r.locks[title] = l
	}
	return l
}

// WriteLayer replaces one layer of a section.
func (r *Registry) WriteLayer(ctx context.Context, title string, layer section.Layer, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %q %s", ErrEmptyContent, title, layer)
	}
	if layer.Rank() < 0 {
		return fmt.Errorf("unknown layer %q", layer)
	}
	ref, ok := r.Lookup(title)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSection, title)
	}
	l := r.titleLock(title)
	l.Lock()
	defer l.Unlock()
	if err := r.store.WriteLayer(ctx, r.docID, ref.Key, layer, text); err != nil {
		return fmt.Errorf("write %s layer of %q: %w", layer, title, err)
	}
	return nil
}

// DeleteLayer removes one layer of a section together with its diagnostic
// sidecar, so resolution falls through to the layer below.
func (r *Registry) DeleteLayer(ctx context.Context, title string, layer section.Layer) error {
	if layer.Rank() < 0 {
		return fmt.Errorf("unknown layer %q", layer)
	}
	ref, ok := r.Lookup(title)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSection, title)
	}
	l := r.titleLock(title)
	l.Lock()
	defer l.Unlock()
	if err := r.store.DeleteLayer(ctx, r.docID, ref.Key, layer); err != nil {
		return fmt.Errorf("delete %s layer of %q: %w", layer, title, err)
	}
	if err := r.store.DeleteDiagnostic(ctx, r.docID, ref.Key, layer); err != nil {
		return fmt.Errorf("delete %s diagnostic of %q: %w", layer, title, err)
	}
	return nil
}

// Resolve returns the highest layer present for title.
func (r *Registry) Resolve(ctx context.Context, title string) (string, section.Layer, error) {
	return r.resolve(ctx, title, len(section.Layers))
}

// ResolveBelow resolves title ignoring layer and every layer above it.
func (r *Registry) ResolveBelow(ctx context.Context, title string, layer section.Layer) (string, section.Layer, error) {
	return r.resolve(ctx, title, layer.Rank())
}

func (r *Registry) resolve(ctx context.Context, title string, below int) (string, section.Layer, error) {
	ref, ok := r.Lookup(title)
	if !ok {
		return "", "", fmt.Errorf("%w: %w: %q", ErrNotResolvable, ErrUnknownSection, title)
	}
	l := r.titleLock(title)
	l.Lock()
	defer l.Unlock()
	for i := below - 1; i >= 0; i-- {
		layer := section.Layers[i]
		text, err := r.store.ReadLayer(ctx, r.docID, ref.Key, layer)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("resolve %q: %w", title, err)
		}
		return text, layer, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrNotResolvable, title)
}

// HasLayer reports whether title has content at exactly layer.
func (r *Registry) HasLayer(ctx context.Context, title string, layer section.Layer) (bool, error) {
	ref, ok := r.Lookup(title)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSection, title)
	}
	_, err := r.store.ReadLayer(ctx, r.docID, ref.Key, layer)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SetOutline persists the skeleton plan.
func (r *Registry) SetOutline(ctx context.Context, o section.Outline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.man.Outline = &o
	return r.saveLocked(ctx)
}

// Outline returns the persisted plan, if any.
func (r *Registry) Outline() (section.Outline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.man.Outline == nil {
		return section.Outline{}, false
	}
	return *r.man.Outline, true
}

// SetInfo records course metadata.
func (r *Registry) SetInfo(ctx context.Context, info section.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.man.Info = info
	return r.saveLocked(ctx)
}

func (r *Registry) Info() section.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.man.Info
}

// MarkStage records that stage completed.
func (r *Registry) MarkStage(ctx context.Context, stage section.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.man.Stages == nil {
		r.man.Stages = make(map[section.Stage]time.Time)
	}
	r.man.Stages[stage] = time.Now().UTC()
	return r.saveLocked(ctx)
}

// Stages returns the completion time of every finished stage.
func (r *Registry) Stages() map[section.Stage]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[section.Stage]time.Time, len(r.man.Stages))
	for k, v := range r.man.Stages {
		out[k] = v
	}
	return out
}

// WriteDiagnostic records issues found in a layer. An empty list clears any
// earlier sidecar instead.
func (r *Registry) WriteDiagnostic(ctx context.Context, title string, layer section.Layer, issues []validate.Issue) error {
	if len(issues) == 0 {
		return r.ClearDiagnostic(ctx, title, layer)
	}
	ref, ok := r.Lookup(title)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSection, title)
	}
	d := Diagnostic{Title: title, Key: ref.Key, Layer: layer, Issues: issues, WrittenAt: time.Now().UTC()}
	if err := r.store.WriteDiagnostic(ctx, r.docID, d); err != nil {
		return fmt.Errorf("write diagnostic for %q: %w", title, err)
	}
	return nil
}

// ClearDiagnostic removes the sidecar for a layer, if present.
func (r *Registry) ClearDiagnostic(ctx context.Context, title string, layer section.Layer) error {
	ref, ok := r.Lookup(title)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSection, title)
	}
	return r.store.DeleteDiagnostic(ctx, r.docID, ref.Key, layer)
}

// Diagnostics lists every recorded sidecar, ordered by title then layer.
func (r *Registry) Diagnostics(ctx context.Context) ([]Diagnostic, error) {
	ds, err := r.store.ListDiagnostics(ctx, r.docID)
	if err != nil {
		return nil, err
	}
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Title != ds[j].Title {
			return ds[i].Title < ds[j].Title
		}
		return ds[i].Layer.Rank() < ds[j].Layer.Rank()
	})
	return ds, nil
}
