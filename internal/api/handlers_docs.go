package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/notesmith/internal/assemble"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/section"
)

type sectionView struct {
	section.Ref
	Layer section.Layer `json:"layer,omitempty"`
	Error string        `json:"error,omitempty"`
}

type documentView struct {
	DocumentID string                      `json:"document_id"`
	Info       section.Info                `json:"info"`
	Stages     map[section.Stage]time.Time `json:"stages"`
	Outline    *section.Outline            `json:"outline,omitempty"`
	Sections   []sectionView               `json:"sections"`
}

// openExisting opens a document's registry and writes the error response
// when it is invalid or has no sections.
func (s *Server) openExisting(w http.ResponseWriter, r *http.Request) (*registry.Registry, bool) {
	reg, err := s.runner.Open(r.Context(), chi.URLParam(r, "docID"))
	if errors.Is(err, registry.ErrInvalidDocument) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if !reg.Exists() {
		jsonError(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return reg, true
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": ids})
}

// handleGetDocument returns the outline and every section with the layer it
// currently resolves to.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.openExisting(w, r)
	if !ok {
		return
	}
	view := documentView{
		DocumentID: reg.DocumentID(),
		Info:       reg.Info(),
		Stages:     reg.Stages(),
	}
	if o, ok := reg.Outline(); ok {
		view.Outline = &o
	}
	for _, ref := range reg.ListOrdered() {
		sv := sectionView{Ref: ref}
		if _, layer, err := reg.Resolve(r.Context(), ref.Title); err != nil {
			sv.Error = err.Error()
		} else {
			sv.Layer = layer
		}
		view.Sections = append(view.Sections, sv)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetSection returns one section's resolved text. ?layer= resolves
// at or below that layer, e.g. layer=original.
func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.openExisting(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	var ref section.Ref
	found := false
	for _, rf := range reg.ListOrdered() {
		if rf.Key == key {
			ref, found = rf, true
			break
		}
	}
	if !found {
		jsonError(w, "section not found", http.StatusNotFound)
		return
	}

	var (
		text  string
		layer section.Layer
		err   error
	)
	switch want := section.Layer(r.URL.Query().Get("layer")); {
	case want == "" || want == section.LayerPatched:
		text, layer, err = reg.Resolve(r.Context(), ref.Title)
	case want.Rank() >= 0:
		text, layer, err = reg.ResolveBelow(r.Context(), ref.Title, section.Layers[want.Rank()+1])
	default:
		jsonError(w, "unknown layer", http.StatusBadRequest)
		return
	}
	if errors.Is(err, registry.ErrNotResolvable) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": ref.Title,
		"key":   ref.Key,
		"layer": layer,
		"text":  text,
	})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.openExisting(w, r)
	if !ok {
		return
	}
	ds, err := reg.Diagnostics(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ds == nil {
		ds = []registry.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagnostics": ds})
}

// handleAssemble returns the assembled LaTeX, or JSON with ?format=json.
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.openExisting(w, r); !ok {
		return
	}
	res, err := s.runner.Assemble(r.Context(), chi.URLParam(r, "docID"))
	if errors.Is(err, assemble.ErrRootSectionMissing) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", "application/x-tex; charset=utf-8")
	_, _ = w.Write([]byte(res.Text))
}

func (s *Server) handlePutInfo(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if !registry.ValidDocID(docID) {
		jsonError(w, "invalid document id", http.StatusBadRequest)
		return
	}
	var info section.Info
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&info); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.runner.Describe(r.Context(), docID, info); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
