package registry

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dgallion1/notesmith/internal/section"
	"github.com/dgallion1/notesmith/internal/validate"
)

// ErrNotFound is returned by a Store when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidDocument is returned for document ids that are unsafe as path or
// key components.
var ErrInvalidDocument = errors.New("invalid document id")

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidDocID reports whether id can name a document.
func ValidDocID(id string) bool { return docIDPattern.MatchString(id) }

// Manifest is the persisted shape of a document's registry.
type Manifest struct {
	DocumentID string                      `json:"document_id"`
	Refs       []section.Ref               `json:"refs"`
	NextSeq    int                         `json:"next_seq"`
	Outline    *section.Outline            `json:"outline,omitempty"`
	Info       section.Info                `json:"info"`
	Stages     map[section.Stage]time.Time `json:"stages,omitempty"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// Diagnostic is the sidecar recorded for a layer that failed validation.
type Diagnostic struct {
	Title     string           `json:"title"`
	Key       string           `json:"key"`
	Layer     section.Layer    `json:"layer"`
	Issues    []validate.Issue `json:"issues"`
	WrittenAt time.Time        `json:"written_at"`
}

// Store persists manifests, layer content and diagnostics. Implementations
// must make each single write atomic.
type Store interface {
	LoadManifest(ctx context.Context, docID string) (Manifest, error)
	SaveManifest(ctx context.Context, m Manifest) error
	ReadLayer(ctx context.Context, docID, key string, layer section.Layer) (string, error)
	WriteLayer(ctx context.Context, docID, key string, layer section.Layer, text string) error
	// DeleteLayer removes one layer; a missing layer is not an error.
	DeleteLayer(ctx context.Context, docID, key string, layer section.Layer) error
	WriteDiagnostic(ctx context.Context, docID string, d Diagnostic) error
	DeleteDiagnostic(ctx context.Context, docID, key string, layer section.Layer) error
	ListDiagnostics(ctx context.Context, docID string) ([]Diagnostic, error)
	ListDocuments(ctx context.Context) ([]string, error)
}
