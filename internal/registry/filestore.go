package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/notesmith/internal/section"
)

const (
	manifestFile   = "manifest.json"
	diagnosticsDir = "diagnostics"
	diagSuffix     = ".err.json"
)

// FileStore keeps one directory per document under Root:
//
//	<doc>/manifest.json
//	<doc>/<layer>/<key>.tex
//	<doc>/diagnostics/<key>.<layer>.err.json
type FileStore struct {
	Root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create root: %w", err)
	}
	return &FileStore{Root: root}, nil
}

func (s *FileStore) docDir(docID string) (string, error) {
	if !ValidDocID(docID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocument, docID)
	}
	return filepath.Join(s.Root, docID), nil
}

func (s *FileStore) LoadManifest(ctx context.Context, docID string) (Manifest, error) {
	dir, err := s.docDir(docID)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, ErrNotFound
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("filestore: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("filestore: decode manifest %s: %w", docID, err)
	}
	return m, nil
}

func (s *FileStore) SaveManifest(ctx context.Context, m Manifest) error {
	dir, err := s.docDir(m.DocumentID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode manifest: %w", err)
	}
	return writeAtomic(ctx, filepath.Join(dir, manifestFile), data)
}

func (s *FileStore) ReadLayer(ctx context.Context, docID, key string, layer section.Layer) (string, error) {
	dir, err := s.docDir(docID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, string(layer), key+".tex"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("filestore: read %s/%s: %w", layer, key, err)
	}
	return string(data), nil
}

func (s *FileStore) WriteLayer(ctx context.Context, docID, key string, layer section.Layer, text string) error {
	dir, err := s.docDir(docID)
	if err != nil {
		return err
	}
	return writeAtomic(ctx, filepath.Join(dir, string(layer), key+".tex"), []byte(text))
}

func (s *FileStore) DeleteLayer(ctx context.Context, docID, key string, layer section.Layer) error {
	dir, err := s.docDir(docID)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, string(layer), key+".tex"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s/%s: %w", layer, key, err)
	}
	return nil
}

func (s *FileStore) WriteDiagnostic(ctx context.Context, docID string, d Diagnostic) error {
	dir, err := s.docDir(docID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode diagnostic: %w", err)
	}
	return writeAtomic(ctx, filepath.Join(dir, diagnosticsDir, d.Key+"."+string(d.Layer)+diagSuffix), data)
}

func (s *FileStore) DeleteDiagnostic(ctx context.Context, docID, key string, layer section.Layer) error {
	dir, err := s.docDir(docID)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, diagnosticsDir, key+"."+string(layer)+diagSuffix))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete diagnostic: %w", err)
	}
	return nil
}

func (s *FileStore) ListDiagnostics(ctx context.Context, docID string) ([]Diagnostic, error) {
	dir, err := s.docDir(docID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, diagnosticsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: list diagnostics: %w", err)
	}
	var out []Diagnostic
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), diagSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, diagnosticsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("filestore: read diagnostic %s: %w", e.Name(), err)
		}
		var d Diagnostic
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("filestore: decode diagnostic %s: %w", e.Name(), err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *FileStore) ListDocuments(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("filestore: list documents: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !ValidDocID(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Root, e.Name(), manifestFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// writeAtomic replaces dest with data via a synced temp file in the same
// directory, so readers see either the old or the new content.
func writeAtomic(ctx context.Context, dest string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("filestore: rename %s: %w", dest, err)
	}
	syncDir(dir)
	return nil
}

// syncDir is best effort; some platforms cannot fsync a directory.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}
