// Package section holds the data model shared by the registry, the stages
// and the assembler.
package section

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Kind distinguishes the single document-level section from its subsections.
type Kind string

const (
	KindSection    Kind = "section"
	KindSubsection Kind = "subsection"
)

// Heading returns the LaTeX heading macro for the kind, e.g. \subsection{Title}.
func (k Kind) Heading(title string) string {
	return fmt.Sprintf(`\%s{%s}`, string(k), title)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindSection || k == KindSubsection }

// Layer is a revision level of a section's content. Higher layers win when a
// section is resolved.
type Layer string

const (
	LayerOriginal Layer = "original"
	LayerEnhanced Layer = "enhanced"
	LayerPatched  Layer = "patched"
)

// Layers lists every layer from lowest to highest precedence.
var Layers = []Layer{LayerOriginal, LayerEnhanced, LayerPatched}

// Rank orders layers; unknown layers rank -1.
func (l Layer) Rank() int {
	for i, x := range Layers {
		if x == l {
			return i
		}
	}
	return -1
}

// Stage names a pipeline step. Each stage owns exactly one layer.
type Stage string

const (
	StageSkeleton Stage = "skeleton"
	StageEnhance  Stage = "enhance"
	StagePatch    Stage = "patch"
)

// Layer returns the layer the stage writes.
func (s Stage) Layer() Layer {
	switch s {
	case StageEnhance:
		return LayerEnhanced
	case StagePatch:
		return LayerPatched
	default:
		return LayerOriginal
	}
}

// ParseStage accepts a stage name in any case.
func ParseStage(name string) (Stage, error) {
	switch s := Stage(strings.ToLower(strings.TrimSpace(name))); s {
	case StageSkeleton, StageEnhance, StagePatch:
		return s, nil
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// Ref identifies one section of a document.
type Ref struct {
	Order    int      `json:"order"`
	Kind     Kind     `json:"kind"`
	Title    string   `json:"title"`
	Key      string   `json:"key"`
	Seq      int      `json:"seq"`
	Topics   []string `json:"topics,omitempty"`
	Terminal bool     `json:"terminal,omitempty"`
}

// IsRoot reports whether r is the document-level section.
func (r Ref) IsRoot() bool { return r.Order == 0 && r.Kind == KindSection }

// OutlineEntry is one planned subsection.
type OutlineEntry struct {
	Title   string   `json:"title"`
	Topics  []string `json:"topics"`
	Summary string   `json:"summary,omitempty"`
}

// Outline is the plan produced by the skeleton stage.
type Outline struct {
	IntroTitle    string         `json:"intro_title"`
	Subsections   []OutlineEntry `json:"subsections"`
	Topics        []string       `json:"topics,omitempty"`
	MissingTopics []string       `json:"missing_topics,omitempty"`
}

// Info carries the course metadata substituted into the preamble.
type Info struct {
	Course string `json:"course,omitempty"`
	Module string `json:"module,omitempty"`
	Lesson string `json:"lesson,omitempty"`
}

var (
	nonSlug  = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns = regexp.MustCompile(`-+`)
)

// Slugify lowercases s and reduces it to [a-z0-9-], at most 50 bytes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// KeyFor derives the storage key for a title: a readable slug plus a short
// hash so that titles differing only in punctuation do not collide.
func KeyFor(title string) string {
	sum := sha256.Sum256([]byte(title))
	slug := Slugify(title)
	if slug == "" {
		slug = "section"
	}
	return slug + "-" + hex.EncodeToString(sum[:4])
}
