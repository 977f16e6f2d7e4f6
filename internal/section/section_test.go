package section

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hello World":          "hello-world",
		"  Bayes' Theorem!  ":  "bayes-theorem",
		"a---b":                "a-b",
		"$$$":                  "",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeyFor_DistinguishesPunctuation(t *testing.T) {
	a := KeyFor("Sampling: Part 1")
	b := KeyFor("Sampling Part 1")
	if a == b {
		t.Fatalf("keys collide: %q", a)
	}
	if !strings.HasPrefix(a, "sampling-part-1-") {
		t.Errorf("key %q lacks slug prefix", a)
	}
	if KeyFor("Sampling: Part 1") != a {
		t.Error("KeyFor is not deterministic")
	}
	if !strings.HasPrefix(KeyFor("∑"), "section-") {
		t.Errorf("empty slug should fall back, got %q", KeyFor("∑"))
	}
}

func TestLayerRank(t *testing.T) {
	if !(LayerOriginal.Rank() < LayerEnhanced.Rank() && LayerEnhanced.Rank() < LayerPatched.Rank()) {
		t.Error("layers out of order")
	}
	if Layer("draft").Rank() != -1 {
		t.Error("unknown layer should rank -1")
	}
}

func TestStageLayer(t *testing.T) {
	tests := map[Stage]Layer{
		StageSkeleton: LayerOriginal,
		StageEnhance:  LayerEnhanced,
		StagePatch:    LayerPatched,
	}
	for s, want := range tests {
		if got := s.Layer(); got != want {
			t.Errorf("%s.Layer() = %s, want %s", s, got, want)
		}
	}
}

func TestParseStage(t *testing.T) {
	if s, err := ParseStage(" Enhance "); err != nil || s != StageEnhance {
		t.Errorf("ParseStage = %q, %v", s, err)
	}
	if _, err := ParseStage("compile"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestKindHeading(t *testing.T) {
	if got := KindSubsection.Heading("Intro"); got != `\subsection{Intro}` {
		t.Errorf("Heading = %q", got)
	}
}
