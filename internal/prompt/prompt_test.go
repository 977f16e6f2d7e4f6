package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_RendersHeadings(t *testing.T) {
	s := Default()
	got, err := s.Subsection(SectionData{Title: "Sampling", Topics: []string{"a", "b"}, Context: "ctx"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `\subsection{Sampling}`) {
		t.Errorf("missing heading in:\n%s", got)
	}
	if !strings.Contains(got, "Topics: a, b") {
		t.Errorf("missing topic list in:\n%s", got)
	}

	intro, err := s.Intro(SectionData{Title: "Overview", Subsections: []string{"X", "Y"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(intro, `\section{Overview}`) || !strings.Contains(intro, "X; Y") {
		t.Errorf("unexpected intro prompt:\n%s", intro)
	}
}

func TestDefault_OutlineMentionsCap(t *testing.T) {
	got, err := Default().Outline(OutlineData{Module: "Stats", Topics: []string{"t1"}, MaxSubsections: 6})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"at most 6 subsections", "Available topic slugs: t1", `"intro_title"`} {
		if !strings.Contains(got, want) {
			t.Errorf("outline prompt lacks %q", want)
		}
	}
}

func TestLoad_OverridesSomeTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	yml := "enhance: |\n  ENHANCE {{.Title}}\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Enhance(SectionData{Title: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ENHANCE T\n" {
		t.Errorf("Enhance = %q", got)
	}
	md, err := s.Mdframe(MdframeData{Title: "T", Target: "% mdframe"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, `\begin{mdframed}`) {
		t.Error("mdframe template should fall back to the default")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("outline: \"{{.Nope\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected template parse error")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	s, err := Load("")
	if err != nil || s == nil {
		t.Fatalf("Load(\"\") = %v, %v", s, err)
	}
}
