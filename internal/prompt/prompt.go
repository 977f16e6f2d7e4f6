// Package prompt renders the generation prompts for each stage. Templates use
// text/template syntax and can be overridden from a YAML file.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Templates holds one template source per prompt.
type Templates struct {
	Outline    string `yaml:"outline"`
	Intro      string `yaml:"intro"`
	Subsection string `yaml:"subsection"`
	Evaluation string `yaml:"evaluation"`
	Enhance    string `yaml:"enhance"`
	Mdframe    string `yaml:"mdframe"`
}

// OutlineData feeds the outline prompt.
type OutlineData struct {
	Module         string
	Topics         []string
	MaxSubsections int
	Context        string
}

// SectionData feeds the intro, subsection, evaluation and enhance prompts.
type SectionData struct {
	Module      string
	Title       string
	Summary     string
	Topics      []string
	Subsections []string
	Current     string
	Context     string
}

// MdframeData feeds the mdframe prompt.
type MdframeData struct {
	Title    string
	Document string
	Section  string
	Target   string
	Context  string
}

// Set is a parsed, ready-to-render set of templates.
type Set struct {
	outline, intro, subsection, evaluation, enhance, mdframe *template.Template
}

// Default returns the built-in prompts.
func Default() *Set {
	s, err := Parse(Defaults)
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in templates: %v", err))
	}
	return s
}

// Load overlays the non-empty entries of the YAML file at path onto Defaults.
// An empty path yields the built-in set.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var over Templates
	if err := yaml.Unmarshal(data, &over); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return Parse(merge(Defaults, over))
}

func merge(base, over Templates) Templates {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	return Templates{
		Outline:    pick(base.Outline, over.Outline),
		Intro:      pick(base.Intro, over.Intro),
		Subsection: pick(base.Subsection, over.Subsection),
		Evaluation: pick(base.Evaluation, over.Evaluation),
		Enhance:    pick(base.Enhance, over.Enhance),
		Mdframe:    pick(base.Mdframe, over.Mdframe),
	}
}

// Parse compiles every template in t.
func Parse(t Templates) (*Set, error) {
	var s Set
	for _, p := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"outline", t.Outline, &s.outline},
		{"intro", t.Intro, &s.intro},
		{"subsection", t.Subsection, &s.subsection},
		{"evaluation", t.Evaluation, &s.evaluation},
		{"enhance", t.Enhance, &s.enhance},
		{"mdframe", t.Mdframe, &s.mdframe},
	} {
		tmpl, err := template.New(p.name).Option("missingkey=error").Parse(p.src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", p.name, err)
		}
		*p.dst = tmpl
	}
	return &s, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func (s *Set) Outline(d OutlineData) (string, error)    { return render(s.outline, d) }
func (s *Set) Intro(d SectionData) (string, error)      { return render(s.intro, d) }
func (s *Set) Subsection(d SectionData) (string, error) { return render(s.subsection, d) }
func (s *Set) Evaluation(d SectionData) (string, error) { return render(s.evaluation, d) }
func (s *Set) Enhance(d SectionData) (string, error)    { return render(s.enhance, d) }
func (s *Set) Mdframe(d MdframeData) (string, error)    { return render(s.mdframe, d) }
