// Package validate checks the structural well-formedness of a section's LaTeX.
// It never rewrites text and never blocks a write: issues are reported so the
// caller can record them next to the content.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/notesmith/internal/latex"
	"github.com/dgallion1/notesmith/internal/section"
)

// Kind classifies a structural defect.
type Kind string

const (
	UnbalancedBraces           Kind = "unbalanced_braces"
	UnpairedMathDelimiter      Kind = "unpaired_math_delimiter"
	MismatchedEnvironment      Kind = "mismatched_environment"
	UnclosedEnvironment        Kind = "unclosed_environment"
	MissingRequiredHeading     Kind = "missing_required_heading"
	ForbiddenTerminalDirective Kind = "forbidden_terminal_directive"
	MathMacroOutsideMathMode   Kind = "math_macro_outside_math_mode"
)

// Issue is one structural defect.
type Issue struct {
	Kind   Kind     `json:"kind"`
	Env    string   `json:"env,omitempty"`
	Envs   []string `json:"envs,omitempty"`
	Macro  string   `json:"macro,omitempty"`
	Offset int      `json:"offset"`
	Detail string   `json:"detail,omitempty"`
}

func (i Issue) String() string {
	switch i.Kind {
	case UnbalancedBraces:
		return fmt.Sprintf("unbalanced braces at offset %d: %s", i.Offset, i.Detail)
	case UnpairedMathDelimiter:
		return "odd number of $ math delimiters"
	case MismatchedEnvironment:
		return fmt.Sprintf(`\end{%s} at offset %d does not close %s`, i.Env, i.Offset, i.Detail)
	case UnclosedEnvironment:
		return "unclosed environments: " + strings.Join(i.Envs, ", ")
	case MissingRequiredHeading:
		return "missing required " + i.Detail
	case ForbiddenTerminalDirective:
		return fmt.Sprintf(`\end{document} at offset %d`, i.Offset)
	case MathMacroOutsideMathMode:
		return fmt.Sprintf(`\%s outside math mode at offset %d`, i.Macro, i.Offset)
	}
	return string(i.Kind)
}

func (i Issue) Error() string { return i.String() }

// Validate runs every structural check against text written for ref.
func Validate(ref section.Ref, text string) []Issue {
	var issues []Issue
	issues = append(issues, checkBraces(text)...)
	issues = append(issues, checkDollars(text)...)
	issues = append(issues, checkEnvironments(text)...)
	issues = append(issues, checkHeading(ref, text)...)
	issues = append(issues, checkMathMacros(text)...)
	return issues
}

func checkBraces(s string) []Issue {
	comments := latex.CommentSpans(s)
	var issues []Issue
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c != '{' && c != '}') || latex.IsEscaped(s, i) || latex.InSpans(i, comments) {
			continue
		}
		if c == '{' {
			depth++
			continue
		}
		depth--
		if depth < 0 {
			issues = append(issues, Issue{Kind: UnbalancedBraces, Offset: i, Detail: "unexpected }"})
			depth = 0
		}
	}
	if depth > 0 {
		issues = append(issues, Issue{
			Kind:   UnbalancedBraces,
			Offset: len(s),
			Detail: fmt.Sprintf("%d unclosed {", depth),
		})
	}
	return issues
}

func checkDollars(s string) []Issue {
	comments := latex.CommentSpans(s)
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && !latex.IsEscaped(s, i) && !latex.InSpans(i, comments) {
			n++
		}
	}
	if n%2 == 0 {
		return nil
	}
	return []Issue{{Kind: UnpairedMathDelimiter, Detail: fmt.Sprintf("%d unescaped $", n)}}
}

func checkEnvironments(s string) []Issue {
	var issues []Issue
	var stack latex.EnvStack
	for _, tok := range latex.EnvTokens(s) {
		if tok.Name == "document" {
			if !tok.Begin {
				issues = append(issues, Issue{Kind: ForbiddenTerminalDirective, Offset: tok.Start})
			}
			continue
		}
		if tok.Begin {
			stack.Push(tok.Name)
			continue
		}
		if stack.Top() != tok.Name {
			top := stack.Top()
			if top == "" {
				top = "nothing"
			}
			issues = append(issues, Issue{Kind: MismatchedEnvironment, Env: tok.Name, Offset: tok.Start, Detail: top})
			continue
		}
		stack.Pop(tok.Name)
	}
	if len(stack) > 0 {
		issues = append(issues, Issue{Kind: UnclosedEnvironment, Envs: append([]string(nil), stack...), Offset: len(s)})
	}
	return issues
}

func checkHeading(ref section.Ref, s string) []Issue {
	name := string(ref.Kind)
	if !ref.Kind.Valid() || latex.HasMacro(latex.Blank(s, latex.CommentSpans(s)), name) {
		return nil
	}
	return []Issue{{Kind: MissingRequiredHeading, Detail: `\` + name}}
}

func checkMathMacros(s string) []Issue {
	blanked := latex.Blank(s, latex.MathRegions(s))
	blanked = latex.Blank(blanked, latex.CommentSpans(blanked))
	seen := make(map[string]bool)
	var issues []Issue
	for _, m := range latex.Macros(blanked) {
		if _, ok := latex.MathOnly[m.Name]; !ok || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		issues = append(issues, Issue{Kind: MathMacroOutsideMathMode, Macro: m.Name, Offset: m.Start})
	}
	return issues
}

// Summary counts issues by kind, sorted by kind name, for logs.
func Summary(issues []Issue) string {
	counts := make(map[Kind]int)
	for _, is := range issues {
		counts[is.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[Kind(k)])
	}
	return strings.Join(parts, " ")
}
