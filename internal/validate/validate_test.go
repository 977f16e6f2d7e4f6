package validate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dgallion1/notesmith/internal/section"
)

var sub = section.Ref{Order: 1, Kind: section.KindSubsection, Title: "Intro"}

func kinds(issues []Issue) []Kind {
	out := make([]Kind, len(issues))
	for i, is := range issues {
		out[i] = is.Kind
	}
	return out
}

func TestValidate_CleanSubsection(t *testing.T) {
	text := "\\subsection{Intro}\nText with $x^2$ and \\(\\frac{1}{2}\\).\n\\begin{itemize}\n\\item a\n\\end{itemize}"
	if issues := Validate(sub, text); len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestValidate_Kinds(t *testing.T) {
	tests := []struct {
		name string
		ref  section.Ref
		text string
		want []Kind
	}{
		{"extra closing brace", sub, "\\subsection{A} }", []Kind{UnbalancedBraces}},
		{"unclosed brace", sub, "\\subsection{A} {", []Kind{UnbalancedBraces}},
		{"escaped braces ignored", sub, "\\subsection{A} \\{ \\}", nil},
		{"brace in comment ignored", sub, "\\subsection{A} % {", nil},
		{"odd dollars", sub, "\\subsection{A} $x", []Kind{UnpairedMathDelimiter}},
		{"escaped dollar", sub, "\\subsection{A} costs \\$5", nil},
		{"mismatched env", sub, "\\subsection{A}\n\\begin{itemize}\n\\end{enumerate}\n\\end{itemize}", []Kind{MismatchedEnvironment}},
		{"unclosed env", sub, "\\subsection{A}\n\\begin{itemize}\n\\item x", []Kind{UnclosedEnvironment}},
		{"missing heading", sub, "just text", []Kind{MissingRequiredHeading}},
		{"heading in comment does not count", sub, "% \\subsection{A}\ntext", []Kind{MissingRequiredHeading}},
		{"starred heading counts", sub, "\\subsection*{A}", nil},
		{"section needs section", section.Ref{Kind: section.KindSection}, "\\subsection{A}", []Kind{MissingRequiredHeading}},
		{"terminal directive", sub, "\\subsection{A}\n\\end{document}", []Kind{ForbiddenTerminalDirective}},
		{"begin document tolerated", sub, "\\begin{document}\n\\subsection{A}", nil},
		{"math macro outside", sub, "\\subsection{A} \\alpha and \\alpha and \\beta", []Kind{MathMacroOutsideMathMode, MathMacroOutsideMathMode}},
		{"math macro in env", sub, "\\subsection{A}\n\\begin{equation}\n\\sum x\n\\end{equation}", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Validate(tt.ref, tt.text))
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_MismatchDoesNotPop(t *testing.T) {
	text := "\\subsection{A}\n\\begin{itemize}\n\\end{enumerate}"
	issues := Validate(sub, text)
	if len(issues) != 2 {
		t.Fatalf("expected mismatch and unclosed, got %v", issues)
	}
	if issues[0].Kind != MismatchedEnvironment || issues[0].Env != "enumerate" || issues[0].Detail != "itemize" {
		t.Errorf("unexpected first issue: %+v", issues[0])
	}
	if diff := cmp.Diff([]string{"itemize"}, issues[1].Envs); diff != "" {
		t.Errorf("unclosed envs mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_MathMacroDetails(t *testing.T) {
	issues := Validate(sub, "\\subsection{A} \\frac{1}{2}")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", issues)
	}
	if issues[0].Macro != "frac" || issues[0].Offset != 15 {
		t.Errorf("unexpected issue %+v", issues[0])
	}
	if !strings.Contains(issues[0].Error(), `\frac`) {
		t.Errorf("message %q does not name the macro", issues[0].Error())
	}
}

func TestSummary(t *testing.T) {
	got := Summary([]Issue{{Kind: UnbalancedBraces}, {Kind: MissingRequiredHeading}, {Kind: UnbalancedBraces}})
	want := "missing_required_heading=1 unbalanced_braces=2"
	if got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}
