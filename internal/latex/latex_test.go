package latex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsEscaped(t *testing.T) {
	tests := []struct {
		s    string
		i    int
		want bool
	}{
		{`a_b`, 1, false},
		{`a\_b`, 2, true},
		{`a\\_b`, 3, false},
		{`a\\\_b`, 4, true},
		{`_`, 0, false},
	}
	for _, tt := range tests {
		if got := IsEscaped(tt.s, tt.i); got != tt.want {
			t.Errorf("IsEscaped(%q, %d) = %v, want %v", tt.s, tt.i, got, tt.want)
		}
	}
}

func TestMacros_SkipsLineBreaks(t *testing.T) {
	got := Macros(`\textbf{a} \\ \alpha\\beta`)
	want := []Macro{
		{Name: "textbf", Start: 0, End: 7},
		{Name: "alpha", Start: 14, End: 20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Macros mismatch (-want +got):\n%s", diff)
	}
}

func TestHasMacro(t *testing.T) {
	s := `\subsection{Intro} text`
	if !HasMacro(s, "subsection") {
		t.Error("expected subsection macro")
	}
	if HasMacro(s, "section") {
		t.Error("section must not match inside subsection")
	}
}

func TestEnvTokens_IgnoresCommentsAndEscapes(t *testing.T) {
	s := "\\begin{itemize}\n% \\begin{enumerate}\n\\\\begin{x}\n\\end{itemize}"
	toks := EnvTokens(s)
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(toks), toks)
	}
	if !toks[0].Begin || toks[0].Name != "itemize" {
		t.Errorf("first token = %+v", toks[0])
	}
	if toks[1].Begin || toks[1].Name != "itemize" {
		t.Errorf("second token = %+v", toks[1])
	}
}

func TestEnvStack_PopToNearest(t *testing.T) {
	var st EnvStack
	st.Push("itemize")
	st.Push("tabular")
	st.Push("enumerate")
	if st.Pop("figure") {
		t.Error("Pop of unopened env should report false")
	}
	if len(st) != 3 {
		t.Fatalf("failed Pop changed the stack: %v", st)
	}
	if !st.Pop("tabular") {
		t.Fatal("expected Pop(tabular) to succeed")
	}
	if st.Top() != "itemize" {
		t.Errorf("Top = %q, want itemize", st.Top())
	}
}

func TestCommentSpans(t *testing.T) {
	s := "a 50\\% b % note\nc"
	got := CommentSpans(s)
	want := []Span{{Start: 9, End: 15}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CommentSpans mismatch (-want +got):\n%s", diff)
	}
}

func TestInSpans(t *testing.T) {
	spans := []Span{{Start: 2, End: 4}, {Start: 10, End: 12}}
	for pos, want := range map[int]bool{0: false, 2: true, 3: true, 4: false, 11: true, 12: false} {
		if got := InSpans(pos, spans); got != want {
			t.Errorf("InSpans(%d) = %v, want %v", pos, got, want)
		}
	}
}

func TestMathRegions(t *testing.T) {
	s := `a $x$ b \(y\) c \[z\]`
	got := MathRegions(s)
	want := []Span{{Start: 2, End: 5}, {Start: 8, End: 13}, {Start: 16, End: 21}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MathRegions mismatch (-want +got):\n%s", diff)
	}
}

func TestMathRegions_Environments(t *testing.T) {
	s := "text\n\\begin{align*}\na &= b\n\\end{align*}\nafter"
	got := MathRegions(s)
	if len(got) != 1 {
		t.Fatalf("expected 1 region, got %v", got)
	}
	if s[got[0].Start:got[0].End] != "\\begin{align*}\na &= b\n\\end{align*}" {
		t.Errorf("region = %q", s[got[0].Start:got[0].End])
	}
}

func TestMathRegions_UnclosedIsLiteral(t *testing.T) {
	if got := MathRegions(`costs $5 and \( never closes`); len(got) != 0 {
		t.Errorf("expected no regions, got %v", got)
	}
	if got := MathRegions("$a\n\nb$"); len(got) != 0 {
		t.Errorf("inline math must not cross a blank line, got %v", got)
	}
}

func TestMathRegions_IgnoresComments(t *testing.T) {
	if got := MathRegions("% $x$\nplain"); len(got) != 0 {
		t.Errorf("expected no regions, got %v", got)
	}
}

func TestMacroExtent(t *testing.T) {
	tests := []struct {
		s    string
		want string
	}{
		{`\frac{1}{2} rest`, `\frac{1}{2}`},
		{`\sqrt[3]{x} rest`, `\sqrt[3]{x}`},
		{`\sum_{i=1}^n x`, `\sum_{i=1}^n`},
		{`\alpha_word`, `\alpha`},
		{`\alpha`, `\alpha`},
		{`\hat x`, `\hat x`},
		{`\mathbb{R}\_n`, `\mathbb{R}\_n`},
	}
	for _, tt := range tests {
		m := Macros(tt.s)[0]
		if got := tt.s[:MacroExtent(tt.s, m)]; got != tt.want {
			t.Errorf("MacroExtent(%q) covers %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBlank(t *testing.T) {
	got := Blank("ab$x\ny$cd", []Span{{Start: 2, End: 7}})
	if got != "ab  \n  cd" {
		t.Errorf("Blank = %q", got)
	}
}

func TestGroupEnd(t *testing.T) {
	s := `{a{b}\}c}d`
	if got := GroupEnd(s, 0); got != 9 {
		t.Errorf("GroupEnd = %d, want 9", got)
	}
	if got := GroupEnd(`{open`, 0); got != -1 {
		t.Errorf("unclosed GroupEnd = %d, want -1", got)
	}
}
