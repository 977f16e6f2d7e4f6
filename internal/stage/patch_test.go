package stage

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindTargets(t *testing.T) {
	text := "\\subsection{A}\nIntro.\n" +
		"\\begin{mdframed}\n% mdframe inside a block\nold\n\\end{mdframed}\n" +
		"Between.\n" +
		"  % MDFRAME: worked example\n" +
		"% an ordinary comment\n" +
		"Tail.\n"

	got := FindTargets(text, 0)
	if len(got) != 2 {
		t.Fatalf("got %d targets, want 2: %+v", len(got), got)
	}
	if got[0].Kind != TargetEnvironment || !strings.HasPrefix(got[0].Text, `\begin{mdframed}`) || !strings.HasSuffix(got[0].Text, `\end{mdframed}`) {
		t.Errorf("first target = %+v", got[0])
	}
	if got[1].Kind != TargetPlaceholder || got[1].Text != "  % MDFRAME: worked example" {
		t.Errorf("second target = %+v", got[1])
	}
	for _, tg := range got {
		if text[tg.Start:tg.End] != tg.Text {
			t.Errorf("span [%d,%d) does not match text %q", tg.Start, tg.End, tg.Text)
		}
	}
}

func TestFindTargets_Cap(t *testing.T) {
	var sb strings.Builder
	for range 15 {
		sb.WriteString("% mdframe: box\ntext\n")
	}
	got := FindTargets(sb.String(), 10)
	if len(got) != 10 {
		t.Fatalf("got %d targets, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start <= got[i-1].Start {
			t.Fatalf("targets not sorted by start: %+v", got)
		}
	}
}

func TestFindTargets_None(t *testing.T) {
	if got := FindTargets("\\subsection{A}\nplain text\n", 10); len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
}

func TestSpliceAll_ReverseOrder(t *testing.T) {
	text := strings.Repeat("a", 10) + strings.Repeat("X", 10) + strings.Repeat("b", 30) + strings.Repeat("Y", 10) + strings.Repeat("c", 10)
	targets := []Target{
		{Start: 10, End: 20, Kind: TargetEnvironment, Text: text[10:20]},
		{Start: 50, End: 60, Kind: TargetEnvironment, Text: text[50:60]},
	}
	repls := []string{"<first replacement, much longer than ten>", "<2>"}

	want := text[:10] + repls[0] + text[20:50] + repls[1] + text[60:]
	if got := SpliceAll(text, targets, repls); got != want {
		t.Errorf("SpliceAll mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}

	// Splicing front to back shifts the second span and corrupts the result.
	forward := text
	for i, tg := range targets {
		forward = Splice(forward, tg, repls[i])
	}
	if forward == want {
		t.Fatal("forward splicing matched; offsets no longer exercise the shift")
	}
	if !strings.Contains(forward, strings.Repeat("Y", 10)) {
		t.Errorf("forward splicing should have missed the second target, got %q", forward)
	}
}

func TestSpliceAll_EmptyReplacementKeepsTarget(t *testing.T) {
	text := "one [A] two [B] three"
	targets := []Target{
		{Start: 4, End: 7, Text: "[A]"},
		{Start: 12, End: 15, Text: "[B]"},
	}
	got := SpliceAll(text, targets, []string{"", "[bee]"})
	if want := "one [A] two [bee] three"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAsMdframed(t *testing.T) {
	tests := []struct {
		name, reply, want string
	}{
		{"wraps bare text", "Boxed result.", "\\begin{mdframed}\nBoxed result.\n\\end{mdframed}"},
		{"keeps block", "\\begin{mdframed}\nKept.\n\\end{mdframed}", "\\begin{mdframed}\nKept.\n\\end{mdframed}"},
		{"drops prose around block", "Here you go:\n\\begin{mdframed}\nKept.\n\\end{mdframed}\nThanks", "\\begin{mdframed}\nKept.\n\\end{mdframed}"},
		{"empty", "   \n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := asMdframed(tt.reply); got != tt.want {
				t.Errorf("asMdframed(%q) = %q, want %q", tt.reply, got, tt.want)
			}
		})
	}
}
