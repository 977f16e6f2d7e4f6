// Package latex holds the lexical primitives shared by the sanitizer and the
// validator: escape detection, control-word scanning, environment tokens and
// math-region discovery. Nothing here rewrites text.
package latex

import (
	"regexp"
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// IsEscaped reports whether s[i] is preceded by an odd run of backslashes.
func IsEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsLetter reports whether c is an ASCII letter, the only bytes that can make
// up a control word.
func IsLetter(c byte) bool { return isLetter(c) }

// Macro is a control word such as \frac. Start points at the backslash, End
// just past the last letter of Name.
type Macro struct {
	Name  string
	Start int
	End   int
}

// Macros returns every control word in s, left to right. A doubled backslash
// is a line break, not the start of a macro.
func Macros(s string) []Macro {
	var out []Macro
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isLetter(s[j]) {
			j++
		}
		if j > i+1 {
			out = append(out, Macro{Name: s[i+1 : j], Start: i, End: j})
			i = j - 1
		}
	}
	return out
}

// HasMacro reports whether s contains the control word name.
func HasMacro(s, name string) bool {
	for _, m := range Macros(s) {
		if m.Name == name {
			return true
		}
	}
	return false
}

// CommentSpans returns the ranges covered by % comments, each running to the
// end of its line (newline excluded).
func CommentSpans(s string) []Span {
	var out []Span
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || IsEscaped(s, i) {
			continue
		}
		end := strings.IndexByte(s[i:], '\n')
		if end < 0 {
			end = len(s)
		} else {
			end += i
		}
		out = append(out, Span{Start: i, End: end})
		i = end
	}
	return out
}

// InSpans reports whether pos falls inside any of spans. spans must be sorted
// and non-overlapping.
func InSpans(pos int, spans []Span) bool {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End > pos })
	return i < len(spans) && spans[i].Start <= pos
}

// EnvToken is one \begin{name} or \end{name} occurrence.
type EnvToken struct {
	Begin bool
	Name  string
	Start int
	End   int
}

var envTokenRe = regexp.MustCompile(`\\(begin|end)\s*\{([^{}\n]*)\}`)

// EnvTokens returns the environment tokens of s in order, ignoring escaped
// backslashes and anything inside comments.
func EnvTokens(s string) []EnvToken {
	comments := CommentSpans(s)
	var out []EnvToken
	for _, m := range envTokenRe.FindAllStringSubmatchIndex(s, -1) {
		if IsEscaped(s, m[0]) || InSpans(m[0], comments) {
			continue
		}
		out = append(out, EnvToken{
			Begin: s[m[2]:m[3]] == "begin",
			Name:  strings.TrimSpace(s[m[4]:m[5]]),
			Start: m[0],
			End:   m[1],
		})
	}
	return out
}

// EnvStack tracks currently open environments, innermost last.
type EnvStack []string

func (st *EnvStack) Push(name string) { *st = append(*st, name) }

// Pop closes the innermost open environment called name, discarding anything
// opened after it. It reports false and leaves the stack alone when name is
// not open.
func (st *EnvStack) Pop(name string) bool {
	for i := len(*st) - 1; i >= 0; i-- {
		if (*st)[i] == name {
			*st = (*st)[:i]
			return true
		}
	}
	return false
}

// Top returns the innermost open environment, or "" when none is open.
func (st EnvStack) Top() string {
	if len(st) == 0 {
		return ""
	}
	return st[len(st)-1]
}

// Any reports whether any open environment satisfies pred.
func (st EnvStack) Any(pred func(string) bool) bool {
	for _, name := range st {
		if pred(name) {
			return true
		}
	}
	return false
}

// Apply feeds a token into the stack.
func (st *EnvStack) Apply(tok EnvToken) {
	if tok.Begin {
		st.Push(tok.Name)
	} else {
		st.Pop(tok.Name)
	}
}

// GroupEnd returns the index just past the brace group opening at s[i], or -1
// if s[i] is not an unescaped '{' or the group never closes.
func GroupEnd(s string, i int) int {
	if i >= len(s) || s[i] != '{' || IsEscaped(s, i) {
		return -1
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '{':
			if !IsEscaped(s, j) {
				depth++
			}
		case '}':
			if !IsEscaped(s, j) {
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
	}
	return -1
}
