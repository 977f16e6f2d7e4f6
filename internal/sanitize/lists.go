package sanitize

import (
	"strings"

	"github.com/dgallion1/notesmith/internal/latex"
)

var listEnvs = map[string]bool{
	"itemize":     true,
	"enumerate":   true,
	"description": true,
}

func isListEnv(name string) bool { return listEnvs[name] }

func isItemLine(line string) bool {
	t := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(t, `\item`) {
		return false
	}
	return len(t) == len(`\item`) || !latex.IsLetter(t[len(`\item`)])
}

// balanced reports whether the environment tokens on a line open and close
// in matching pairs.
func balanced(tokens []latex.EnvToken) bool {
	var st latex.EnvStack
	for _, tok := range tokens {
		if tok.Begin {
			st.Push(tok.Name)
		} else if st.Top() != tok.Name {
			return false
		} else {
			st.Pop(tok.Name)
		}
	}
	return len(st) == 0
}

// wrapLonelyItems wraps runs of \item lines that appear outside any list
// environment in a synthesised itemize.
func wrapLonelyItems(s string) string {
	if !strings.Contains(s, `\item`) {
		return s
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)
	var stack latex.EnvStack
	for i := 0; i < len(lines); {
		if isItemLine(lines[i]) && !stack.Any(isListEnv) && !alignEnvs[stack.Top()] {
			j := i
			for j < len(lines) && isItemLine(lines[j]) && balanced(latex.EnvTokens(lines[j])) {
				j++
			}
			if j > i {
				indent := lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
				out = append(out, indent+`\begin{itemize}`)
				out = append(out, lines[i:j]...)
				out = append(out, indent+`\end{itemize}`)
				i = j
				continue
			}
		}
		for _, tok := range latex.EnvTokens(lines[i]) {
			stack.Apply(tok)
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

// soleToken reports the list environment named by a line that holds nothing
// but \begin{name} or \end{name}.
func soleToken(line string, begin bool) (string, bool) {
	t := strings.TrimSpace(line)
	toks := latex.EnvTokens(t)
	if len(toks) != 1 || toks[0].Begin != begin || toks[0].Start != 0 || toks[0].End != len(t) {
		return "", false
	}
	if !listEnvs[toks[0].Name] {
		return "", false
	}
	return toks[0].Name, true
}

// flattenLists collapses \begin{L} immediately followed by another \begin{L}
// into a single level, removing the inner pair.
func flattenLists(s string) string {
	if !strings.Contains(s, `\begin`) {
		return s
	}
	lines := strings.Split(s, "\n")
	for {
		next, ok := flattenOnce(lines)
		if !ok {
			return strings.Join(lines, "\n")
		}
		lines = next
	}
}

func flattenOnce(lines []string) ([]string, bool) {
	for i := range lines {
		name, ok := soleToken(lines[i], true)
		if !ok {
			continue
		}
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) {
			continue
		}
		if inner, ok := soleToken(lines[j], true); !ok || inner != name {
			continue
		}
		k := matchingEnd(lines, j, name)
		if k < 0 {
			continue
		}
		out := make([]string, 0, len(lines)-2)
		out = append(out, lines[:j]...)
		out = append(out, lines[j+1:k]...)
		out = append(out, lines[k+1:]...)
		return out, true
	}
	return lines, false
}

// matchingEnd finds the line closing the environment opened on line start.
// It returns -1 unless that closing line holds only the \end token.
func matchingEnd(lines []string, start int, name string) int {
	depth := 0
	for k := start; k < len(lines); k++ {
		for _, tok := range latex.EnvTokens(lines[k]) {
			if tok.Name != name {
				continue
			}
			if tok.Begin {
				depth++
				continue
			}
			depth--
			if depth == 0 {
				if _, ok := soleToken(lines[k], false); ok {
					return k
				}
				return -1
			}
		}
	}
	return -1
}
