package latex

import (
	"regexp"
	"strings"
)

// MathOnly maps macros that are only legal in math mode to the number of
// mandatory arguments they take.
var MathOnly = map[string]int{
	"frac": 2, "dfrac": 2, "tfrac": 2, "binom": 2,
	"sqrt": 1,
	"mathbb": 1, "mathcal": 1, "mathrm": 1, "mathbf": 1, "mathit": 1, "mathsf": 1,
	"operatorname": 1,
	"hat": 1, "vec": 1, "bar": 1, "tilde": 1, "overline": 1,

	"sum": 0, "prod": 0, "int": 0, "iint": 0, "oint": 0,
	"lim": 0, "limsup": 0, "liminf": 0, "argmax": 0, "argmin": 0,
	"infty": 0, "partial": 0, "nabla": 0,
	"leq": 0, "geq": 0, "neq": 0, "approx": 0, "equiv": 0, "propto": 0, "sim": 0,
	"in": 0, "notin": 0, "subset": 0, "subseteq": 0, "cup": 0, "cap": 0,
	"pm": 0, "mp": 0, "cdot": 0, "times": 0, "div": 0,
	"rightarrow": 0, "leftarrow": 0, "Rightarrow": 0, "Leftarrow": 0,
	"leftrightarrow": 0, "Leftrightarrow": 0, "mapsto": 0, "to": 0,
	"forall": 0, "exists": 0,

	"alpha": 0, "beta": 0, "gamma": 0, "delta": 0, "epsilon": 0, "varepsilon": 0,
	"zeta": 0, "eta": 0, "theta": 0, "lambda": 0, "mu": 0, "nu": 0, "xi": 0,
	"pi": 0, "rho": 0, "sigma": 0, "tau": 0, "phi": 0, "varphi": 0, "chi": 0,
	"psi": 0, "omega": 0,
	"Gamma": 0, "Delta": 0, "Theta": 0, "Lambda": 0, "Sigma": 0, "Phi": 0,
	"Psi": 0, "Omega": 0,
}

var mathEnvs = map[string]bool{
	"equation": true, "equation*": true,
	"align": true, "align*": true,
	"alignat": true, "alignat*": true,
	"flalign": true, "flalign*": true,
	"gather": true, "gather*": true,
	"multline": true, "multline*": true,
	"eqnarray": true, "eqnarray*": true,
	"displaymath": true, "math": true,
}

// IsMathEnv reports whether name is a display or inline math environment.
func IsMathEnv(name string) bool { return mathEnvs[name] }

var beginRe = regexp.MustCompile(`^\\begin\s*\{([^{}\n]*)\}`)

// MathRegions returns the spans of s already in math mode: \( \), \[ \],
// $ $, $$ $$ and math environments. An opener without a closer is treated as
// literal text. Inline math never crosses a blank line.
func MathRegions(s string) []Span {
	var out []Span
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '%' && !IsEscaped(s, i):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return out
			}
			i += nl + 1
			continue

		case c == '$' && !IsEscaped(s, i):
			if i+1 < len(s) && s[i+1] == '$' {
				if end := findUnescaped(s, i+2, "$$", false); end >= 0 {
					out = append(out, Span{Start: i, End: end + 2})
					i = end + 2
					continue
				}
				i += 2
				continue
			}
			if end := findUnescaped(s, i+1, "$", true); end >= 0 {
				out = append(out, Span{Start: i, End: end + 1})
				i = end + 1
				continue
			}

		case c == '\\' && i+1 < len(s):
			switch s[i+1] {
			case '\\':
				i += 2
				continue
			case '(':
				if end := findUnescaped(s, i+2, `\)`, true); end >= 0 {
					out = append(out, Span{Start: i, End: end + 2})
					i = end + 2
					continue
				}
				i += 2
				continue
			case '[':
				if end := findUnescaped(s, i+2, `\]`, false); end >= 0 {
					out = append(out, Span{Start: i, End: end + 2})
					i = end + 2
					continue
				}
				i += 2
				continue
			}
			if m := beginRe.FindStringSubmatch(s[i:]); m != nil && mathEnvs[strings.TrimSpace(m[1])] {
				closer := `\end{` + strings.TrimSpace(m[1]) + `}`
				if end := findUnescaped(s, i+len(m[0]), closer, false); end >= 0 {
					out = append(out, Span{Start: i, End: end + len(closer)})
					i = end + len(closer)
					continue
				}
			}
		}
		i++
	}
	return out
}

// findUnescaped returns the index of the next unescaped tok at or after from,
// or -1. With inline set, a blank line ends the search.
func findUnescaped(s string, from int, tok string, inline bool) int {
	for from <= len(s) {
		idx := strings.Index(s[from:], tok)
		if idx < 0 {
			return -1
		}
		pos := from + idx
		if inline && strings.Contains(s[from:pos], "\n\n") {
			return -1
		}
		if !IsEscaped(s, pos) {
			return pos
		}
		from = pos + 1
	}
	return -1
}

// Blank returns s with every byte inside spans replaced by a space, keeping
// newlines so offsets and line numbers are preserved.
func Blank(s string, spans []Span) string {
	if len(spans) == 0 {
		return s
	}
	b := []byte(s)
	for _, sp := range spans {
		for i := sp.Start; i < sp.End && i < len(b); i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

// MacroExtent returns the end offset of m once its mandatory arguments, the
// optional root index of \sqrt, and any trailing sub- or superscripts are
// included.
func MacroExtent(s string, m Macro) int {
	p := m.End
	if m.Name == "sqrt" {
		q := skipBlank(s, p)
		if q < len(s) && s[q] == '[' {
			if e := strings.IndexAny(s[q:], "]\n"); e >= 0 && s[q+e] == ']' {
				p = q + e + 1
			}
		}
	}
	for range MathOnly[m.Name] {
		q := argEnd(s, skipBlank(s, p))
		if q < 0 {
			break
		}
		p = q
	}
	for {
		q := scriptEnd(s, p)
		if q < 0 {
			return p
		}
		p = q
	}
}

func skipBlank(s string, p int) int {
	for p < len(s) && (s[p] == ' ' || s[p] == '\t') {
		p++
	}
	return p
}

func isAlnum(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9')
}

// argEnd consumes one macro argument at p: a brace group, a control word or
// a single alphanumeric character.
func argEnd(s string, p int) int {
	if p >= len(s) {
		return -1
	}
	switch c := s[p]; {
	case c == '{':
		return GroupEnd(s, p)
	case c == '\\':
		j := p + 1
		for j < len(s) && isLetter(s[j]) {
			j++
		}
		if j == p+1 {
			return -1
		}
		return j
	case isAlnum(c):
		return p + 1
	}
	return -1
}

// scriptEnd consumes a ^x, _x or escaped \_x script at p. A bare letter run
// after the marker is prose, not a subscript.
func scriptEnd(s string, p int) int {
	switch {
	case strings.HasPrefix(s[p:], `\_`):
		p += 2
	case p < len(s) && (s[p] == '_' || s[p] == '^'):
		p++
	default:
		return -1
	}
	q := argEnd(s, p)
	if q < 0 {
		return -1
	}
	if s[p] != '{' && s[p] != '\\' && q < len(s) && isLetter(s[q]) {
		return -1
	}
	return q
}
