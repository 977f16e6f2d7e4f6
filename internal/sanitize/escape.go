package sanitize

import (
	"strings"

	"github.com/dgallion1/notesmith/internal/latex"
)

// Macros whose first brace argument is a key or path, where an underscore
// must stay literal.
var protectedArgs = map[string]bool{
	"label": true, "ref": true, "eqref": true, "pageref": true, "autoref": true,
	"cite": true, "url": true, "href": true, "input": true, "include": true,
	"includegraphics": true, "bibliography": true,
}

// escapeUnderscores escapes bare underscores on lines that carry no math
// delimiter and do not sit inside a multi-line math block.
func escapeUnderscores(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	regions := latex.MathRegions(s)
	protected := protectedSpans(s)
	comments := latex.CommentSpans(s)

	var b strings.Builder
	b.Grow(len(s) + 16)
	lineStart := 0
	for lineStart <= len(s) {
		lineEnd := strings.IndexByte(s[lineStart:], '\n')
		if lineEnd < 0 {
			lineEnd = len(s)
		} else {
			lineEnd += lineStart
		}
		line := s[lineStart:lineEnd]
		if hasMathDelimiter(line) || latex.InSpans(lineStart, regions) {
			b.WriteString(line)
		} else {
			for i := lineStart; i < lineEnd; i++ {
				if s[i] == '_' && !latex.IsEscaped(s, i) &&
					!latex.InSpans(i, protected) && !latex.InSpans(i, comments) {
					b.WriteByte('\\')
				}
				b.WriteByte(s[i])
			}
		}
		if lineEnd == len(s) {
			break
		}
		b.WriteByte('\n')
		lineStart = lineEnd + 1
	}
	return b.String()
}

func hasMathDelimiter(line string) bool {
	return strings.Contains(line, "$") || strings.Contains(line, `\(`) || strings.Contains(line, `\[`)
}

func protectedSpans(s string) []latex.Span {
	var out []latex.Span
	for _, m := range latex.Macros(s) {
		if !protectedArgs[m.Name] {
			continue
		}
		p := m.End
		if p < len(s) && s[p] == '[' {
			if e := strings.IndexAny(s[p:], "]\n"); e >= 0 && s[p+e] == ']' {
				p += e + 1
			}
		}
		if end := latex.GroupEnd(s, p); end > 0 {
			out = append(out, latex.Span{Start: p, End: end})
		}
	}
	return out
}

// Environments in which a bare & is an alignment tab.
var alignEnvs = map[string]bool{
	"tabular": true, "tabular*": true, "tabularx": true, "longtable": true, "array": true,
	"align": true, "align*": true, "aligned": true, "alignat": true, "alignat*": true,
	"flalign": true, "flalign*": true,
	"eqnarray": true, "eqnarray*": true, "split": true, "cases": true,
	"matrix": true, "pmatrix": true, "bmatrix": true, "Bmatrix": true,
	"vmatrix": true, "Vmatrix": true, "smallmatrix": true,
}

// escapeAmpersands escapes every bare & unless the innermost open environment
// is an alignment environment.
func escapeAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	tokens := latex.EnvTokens(s)
	var stack latex.EnvStack
	var b strings.Builder
	b.Grow(len(s) + 16)
	next := 0
	for i := 0; i < len(s); i++ {
		for next < len(tokens) && tokens[next].End <= i {
			stack.Apply(tokens[next])
			next++
		}
		if s[i] == '&' && !latex.IsEscaped(s, i) && !alignEnvs[stack.Top()] {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
