package sanitize

import (
	"regexp"
	"strings"

	"github.com/dgallion1/notesmith/internal/latex"
)

// wrapMathMacros puts math-only macros found outside every math region into
// inline math, together with their arguments and scripts.
func wrapMathMacros(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	regions := latex.MathRegions(s)
	comments := latex.CommentSpans(s)

	var b strings.Builder
	b.Grow(len(s) + 32)
	last := 0
	for _, m := range latex.Macros(s) {
		if m.Start < last {
			continue
		}
		if _, ok := latex.MathOnly[m.Name]; !ok {
			continue
		}
		if latex.InSpans(m.Start, regions) || latex.InSpans(m.Start, comments) {
			continue
		}
		end := latex.MacroExtent(s, m)
		// Inline math cannot span a paragraph break.
		if strings.Contains(s[m.Start:end], "\n\n") {
			continue
		}
		b.WriteString(s[last:m.Start])
		b.WriteString(`\(`)
		b.WriteString(strings.ReplaceAll(s[m.Start:end], `\_`, "_"))
		b.WriteString(`\)`)
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

var (
	nestedInlineRe   = regexp.MustCompile(`\\\(\s*\\\(([^\n]*?)\\\)\s*\\\)`)
	adjacentInlineRe = regexp.MustCompile(`\\\)[ \t]*\\\(`)
	dollarInlineRe   = regexp.MustCompile(`\$[ \t]*\\\(([^\n$]*?)\\\)[ \t]*\$`)
)

// collapseDelimiters removes doubled inline-math wrappers, unwraps
// $\( .. \)$ and merges inline math spans separated only by spaces.
func collapseDelimiters(s string) string {
	for {
		next := replaceUnescaped(s, nestedInlineRe, func(m []string) string {
			return `\(` + m[1] + `\)`
		})
		next = replaceUnescaped(next, dollarInlineRe, func(m []string) string {
			return `\(` + m[1] + `\)`
		})
		next = replaceUnescaped(next, adjacentInlineRe, func([]string) string { return " " })
		if next == s {
			return s
		}
		s = next
	}
}

// replaceUnescaped applies repl to every match of re whose leading backslash
// is not itself escaped.
func replaceUnescaped(s string, re *regexp.Regexp, repl func([]string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		if latex.IsEscaped(s, m[0]) {
			continue
		}
		groups := make([]string, len(m)/2)
		for g := range groups {
			if m[2*g] >= 0 {
				groups[g] = s[m[2*g]:m[2*g+1]]
			}
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(repl(groups))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
