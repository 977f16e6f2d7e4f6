// Package sanitize repairs LaTeX fragments returned by the generation
// service. Sanitize is total and idempotent: running it on its own output
// changes nothing.
package sanitize

import "strings"

// Pass is one named rewrite step.
type Pass struct {
	Name  string
	Apply func(string) string
}

// Passes is the fixed pipeline. Order matters: later passes rely on the
// whitespace, escaping and list structure established by earlier ones.
var Passes = []Pass{
	{Name: "fences", Apply: stripFences},
	{Name: "typos", Apply: fixTypos},
	{Name: "unicode", Apply: mapUnicode},
	{Name: "underscores", Apply: escapeUnderscores},
	{Name: "ampersands", Apply: escapeAmpersands},
	{Name: "lonely-items", Apply: wrapLonelyItems},
	{Name: "flatten-lists", Apply: flattenLists},
	{Name: "math-macros", Apply: wrapMathMacros},
	{Name: "math-delimiters", Apply: collapseDelimiters},
}

// Sanitize runs every pass in order and trims the result.
func Sanitize(text string) string {
	for _, p := range Passes {
		text = p.Apply(text)
	}
	return strings.TrimSpace(text)
}

// Lookup finds a pass by name, for running one step in isolation.
func Lookup(name string) (Pass, bool) {
	for _, p := range Passes {
		if p.Name == name {
			return p, true
		}
	}
	return Pass{}, false
}
