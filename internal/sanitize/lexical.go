package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/notesmith/internal/latex"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var (
	fenceRe       = regexp.MustCompile("```+(?:[ \\t]*(?:latex|tex)\\b)?")
	latexMarkerRe = regexp.MustCompile(`(?m)^[ \t]*latex[ \t]*$`)
)

// Control characters a JSON or string-literal decoder leaves behind when it
// eats the backslash of a macro: "\frac" arrives as form feed + "rac".
var controlEscapes = map[byte]byte{
	'\f': 'f',
	'\b': 'b',
	'\v': 'v',
	'\a': 'a',
}

// Control words starting with t or n. A stray tab, or a literal \t or \n,
// glued to the rest of one of these is a damaged macro rather than whitespace.
var (
	tMacros = map[string]bool{
		"tau": true, "theta": true, "times": true, "tilde": true, "tfrac": true,
		"tiny": true, "to": true, "today": true, "top": true, "tt": true, "title": true,
		"triangle": true, "tableofcontents": true, "thispagestyle": true, "tabularnewline": true,
	}
	nMacros = map[string]bool{
		"noindent": true, "nabla": true, "neq": true, "ne": true, "nu": true, "not": true,
		"notin": true, "nobreak": true, "nolinebreak": true, "nonumber": true,
		"normalsize": true, "natural": true, "neg": true, "nexists": true, "ni": true,
	}
	crMacros = map[string]bool{
		"rightarrow": true, "right": true, "rho": true, "ref": true,
		"rangle": true, "rfloor": true, "rceil": true, "rm": true,
	}
)

// isEscapeMacro reports whether word (including its leading t or n) names a
// control word that must keep its backslash.
func isEscapeMacro(word string) bool {
	switch {
	case strings.HasPrefix(word, "text"), strings.HasPrefix(word, "new"):
		return true
	case word[0] == 't':
		return tMacros[word]
	default:
		return nMacros[word]
	}
}

// stripFences removes code fences and decoder debris: escaped \n and \t
// literals, control characters, tabs and lone "latex" marker lines.
// Combining marks go first so that a mark cannot hide a marker line until a
// later pass.
func stripFences(s string) string {
	s = stripMarks(strings.ReplaceAll(s, "\r\n", "\n"))
	s = repairControls(s)
	for {
		next := fenceRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = collapseEscapes(s)
	return latexMarkerRe.ReplaceAllString(s, "")
}

func repairControls(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if letter, ok := controlEscapes[c]; ok {
			if i+1 < len(s) && latex.IsLetter(s[i+1]) {
				b.WriteByte('\\')
				b.WriteByte(letter)
			}
			continue
		}
		if c == '\t' || c == '\r' {
			word := letterRun(s, i+1)
			switch {
			case c == '\t' && isEscapeMacro("t"+word):
				b.WriteString(`\t`)
			case c == '\r' && crMacros["r"+word]:
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteByte(' ')
			default:
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func letterRun(s string, i int) string {
	j := i
	for j < len(s) && latex.IsLetter(s[j]) {
		j++
	}
	return s[i:j]
}

// collapseEscapes turns literal \n and \t into whitespace unless they begin
// a real control word (\noindent, \textbf) or the \t{..} accent.
func collapseEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == 'n' || s[i+1] == 't') && !latex.IsEscaped(s, i) {
			word := s[i+1:i+2] + letterRun(s, i+2)
			accent := word == "t" && i+2 < len(s) && s[i+2] == '{'
			if !accent && !isEscapeMacro(word) {
				if s[i+1] == 'n' {
					b.WriteByte('\n')
				} else {
					b.WriteByte(' ')
				}
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

var (
	entityRe      = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|nbsp);`)
	suggestionRe  = regexp.MustCompile(`(?mi)^[ \t]*mdframe suggestions?\b.*$`)
	openTagRe     = regexp.MustCompile(`(?i)<\s*mdframed\b[^>\n]*>`)
	closeTagRe    = regexp.MustCompile(`(?i)<\s*/\s*mdframed\s*>`)
	placeholderLn = "% mdframe suggestions"
)

type bareMacro struct {
	fixed string
	brace bool
}

// Macro names that lost their backslash. Matching is case-sensitive since
// LaTeX control words are.
var bareMacros = map[string]bareMacro{
	"extbf":          {fixed: `\textbf`, brace: true},
	"extit":          {fixed: `\textit`, brace: true},
	"exttt":          {fixed: `\texttt`, brace: true},
	"textbf":         {fixed: `\textbf`, brace: true},
	"textit":         {fixed: `\textit`, brace: true},
	"extwidth":       {fixed: `\textwidth`},
	"oindent":        {fixed: `\noindent`},
	"imes":           {fixed: `\times`},
	"extrightarrow":  {fixed: `\textrightarrow`},
	"textrightarrow": {fixed: `\textrightarrow`},
}

// fixTypos decodes stray HTML entities, restores missing macro escapes and
// turns <mdframed> pseudo-tags into real environments.
func fixTypos(s string) string {
	for {
		next := entityRe.ReplaceAllStringFunc(s, html.UnescapeString)
		if next == s {
			break
		}
		s = next
	}
	s = restoreBareMacros(s)
	s = suggestionRe.ReplaceAllString(s, placeholderLn)
	s = openTagRe.ReplaceAllString(s, `\begin{mdframed}`)
	return closeTagRe.ReplaceAllString(s, `\end{mdframed}`)
}

func restoreBareMacros(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for i := 0; i < len(s); {
		if !latex.IsLetter(s[i]) {
			i++
			continue
		}
		word := letterRun(s, i)
		end := i + len(word)
		fix, ok := bareMacros[word]
		isMacro := i > 0 && s[i-1] == '\\' && !latex.IsEscaped(s, i-1)
		if ok && !isMacro && (!fix.brace || (end < len(s) && s[end] == '{')) {
			b.WriteString(s[last:i])
			b.WriteString(fix.fixed)
			last = end
		}
		i = end
	}
	b.WriteString(s[last:])
	return b.String()
}

var symbolMacros = map[rune]string{
	'π': `\pi`, 'μ': `\mu`, 'σ': `\sigma`, 'ρ': `\rho`,
	'α': `\alpha`, 'β': `\beta`, 'γ': `\gamma`, 'δ': `\delta`,
	'θ': `\theta`, 'λ': `\lambda`, 'Δ': `\Delta`, 'Σ': `\Sigma`,
	'≈': `\approx`, '≤': `\leq`, '≥': `\geq`, '≠': `\neq`, '±': `\pm`,
	'∑': `\sum`, '∫': `\int`, '∈': `\in`, '∞': `\infty`, '∂': `\partial`,
	'∀': `\forall`, '∃': `\exists`,
	'×': `\times`, '·': `\cdot`,
	'→': `\rightarrow`, '←': `\leftarrow`, '⇒': `\Rightarrow`,
	'−': "-", '–': "--", '—': "---",
	'\u00a0': "~",
}

// stripMarks NFC-normalises s and drops the combining marks that survive
// composition. The final NFC re-composes characters a dropped mark kept apart.
func stripMarks(s string) string {
	s = norm.NFC.String(s)
	if !strings.ContainsFunc(s, func(r rune) bool { return unicode.Is(unicode.Mn, r) }) {
		return s
	}
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(s)
}

// mapUnicode replaces math symbols with macros and drops combining marks that
// survive NFC composition.
func mapUnicode(s string) string {
	s = stripMarks(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '√':
			arg := alnumRun(s, i)
			b.WriteString(`\sqrt{` + arg + `}`)
			i += len(arg)
		default:
			m, ok := symbolMacros[r]
			if !ok {
				b.WriteRune(r)
				continue
			}
			b.WriteString(m)
			if strings.HasPrefix(m, `\`) && i < len(s) && latex.IsLetter(s[i]) {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func alnumRun(s string, i int) string {
	j := i
	for j < len(s) && (latex.IsLetter(s[j]) || (s[j] >= '0' && s[j] <= '9')) {
		j++
	}
	return s[i:j]
}
