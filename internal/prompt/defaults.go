package prompt

// Defaults are the built-in prompt templates.
var Defaults = Templates{
	Outline: `You are planning university lecture notes written in LaTeX.

Task: propose an outline for the module. Group related topics so there are at most {{.MaxSubsections}} subsections.
Your response MUST be STRICT JSON (no code fences, no prose) with this exact shape:
{
  "intro_title": "<short intro section title>",
  "subsections": [
    { "title": "<meaningful subsection title>", "topics": ["<topic slug>", ...], "summary": "<one sentence>" }
  ]
}
Only use topic slugs from the list below. Every slug should appear in some subsection.

Module: {{.Module}}
Available topic slugs: {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{end}}
Context (excerpts; summarize, do not copy verbatim):
{{.Context}}
`,

	Intro: `Draft the introduction of a LaTeX lecture-notes module.
Only return LaTeX (no code fences).
Requirements:
- Start with \section{ {{- .Title -}} } and write narrative text only.
- Do not include \subsection headings or \end{document}.
- Mention what the following subsections cover: {{range $i, $t := .Subsections}}{{if $i}}; {{end}}{{$t}}{{end}}.

Module: {{.Module}}
Context (excerpts; summarize, do not copy verbatim):
{{.Context}}
`,

	Subsection: `Draft a short first version of one LaTeX lecture-notes subsection.
Only return LaTeX (no code fences).
Requirements:
- Start with \subsection{ {{- .Title -}} }.
- A few paragraphs and at most one itemize list.
- Wrap math in \( ... \) or $ ... $; escape underscores and & outside math.
- Do not include \section or \end{document}.
{{- if .Summary}}
Planned scope: {{.Summary}}
{{- end}}

Module: {{.Module}}
Topics: {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{end}}
Context (excerpts; summarize, do not copy verbatim):
{{.Context}}
`,

	Evaluation: `Draft the closing subsection of a LaTeX lecture-notes module.
Only return LaTeX (no code fences).
Requirements:
- Start with \subsection{ {{- .Title -}} }.
- Concise bullets in an itemize list plus a short narrative.
- Refer to the actual subsection titles: {{range $i, $t := .Subsections}}{{if $i}}; {{end}}{{$t}}{{end}}.
- Do not include \section or \end{document}.

Module: {{.Module}}
`,

	Enhance: `Rewrite and expand the LaTeX subsection below into rigorous, complete lecture notes.
Only return the final LaTeX for this subsection (no code fences).
Strict requirements (must pass all):
- Start with \subsection{ {{- .Title -}} }.
- Include 1-2 \subsubsection headings as a mini-outline.
- Use itemize for bullet lists; do not output raw '-' bullets.
- Use valid LaTeX commands only; escape underscores outside math; no unescaped '&'.
- Wrap inline math and macros (e.g., \frac, \sqrt) with \( ... \) or $ ... $.
- Use \textbf{...} for bold; never 'extbf'.
- Do not include \section, code fences, or \end{document}.
- Where a worked example or key result deserves a box, leave a line "% mdframe: <what belongs here>".

Subsection title: {{.Title}}
--- Current draft ---
{{.Current}}

Context excerpts (summarize; do not copy verbatim):
{{.Context}}
Self-check before returning: no raw '&', no unescaped '_', braces balanced.
`,

	Mdframe: `Given the context of this full module, write one rigorous, correct LaTeX mdframed block.
Only return LaTeX (no code fences). Return exactly one \begin{mdframed} ... \end{mdframed} block.

--- Full module ---
{{.Document}}

--- Subsection "{{.Title}}" (current content) ---
{{.Section}}

--- mdframe to replace (existing block or placeholder) ---
{{.Target}}

--- Extra context ---
{{.Context}}
`,
}
