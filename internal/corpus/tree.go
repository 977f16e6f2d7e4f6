package corpus

import "strings"

// Tree is a parsed source file.
type Tree struct {
	Title    string  // from metadata or the filename
	Children []*Node // top-level headings or paragraphs
}

// Node is a heading with its text and nested headings.
type Node struct {
	Title    string // heading, empty for loose text
	Text     string
	Page     int // slide or page number, 0 if N/A
	Children []*Node
}

// Passage is a sized run of text with the headings it sits under.
type Passage struct {
	Text       string
	Index      int
	Breadcrumb []string
	Page       int
}

// outliner builds a Tree from a flat stream of headings and paragraphs,
// nesting each heading under the nearest shallower one.
type outliner struct {
	root  *Node
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *Node
	level int
}

func newOutliner(title string) *outliner {
	root := &Node{Title: title}
	return &outliner{root: root, stack: []outlineEntry{{node: root}}}
}

func (o *outliner) heading(level int, title string) {
	o.flush()
	n := &Node{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, n)
	o.stack = append(o.stack, outlineEntry{node: n, level: level})
}

func (o *outliner) paragraph(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(s)
}

func (o *outliner) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// tree finishes the outline. Text above the first heading becomes a loose
// leading node.
func (o *outliner) tree() *Tree {
	o.flush()
	t := &Tree{Title: o.root.Title}
	if o.root.Text != "" {
		t.Children = append(t.Children, &Node{Text: o.root.Text})
	}
	t.Children = append(t.Children, o.root.Children...)
	return t
}
