package dom

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/syntax-framework/stx/cmn"
	"golang.org/x/net/html"
)

var errorInvalidSelector = cmn.ErrOf(
	cmn.ErrConfig,
	"dom.selector",
	"Not a valid node selector.", "Selector: %s", "Caused by: %s",
)

// Document an in-memory html tree acting as the UI host for component instances.
//
// A Document is not safe for concurrent use, all access must happen on the control thread (see loop.Loop).
type Document struct {
	root      *html.Node
	file      string
	positions map[*html.Node]position
	elements  map[*html.Node]*Element
	selectors map[string]cascadia.Sel
	mu        sync.Mutex // guards selectors
}

func newDocument(root *html.Node, file string, positions map[*html.Node]position) *Document {
	return &Document{
		root:      root,
		file:      file,
		positions: positions,
		elements:  map[*html.Node]*Element{},
		selectors: map[string]cascadia.Sel{},
	}
}

// Root the document node
func (d *Document) Root() *Element {
	return d.wrap(d.root)
}

// wrap returns the unique Element handle of a html node
func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, exists := d.elements[n]; exists {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

func (d *Document) compile(selector string) (cascadia.Sel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sel, exists := d.selectors[selector]; exists {
		return sel, nil
	}
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, errorInvalidSelector(selector, err)
	}
	d.selectors[selector] = sel
	return sel, nil
}

// Find the first descendant of scope (or of the document when scope is nil) that matches the selector
func (d *Document) Find(scope Node, selector string) (Node, error) {
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	from := d.root
	if el, isElement := scope.(*Element); isElement && el != nil {
		from = el.node
	}
	if found := cascadia.Query(from, sel); found != nil {
		return d.wrap(found), nil
	}
	return nil, nil
}

// FindAll every descendant of scope that matches the selector, in document order
func (d *Document) FindAll(scope Node, selector string) ([]Node, error) {
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	from := d.root
	if el, isElement := scope.(*Element); isElement && el != nil {
		from = el.node
	}
	var out []Node
	for _, found := range cascadia.QueryAll(from, sel) {
		out = append(out, d.wrap(found))
	}
	return out, nil
}

// ReplaceWithText replaces the node with an empty text node, returning the new node. Used for <embed> placeholders,
// which the compiler emits where a text interpolation lives.
func (d *Document) ReplaceWithText(node Node) Node {
	el, isElement := node.(*Element)
	if !isElement || el.node.Parent == nil {
		return node
	}
	text := &html.Node{Type: html.TextNode}
	parent := el.node.Parent
	parent.InsertBefore(text, el.node)
	parent.RemoveChild(el.node)
	if pos, exists := d.positions[el.node]; exists {
		d.positions[text] = pos
	}
	delete(d.elements, el.node)
	return d.wrap(text)
}

// Render writes the current state of the tree as html
func (d *Document) Render() (string, error) {
	buf := &bytes.Buffer{}
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// DebugTag Returns the string representation of the element, with its position in the source document.
func (d *Document) DebugTag(node Node) string {
	el, isElement := node.(*Element)
	if !isElement || el == nil {
		return "<nil>"
	}
	n := el.node

	if n.Type == html.TextNode {
		return HtmlEscape(n.Data)
	}

	w := &bytes.Buffer{}
	w.WriteByte('<')
	w.WriteString(n.Data)
	for _, a := range n.Attr {
		w.WriteByte(' ')
		if a.Namespace != "" {
			w.WriteString(a.Namespace)
			w.WriteByte(':')
		}
		w.WriteString(a.Key)
		w.WriteString(`="`)
		w.WriteString(HtmlEscape(a.Val))
		w.WriteByte('"')
	}
	w.WriteByte('>')

	if pos, exists := d.positions[n]; exists {
		w.WriteString(", File: ")
		w.WriteByte('"')
		w.WriteString(d.file)
		w.WriteByte('"')
		w.WriteString(", Line: ")
		w.WriteString(strconv.Itoa(pos.line))
		w.WriteString(", Column: ")
		w.WriteString(strconv.Itoa(pos.column))
	}
	return w.String()
}

const escapedChars = "&'<>\"\r"

// HtmlEscape escapes the html special characters
func HtmlEscape(s string) string {
	w := &bytes.Buffer{}
	i := strings.IndexAny(s, escapedChars)
	for i != -1 {
		w.WriteString(s[:i])
		var esc string
		switch s[i] {
		case '&':
			esc = "&amp;"
		case '\'':
			// "&#39;" is shorter than "&apos;" and apos was not in HTML until HTML5.
			esc = "&#39;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '"':
			// "&#34;" is shorter than "&quot;".
			esc = "&#34;"
		case '\r':
			esc = "&#13;"
		}
		s = s[i+1:]
		w.WriteString(esc)
		i = strings.IndexAny(s, escapedChars)
	}
	w.WriteString(s)
	return w.String()
}
