package dom

import (
	"io"
	"strings"

	"github.com/erinpentecost/byteline"
	"github.com/syntax-framework/stx/cmn"
	"golang.org/x/net/html"
)

var errorParseTokenizer = cmn.ErrOf(
	cmn.ErrConfig,
	"dom.parse.tokenizer",
	"An unexpected error occurred while tokenizing the html.", "Line: %d", "Column: %d", "Caused by: %s",
)

var errorParseEndTag = cmn.ErrOf(
	cmn.ErrConfig,
	"dom.parse.endingTag",
	"Mismatched ending tag.", "Expected: %s", "Found: %s", "Line: %d", "Column: %d",
)

// HtmlVoidElements Void elements are those that can't have any contents.
var HtmlVoidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true, "input": true,
	"keygen": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// position of a node in the source document
type position struct {
	line   int
	column int
}

// nodeStack is a stack of nodes.
type nodeStack []*html.Node

// pop the stack. Returns nil if s is empty.
func (s *nodeStack) pop() *html.Node {
	i := len(*s)
	if i == 0 {
		return nil
	}
	n := (*s)[i-1]
	*s = (*s)[:i-1]
	return n
}

// top returns the most recently pushed node, or nil if s is empty.
func (s *nodeStack) top() *html.Node {
	if i := len(*s); i > 0 {
		return (*s)[i-1]
	}
	return nil
}

type parser struct {
	root      *html.Node
	stack     nodeStack
	positions map[*html.Node]position
}

func (p *parser) top() *html.Node {
	if n := p.stack.top(); n != nil {
		return n
	}
	return p.root
}

// addChild adds a child node n to the top element, and pushes n onto the stack of open elements if it is an element
func (p *parser) addChild(n *html.Node, line, column int) {
	p.top().AppendChild(n)
	p.positions[n] = position{line, column}

	if n.Type == html.ElementNode {
		p.stack = append(p.stack, n)
	}
}

// addText adds text to the preceding node if it is a text node, or else it calls addChild with a new text node.
func (p *parser) addText(text string, line, column int) {
	if text == "" {
		return
	}

	t := p.top()
	if n := t.LastChild; n != nil && n.Type == html.TextNode {
		n.Data += text
		return
	}

	p.addChild(&html.Node{Type: html.TextNode, Data: text}, line, column)
}

func createNode(token html.Token) *html.Node {
	node := &html.Node{
		Data:     token.Data,
		DataAtom: token.DataAtom,
		Attr:     token.Attr,
	}
	switch token.Type {
	case html.CommentToken:
		node.Type = html.CommentNode
	case html.DoctypeToken:
		node.Type = html.DoctypeNode
	default:
		node.Type = html.ElementNode
	}
	return node
}

// Parse returns the Document for the HTML from the given content. Unlike html.Parse, the tree is kept exactly as
// written (no implicit html/head/body) and every node remembers its line and column.
//
// The input is assumed to be UTF-8 encoded.
func Parse(source string, filepath string) (*Document, error) {

	lineTracker := byteline.NewReader(strings.NewReader(source))
	tokenizer := html.NewTokenizer(lineTracker)

	p := &parser{root: &html.Node{Type: html.DocumentNode}, positions: map[*html.Node]position{}}

	prevCol := 0
	prevLine := 1

	var err error
	for err != io.EOF {
		// CDATA sections are allowed only in foreign content.
		n := p.stack.top()
		tokenizer.AllowCDATA(n != nil && n.Namespace != "")

		tokenizer.Next()

		totalOffset, _ := lineTracker.GetCurrentOffset()
		tokenOffset := totalOffset - len(tokenizer.Buffered())
		curLine, curCol, _ := lineTracker.GetLineAndColumn(tokenOffset)

		token := tokenizer.Token()
		if token.Type == html.ErrorToken {
			if err = tokenizer.Err(); err != nil {
				if err != io.EOF {
					return nil, errorParseTokenizer(prevLine, prevCol, err.Error())
				}
			} else {
				return nil, errorParseTokenizer(prevLine, prevCol, "unknown html.ErrorToken")
			}
		}

		switch token.Type {
		case html.TextToken:
			p.addText(token.Data, prevLine, prevCol)
		case html.StartTagToken:
			p.addChild(createNode(token), prevLine, prevCol)
			if HtmlVoidElements[token.Data] {
				p.stack.pop()
			}
		case html.EndTagToken:
			lastPushed := p.stack.pop()
			if lastPushed == nil || lastPushed.DataAtom != token.DataAtom || lastPushed.Data != token.Data {
				expected := ""
				if lastPushed != nil {
					expected = lastPushed.Data
				}
				return nil, errorParseEndTag(expected, token.Data, prevLine, prevCol)
			}
		case html.SelfClosingTagToken:
			p.addChild(createNode(token), prevLine, prevCol)
			p.stack.pop()
		case html.CommentToken, html.DoctypeToken:
			node := createNode(token)
			p.top().AppendChild(node)
			p.positions[node] = position{prevLine, prevCol}
		}

		prevCol = curCol + 1
		prevLine = curLine + 1
	}

	return newDocument(p.root, filepath, p.positions), nil
}
