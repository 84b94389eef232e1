// Package dom is the UI host tree used by component instances: node handles, attributes, text, form values and
// event listeners.
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Event an UI event delivered to the listeners of a node
type Event struct {
	Type   string
	Target Node
	Data   interface{} // optional, event specific
}

// Listener handles an Event
type Listener func(event *Event)

// Node a live UI node handle
type Node interface {
	Tag() string
	Text() string
	SetText(text string)
	Attribute(name string) (string, bool)
	SetAttribute(name, value string)
	RemoveAttribute(name string)
	// Value the node value property (form controls), may diverge from the `value` attribute
	Value() string
	SetValue(value string)
	// AddEventListener registers the listener, returns the function that removes it
	AddEventListener(name string, listener Listener) (remove func())
	// Dispatch calls the listeners registered for the event type, in registration order
	Dispatch(event *Event)
}

type listenerEntry struct {
	listener Listener
}

// Element a Node backed by a html.Node of a Document
type Element struct {
	doc       *Document
	node      *html.Node
	value     *string
	listeners map[string][]*listenerEntry
}

// Tag the tag name, "#text" for text nodes
func (e *Element) Tag() string {
	if e.node.Type == html.TextNode {
		return "#text"
	}
	return e.node.Data
}

// Text the concatenated text content of this node
func (e *Element) Text() string {
	if e.node.Type == html.TextNode {
		return e.node.Data
	}
	sb := &strings.Builder{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			} else {
				walk(c)
			}
		}
	}
	walk(e.node)
	return sb.String()
}

// SetText replaces all children with a single text node (textContent semantics)
func (e *Element) SetText(text string) {
	if e.node.Type == html.TextNode {
		e.node.Data = text
		return
	}
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		delete(e.doc.elements, c)
		c = next
	}
	if text != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func (e *Element) Attribute(name string) (string, bool) {
	for _, attr := range e.node.Attr {
		if attr.Namespace == "" && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

func (e *Element) SetAttribute(name, value string) {
	for i, attr := range e.node.Attr {
		if attr.Namespace == "" && attr.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Element) RemoveAttribute(name string) {
	attrs := e.node.Attr[:0]
	for _, attr := range e.node.Attr {
		if attr.Namespace == "" && attr.Key == name {
			continue
		}
		attrs = append(attrs, attr)
	}
	e.node.Attr = attrs
}

func (e *Element) Value() string {
	if e.value != nil {
		return *e.value
	}
	if e.node.Data == "textarea" {
		return e.Text()
	}
	value, _ := e.Attribute("value")
	return value
}

// SetValue sets the value property. The rendered markup mirrors it (`value` attribute, or content of a textarea).
func (e *Element) SetValue(value string) {
	e.value = &value
	if e.node.Data == "textarea" {
		e.SetText(value)
	} else {
		e.SetAttribute("value", value)
	}
}

func (e *Element) AddEventListener(name string, listener Listener) (remove func()) {
	if e.listeners == nil {
		e.listeners = map[string][]*listenerEntry{}
	}
	entry := &listenerEntry{listener: listener}
	e.listeners[name] = append(e.listeners[name], entry)
	return func() {
		entries := e.listeners[name]
		for i, other := range entries {
			if other == entry {
				e.listeners[name] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (e *Element) Dispatch(event *Event) {
	if event.Target == nil {
		event.Target = e
	}
	entries := append([]*listenerEntry(nil), e.listeners[event.Type]...)
	for _, entry := range entries {
		entry.listener(event)
	}
}

// Document the document that owns this element
func (e *Element) Document() *Document {
	return e.doc
}
