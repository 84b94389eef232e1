package engine

import (
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/syntax-framework/stx/descriptor"
	"github.com/syntax-framework/stx/dom"
)

// BooleanAttributes attributes whose presence is the value, set to their own name when truthy, removed otherwise
var BooleanAttributes = map[string]bool{
	"allowfullscreen": true, "async": true, "autofocus": true, "autoplay": true, "checked": true, "controls": true,
	"default": true, "defer": true, "disabled": true, "formnovalidate": true, "ismap": true, "itemscope": true,
	"loop": true, "multiple": true, "muted": true, "nomodule": true, "novalidate": true, "open": true,
	"playsinline": true, "readonly": true, "required": true, "reversed": true, "selected": true, "truespeed": true,
}

// writerRecord the arena entry of a writer, materialized on first successful execution
type writerRecord struct {
	materialized bool
	patch        func() error
}

// schedule enqueues the writer for the next frame. A writer already queued keeps its position.
func (i *Instance) schedule(writer int) {
	if i.destroyed {
		return
	}
	i.scheduled.Add(writer)
	if !i.armed {
		i.armed = true
		i.host.RequestFrame(i.render)
	}
}

// render flushes the writer queue, at most once per frame
func (i *Instance) render() {
	if i.destroyed {
		i.armed = false
		return
	}
	start := time.Now()

	i.safe("beforeRender", i.hooks.BeforeRender)

	// writers scheduled from here on belong to the next frame
	i.armed = false
	queue := i.scheduled.Clear()
	for _, writer := range queue {
		writer := writer
		i.safe("render", func() error {
			return i.write(writer)
		})
	}

	i.safe("afterRender", i.hooks.AfterRender)
	i.metrics.flush(time.Since(start).Seconds(), len(queue))
}

func (i *Instance) write(writer int) error {
	record := &i.writers[writer]
	if !record.materialized {
		patch, err := i.materialize(i.desc.Writers[writer])
		if err != nil {
			return err
		}
		record.patch = patch
		record.materialized = true
	}
	return record.patch()
}

// materialize builds the patch of a writer, resolving the target node. Nothing is cached when the node does not
// exist, the next schedule tries again.
func (i *Instance) materialize(writer descriptor.Writer) (func() error, error) {
	node, err := i.node(writer.Node)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, errorNodeNotFound(i.desc.Elements[writer.Node], i.desc.File, i.desc.Line)
	}
	expressions := i.script.Expressions

	switch writer.Kind {
	case descriptor.WriterText:
		expression := expressions[writer.Expression]
		return func() error {
			value, err := expression()
			if err != nil {
				return err
			}
			node.SetText(ToString(value))
			return nil
		}, nil

	case descriptor.WriterAttribute:
		expression := expressions[writer.Expression]
		apply := attributeSetter(node, i.desc.Attributes[writer.Attribute])
		return func() error {
			value, err := expression()
			if err != nil {
				return err
			}
			apply(value)
			return nil
		}, nil
	}

	// templated attribute, written only when the rendered text changes
	apply := attributeSetter(node, i.desc.Attributes[writer.Attribute])
	parts := writer.Template
	var rendered bool
	var last uint64
	return func() error {
		sb := strings.Builder{}
		for _, part := range parts {
			if !part.IsExpression {
				sb.WriteString(part.Literal)
				continue
			}
			value, err := expressions[part.Expression]()
			if err != nil {
				return err
			}
			sb.WriteString(ToString(value))
		}
		text := sb.String()
		sum := xxhash.Sum64String(text)
		if rendered && sum == last {
			return nil
		}
		apply(text)
		rendered = true
		last = sum
		return nil
	}, nil
}

func attributeSetter(node dom.Node, name string) func(value interface{}) {
	if name == "value" {
		return func(value interface{}) {
			node.SetValue(ToString(value))
		}
	}
	if BooleanAttributes[name] {
		return func(value interface{}) {
			if Truthy(value) {
				node.SetAttribute(name, name)
			} else {
				node.RemoveAttribute(name)
			}
		}
	}
	return func(value interface{}) {
		node.SetAttribute(name, ToString(value))
	}
}

// node resolves an element index of the descriptor
func (i *Instance) node(index int) (dom.Node, error) {
	if index < 0 || index >= len(i.desc.Elements) {
		return nil, nil
	}
	return i.lookup(i.desc.Elements[index])
}

// lookup resolves a selector against the instance root. Only found nodes are cached.
func (i *Instance) lookup(selector string) (dom.Node, error) {
	if node, exists := i.nodes[selector]; exists {
		return node, nil
	}
	node, err := i.finder.Find(i.root, selector)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	if node.Tag() == "embed" {
		// text placeholder
		if replacer, isReplacer := i.finder.(textReplacer); isReplacer {
			node = replacer.ReplaceWithText(node)
		}
	}
	i.nodes[selector] = node
	return node, nil
}
