// Package engine hydrates component descriptors into live instances: variable invalidation, watcher dispatch,
// lifecycle hooks, frame aligned rendering and the materialization of writers.
//
// Order of initialization of an instance
//
//  1. INITIALIZER  runs the script to obtain expressions, lifecycle hooks and exported API
//  2. WATCHERS     observes the changes of the variables
//  3. EVENTS       adds all the events to the UI nodes
//  4. HOOKS        fires onMount
//
// Writers are materialized on first schedule.
package engine

import (
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/descriptor"
	"github.com/syntax-framework/stx/dom"
	"github.com/syntax-framework/stx/loop"
)

var errorMountOptions = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.mount.options",
	"Missing mount option.", "Option: %s", "File: %s", "Line: %s",
)

// Finder resolves node selectors, *dom.Document is the default implementation
type Finder interface {
	Find(scope dom.Node, selector string) (dom.Node, error)
}

// textReplacer is implemented by finders able to swap an <embed> placeholder for a text node
type textReplacer interface {
	ReplaceWithText(node dom.Node) dom.Node
}

// MountOptions the collaborators of an instance
type MountOptions struct {
	Host    loop.Host
	Finder  Finder
	Metrics *Metrics // optional
}

// Factory creates instances of one component. The descriptor is validated once and shared by all instances.
type Factory struct {
	desc *descriptor.Descriptor
}

// NewFactory validates the descriptor
func NewFactory(desc *descriptor.Descriptor) (*Factory, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Factory{desc: desc}, nil
}

// Descriptor the component definition
func (f *Factory) Descriptor() *descriptor.Descriptor {
	return f.desc
}

// Mount creates an instance bound to root. Errors are config errors, fatal only to this instance.
func (f *Factory) Mount(root dom.Node, opts MountOptions) (*Instance, error) {
	if opts.Host == nil {
		return nil, errorMountOptions("Host", f.desc.File, f.desc.Line)
	}
	if opts.Finder == nil {
		if el, isElement := root.(*dom.Element); isElement {
			opts.Finder = el.Document()
		} else {
			return nil, errorMountOptions("Finder", f.desc.File, f.desc.Line)
		}
	}
	return newInstance(f, root, opts)
}
