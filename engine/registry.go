package engine

import (
	"errors"

	log "github.com/golang/glog"
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/dom"
)

var errorRegistryDuplicated = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.registry.duplicated",
	"A component with the same selector is already registered.", "Selector: %s",
)

var errorRegistryDependency = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.registry.dependency",
	"The component depends on a selector that is not registered.", "Selector: %s", "Dependency: %s",
)

// Component a factory registered for every element matching a selector
type Component struct {
	Selector     string
	Factory      *Factory
	Dependencies []string // selectors of components mounted first

	dependencies []cmn.GNode
}

func (c *Component) GetKey() string {
	return c.Selector
}

func (c *Component) GetDependencies() []cmn.GNode {
	return c.dependencies
}

// Registry the standalone components of a page. Mounts dependencies before dependents.
type Registry struct {
	components []*Component
	bySelector map[string]*Component
	instances  []*Instance
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{bySelector: map[string]*Component{}}
}

// Register adds a component
func (r *Registry) Register(selector string, factory *Factory, dependencies ...string) error {
	if _, exists := r.bySelector[selector]; exists {
		return errorRegistryDuplicated(selector)
	}
	c := &Component{Selector: selector, Factory: factory, Dependencies: dependencies}
	r.components = append(r.components, c)
	r.bySelector[selector] = c
	return nil
}

// Resolve the mount order of the registered components
func (r *Registry) Resolve() ([]*Component, error) {
	var nodes []cmn.GNode
	for _, c := range r.components {
		c.dependencies = nil
		for _, selector := range c.Dependencies {
			dependency, exists := r.bySelector[selector]
			if !exists {
				return nil, errorRegistryDependency(c.Selector, selector)
			}
			c.dependencies = append(c.dependencies, dependency)
		}
		nodes = append(nodes, c)
	}

	sorted, err := cmn.GraphResolveDependencies(nodes)
	if err != nil {
		return nil, err
	}
	out := make([]*Component, len(sorted))
	for i, node := range sorted {
		out[i] = node.(*Component)
	}
	return out, nil
}

// MountAll mounts every registered component on the elements of the document matching its selector. A component
// that fails to mount is reported in the returned error, its siblings are mounted anyway.
func (r *Registry) MountAll(doc *dom.Document, opts MountOptions) ([]*Instance, error) {
	ordered, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	if opts.Finder == nil {
		opts.Finder = doc
	}

	var errs []error
	var mounted []*Instance
	for _, c := range ordered {
		roots, err := doc.FindAll(nil, c.Selector)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, root := range roots {
			instance, err := c.Factory.Mount(root, opts)
			if err != nil {
				log.Errorf("Component could not be mounted. selector: %s, node: %s, cause: %v",
					c.Selector, doc.DebugTag(root), err)
				errs = append(errs, err)
				continue
			}
			mounted = append(mounted, instance)
		}
	}
	r.instances = append(r.instances, mounted...)
	return mounted, errors.Join(errs...)
}

// Instances every instance mounted by this registry and not destroyed
func (r *Registry) Instances() []*Instance {
	var out []*Instance
	for _, instance := range r.instances {
		if !instance.Destroyed() {
			out = append(out, instance)
		}
	}
	return out
}

// Connected notifies every live instance that the realtime connection is established
func (r *Registry) Connected() {
	for _, instance := range r.Instances() {
		instance.Connected()
	}
}

// Disconnected notifies every live instance that the realtime connection was lost
func (r *Registry) Disconnected() {
	for _, instance := range r.Instances() {
		instance.Disconnected()
	}
}

// DestroyAll destroys every instance, dependents first
func (r *Registry) DestroyAll() {
	for i := len(r.instances) - 1; i >= 0; i-- {
		r.instances[i].Destroy()
	}
	r.instances = nil
}
