package engine

import (
	"sort"

	log "github.com/golang/glog"
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/descriptor"
	"github.com/syntax-framework/stx/dom"
	"github.com/syntax-framework/stx/loop"
)

var errorInitializer = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.initializer",
	"The component initializer failed.", "File: %s", "Line: %s", "Caused by: %v",
)

var errorCallback = cmn.ErrOf(
	cmn.ErrCallback,
	"engine.callback",
	"Callback failed.", "Trace: %s", "File: %s", "Line: %s", "Caused by: %v",
)

var errorNodeNotFound = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.node",
	"The target node does not exist.", "Selector: %s", "File: %s", "Line: %s",
)

var errorInputSetter = cmn.ErrOf(
	cmn.ErrConfig,
	"engine.input.setter",
	"The setter expression does not exist.", "Expression: %d", "File: %s", "Line: %s",
)

// Instance a mounted component. All methods must be called from the host event loop.
type Instance struct {
	factory *Factory
	desc    *descriptor.Descriptor
	root    dom.Node
	host    loop.Host
	finder  Finder
	metrics *Metrics

	script  *descriptor.Script
	hooks   descriptor.Hooks
	onError func(trace string, err error)

	mounting  bool
	updating  bool
	destroyed bool
	dirty     map[int]bool

	observers map[int][]func() error // slot -> observers, in descriptor order
	nodes     map[string]dom.Node    // resolved selectors
	removers  []func()               // event listeners

	scheduled *cmn.IndexedSet[int] // writer queue
	armed     bool                 // a frame request is pending
	writers   []writerRecord
}

func newInstance(f *Factory, root dom.Node, opts MountOptions) (inst *Instance, err error) {
	inst = &Instance{
		factory:   f,
		desc:      f.desc,
		root:      root,
		host:      opts.Host,
		finder:    opts.Finder,
		metrics:   opts.Metrics,
		mounting:  true,
		dirty:     map[int]bool{},
		observers: map[int][]func() error{},
		nodes:     map[string]dom.Node{},
		scheduled: &cmn.IndexedSet[int]{},
		writers:   make([]writerRecord, len(f.desc.Writers)),
	}

	// 1. INITIALIZER
	script, err := inst.initialize()
	if err != nil {
		return nil, err
	}
	if err = inst.desc.ValidateScript(script); err != nil {
		return nil, err
	}
	inst.script = script
	inst.hooks = script.Hooks
	inst.onError = script.Hooks.OnError
	if inst.onError == nil {
		inst.onError = inst.logError
	}

	// 2. WATCHERS
	expressions := script.Expressions
	for _, watcher := range inst.desc.Watchers {
		var observer func() error
		if watcher.Kind == descriptor.Action {
			expression := expressions[watcher.Target]
			observer = func() error {
				_, err := expression()
				return err
			}
		} else {
			writer := watcher.Target
			observer = func() error {
				inst.schedule(writer)
				return nil
			}
		}
		inst.observers[watcher.Slot] = append(inst.observers[watcher.Slot], observer)
	}

	// 3. EVENTS
	for _, event := range inst.desc.Events {
		inst.listen(event)
	}

	// 4. HOOKS
	inst.mounting = false
	inst.safe("onMount", inst.hooks.OnMount)
	inst.dirty = map[int]bool{}

	return inst, nil
}

func (i *Instance) initialize() (script *descriptor.Script, err error) {
	defer func() {
		if r := recover(); r != nil {
			script = nil
			err = errorInitializer(i.desc.File, i.desc.Line, cmn.Recovered(r))
		}
	}()
	script, err = i.desc.Initializer(&api{i})
	if err != nil {
		return nil, errorInitializer(i.desc.File, i.desc.Line, err)
	}
	if script == nil {
		script = &descriptor.Script{}
	}
	return script, nil
}

func (i *Instance) listen(event descriptor.Event) {
	node, err := i.node(event.Node)
	if err != nil || node == nil {
		if err == nil {
			err = errorNodeNotFound(i.desc.Elements[event.Node], i.desc.File, i.desc.Line)
		}
		i.fail("event", err)
		return
	}
	name := i.desc.EventNames[event.Name]
	expression := i.script.Expressions[event.Expression]
	remove := node.AddEventListener(name, func(e *dom.Event) {
		if i.destroyed {
			return
		}
		i.safe("event", func() error {
			_, err := expression(e)
			return err
		})
		if i.hooks.OnEvent != nil {
			i.safe("onEvent", func() error {
				return i.hooks.OnEvent(name, e)
			})
		}
	})
	i.removers = append(i.removers, remove)
}

// Invalidate notifies that the variable of the slot changed from previous to next. Returns next.
func (i *Instance) Invalidate(slot int, previous, next interface{}) interface{} {
	if i.destroyed || !Changed(previous, next) {
		return next
	}

	if !i.mounting && !i.updating {
		i.updating = true
		i.safe("beforeUpdate", i.hooks.BeforeUpdate)
		i.host.QueueMicrotask(func() {
			i.updating = false
			if !i.destroyed {
				i.safe("afterUpdate", i.hooks.AfterUpdate)
			}
			i.dirty = map[int]bool{}
		})
	}

	i.dirty[slot] = true
	i.dispatch(slot)
	return next
}

// dispatch invokes the observers of the slot in registration order, a failing observer does not stop the others
func (i *Instance) dispatch(slot int) {
	for _, observer := range i.observers[slot] {
		i.safe("dispatch", observer)
	}
}

// OnInputChange two-way binding, passes the current value of the event target to the setter expression
func (i *Instance) OnInputChange(event *dom.Event, setter int) {
	i.safe("onInputChange", func() error {
		if setter < 0 || setter >= len(i.script.Expressions) {
			return errorInputSetter(setter, i.desc.File, i.desc.Line)
		}
		var value interface{}
		if event != nil && event.Target != nil {
			value = event.Target.Value()
		}
		_, err := i.script.Expressions[setter](value)
		return err
	})
}

// API the exports of the component script
func (i *Instance) API() interface{} {
	return i.script.Exports
}

// Root the node the instance was mounted on
func (i *Instance) Root() dom.Node {
	return i.root
}

// Dirty the slots invalidated in the current update batch, sorted
func (i *Instance) Dirty() []int {
	out := make([]int, 0, len(i.dirty))
	for slot := range i.dirty {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// Connected fires onConnect, used when the realtime connection is established
func (i *Instance) Connected() {
	if !i.destroyed {
		i.safe("onConnect", i.hooks.OnConnect)
	}
}

// Disconnected fires onDisconnect
func (i *Instance) Disconnected() {
	if !i.destroyed {
		i.safe("onDisconnect", i.hooks.OnDisconnect)
	}
}

// Destroy removes the event listeners and fires onDestroy. Pending frames of the instance become no-ops.
func (i *Instance) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	for _, remove := range i.removers {
		remove()
	}
	i.removers = nil
	i.scheduled.Clear()
	i.safe("onDestroy", i.hooks.OnDestroy)
}

// Destroyed reports whether Destroy was called
func (i *Instance) Destroyed() bool {
	return i.destroyed
}

// safe runs a user callback, errors and panics are forwarded to onError and never propagate
func (i *Instance) safe(trace string, fn func() error) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.fail(trace, cmn.Recovered(r))
		}
	}()
	if err := fn(); err != nil {
		i.fail(trace, err)
	}
}

func (i *Instance) fail(trace string, cause error) {
	i.metrics.failure(trace)
	err := errorCallback(trace, i.desc.File, i.desc.Line, cause)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("onError failed. trace: %s, file: %s, line: %s, cause: %v", trace, i.desc.File, i.desc.Line, r)
		}
	}()
	if i.onError == nil {
		i.logError(trace, err)
		return
	}
	i.onError(trace, err)
}

func (i *Instance) logError(trace string, err error) {
	log.Errorf("Whoops, something bad happened! trace: %s, file: %s, line: %s, cause: %v",
		trace, i.desc.File, i.desc.Line, err)
}

// api the descriptor.API given to the initializer
type api struct {
	i *Instance
}

func (a *api) Root() dom.Node {
	return a.i.root
}

func (a *api) Node(selector interface{}) dom.Node {
	var node dom.Node
	var err error
	switch s := selector.(type) {
	case string:
		node, err = a.i.lookup(s)
	default:
		if index, isInt := cmn.AsInt(selector); isInt {
			node, err = a.i.node(index)
		}
	}
	if err != nil {
		a.i.fail("node", err)
		return nil
	}
	return node
}

func (a *api) Invalidate(slot int, previous, next interface{}) interface{} {
	return a.i.Invalidate(slot, previous, next)
}

func (a *api) OnInputChange(event *dom.Event, setter int) {
	a.i.OnInputChange(event, setter)
}

func (a *api) Escape(value string) string {
	return dom.HtmlEscape(value)
}
