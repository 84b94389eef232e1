// Package descriptor is the compiled, index-addressed definition of a component, as produced by the template
// compiler, and its validation.
//
// Wire format (JSON object with fixed single-character keys)
//
//	f  file (diagnostic)
//	l  line (diagnostic)
//	c  scripted initializer (see Script), Go code supplies Descriptor.Initializer instead
//	e  Array<key: elementIndex, value: string(#id|[data-syntax-id])>
//	a  Array<key: attributeIndex, value: string>
//	n  Array<key: eventNameIndex, value: string>
//	o  Array<[elementIndex, eventNameIndex, expressionIndex]>
//	t  Array<key: writerIndex, value: writer>
//	w  Array<[type, variableIndex, expressionIndex|writerIndex]>, type 0 = action(expressionIndex), 1 = schedule(writerIndex)
//
// A writer applies the result of an expression to something, has three forms
//
//	A) [elementIndex, expressionIndex]                                  text content
//	B) [elementIndex, attributeIndex, expressionIndex]                  attribute
//	C) [elementIndex, attributeIndex, [string, expressionIndex, ...]]   templated attribute
package descriptor

import (
	"github.com/syntax-framework/stx/dom"
)

// WatcherKind the reaction of a watcher
type WatcherKind int

const (
	// Action invokes the expression immediately
	Action WatcherKind = 0
	// Schedule enqueues the writer for the next render
	Schedule WatcherKind = 1
)

func (k WatcherKind) String() string {
	switch k {
	case Action:
		return "action"
	case Schedule:
		return "schedule"
	}
	return "unknown"
}

// WriterKind the patch applied by a writer, fixed at compile time
type WriterKind int

const (
	WriterText WriterKind = iota
	WriterAttribute
	WriterTemplatedAttribute
)

// Event [elementIndex, eventNameIndex, expressionIndex]
type Event struct {
	Node       int
	Name       int
	Expression int
}

// TemplatePart a literal or an expression of a templated attribute
type TemplatePart struct {
	Literal      string
	Expression   int
	IsExpression bool
}

// Writer a DOM patch unit bound to one target node
type Writer struct {
	Kind       WriterKind
	Node       int
	Attribute  int // WriterAttribute, WriterTemplatedAttribute
	Expression int // WriterText, WriterAttribute
	Template   []TemplatePart
}

// Watcher binds a variable slot to a reaction
type Watcher struct {
	Kind   WatcherKind
	Slot   int
	Target int // expression index (Action) or writer index (Schedule)
}

// Expression a compiled expression closure. Event handlers receive the *dom.Event, setters receive the new value.
type Expression func(args ...interface{}) (interface{}, error)

// Hooks the lifecycle callbacks of an instance, nil means no-op
type Hooks struct {
	OnMount      func() error
	BeforeUpdate func() error
	AfterUpdate  func() error
	BeforeRender func() error
	AfterRender  func() error
	OnDestroy    func() error
	OnConnect    func() error
	OnDisconnect func() error
	OnEvent      func(name string, event *dom.Event) error
	// OnError receives every failure of the callbacks above, of watchers and of writers
	OnError func(trace string, err error)
}

// Script what the initializer returns for one instance
type Script struct {
	Expressions []Expression // x
	Exports     interface{}  // z
	Hooks       Hooks
}

// API the instance utilities available to the initializer (the `$` of the compiled script)
type API interface {
	// Root the node the instance was mounted on
	Root() dom.Node
	// Node resolves an element index or selector against the instance root, cached per instance
	Node(selector interface{}) dom.Node
	// Invalidate notifies the change of a variable slot, returns next
	Invalidate(slot int, previous, next interface{}) interface{}
	// OnInputChange two-way binding, applies the target value through the setter expression
	OnInputChange(event *dom.Event, setter int)
	// Escape html escape
	Escape(value string) string
}

// Initializer runs the component script for one instance
type Initializer func(api API) (*Script, error)

// Descriptor a compiled component definition. Immutable once loaded.
type Descriptor struct {
	File        string      // f
	Line        string      // l
	Initializer Initializer // c
	Elements    []string    // e
	Attributes  []string    // a
	EventNames  []string    // n
	Events      []Event     // o
	Writers     []Writer    // t
	Watchers    []Watcher   // w
}
