package descriptor

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/iancoleman/strcase"
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/dom"
)

var errorScriptExpression = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.script.expression",
	"The script expression could not be compiled.", "Expression: %d", "Source: %s", "Caused by: %s",
)

var errorScriptHook = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.script.hook",
	"Unknown lifecycle hook.", "Hook: %s",
)

var errorScriptReference = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.script.reference",
	"The script references an expression that does not exist.", "Name: %s", "Expression: %v",
)

// ScriptHookNames the lifecycle hooks a script can define
var ScriptHookNames = []string{
	"onMount", "beforeUpdate", "afterUpdate", "beforeRender", "afterRender",
	"onDestroy", "onConnect", "onDisconnect", "onError", "onEvent",
}

// CompiledScript a scripted initializer. Lets a descriptor carry its behavior as data, compiled with expr.
//
//	{
//	  "v": ["count", "name"],                  // variable slots, by index
//	  "s": {"count": 0, "name": "Syntax"},     // initial state
//	  "x": ["count", "set('count', count+1)"], // expressions
//	  "h": {"onMount": 1},                     // hooks -> expression index
//	  "z": {"increment": 1}                    // exports -> expression index
//	}
//
// The environment of every expression exposes the state variables by name plus:
//
//	set(name, value)  assigns a variable, invalidating its slot
//	value             the first argument (setter value, or the value of the event target)
//	event             the *dom.Event, when invoked as event handler
//	args              all arguments (onError receives trace and message, onEvent the event and its name)
//	escape(string)    html escape
type CompiledScript struct {
	vars     []string
	slots    map[string]int
	state    map[string]interface{}
	sources  []string
	programs []*vm.Program
	hooks    map[string]int
	exports  map[string]int
}

// CompileScript compiles the `c` object of a descriptor
func CompileScript(c cmn.JSON) (*CompiledScript, error) {
	s := &CompiledScript{
		slots:   map[string]int{},
		state:   map[string]interface{}{},
		hooks:   map[string]int{},
		exports: map[string]int{},
	}

	var ok bool
	if s.vars, ok = c.ArrayString("v"); !ok {
		return nil, errorDecodeTable("c.v", "Array<string>", "", "")
	}
	for i, name := range s.vars {
		s.slots[name] = i
	}
	for name, value := range c.Object("s") {
		s.state[name] = value
	}
	if s.sources, ok = c.ArrayString("x"); !ok {
		return nil, errorDecodeTable("c.x", "Array<string>", "", "")
	}

	for i, source := range s.sources {
		program, err := expr.Compile(source)
		if err != nil {
			return nil, errorScriptExpression(i, source, err)
		}
		s.programs = append(s.programs, program)
	}

	validHooks := map[string]bool{}
	for _, name := range ScriptHookNames {
		validHooks[name] = true
	}
	for name, value := range c.Object("h") {
		hook := strcase.ToLowerCamel(name)
		if !validHooks[hook] {
			return nil, errorScriptHook(name)
		}
		index, isInt := cmn.AsInt(value)
		if !isInt || index < 0 || index >= len(s.programs) {
			return nil, errorScriptReference(name, value)
		}
		s.hooks[hook] = index
	}

	for name, value := range c.Object("z") {
		index, isInt := cmn.AsInt(value)
		if !isInt || index < 0 || index >= len(s.programs) {
			return nil, errorScriptReference(name, value)
		}
		s.exports[name] = index
	}

	return s, nil
}

// Initializer creates the initializer of this script. Every instance gets its own copy of the state.
func (s *CompiledScript) Initializer() Initializer {
	return func(api API) (*Script, error) {
		state := make(map[string]interface{}, len(s.state))
		for name, value := range s.state {
			state[name] = value
		}

		set := func(name string, value interface{}) interface{} {
			previous := state[name]
			state[name] = value
			if slot, isSlot := s.slots[name]; isSlot {
				return api.Invalidate(slot, previous, value)
			}
			return value
		}

		expressions := make([]Expression, len(s.programs))
		for i, program := range s.programs {
			program := program
			expressions[i] = func(args ...interface{}) (interface{}, error) {
				env := make(map[string]interface{}, len(state)+8)
				for name, value := range state {
					env[name] = value
				}
				env["set"] = set
				env["escape"] = api.Escape
				env["args"] = args
				if len(args) > 0 {
					env["value"] = args[0]
					if event, isEvent := args[0].(*dom.Event); isEvent {
						env["event"] = event
						if event.Target != nil {
							env["value"] = event.Target.Value()
						}
					}
				}
				return expr.Run(program, env)
			}
		}

		script := &Script{Expressions: expressions}
		hook := func(name string) func() error {
			index, exists := s.hooks[name]
			if !exists {
				return nil
			}
			return func() error {
				_, err := expressions[index]()
				return err
			}
		}
		script.Hooks.OnMount = hook("onMount")
		script.Hooks.BeforeUpdate = hook("beforeUpdate")
		script.Hooks.AfterUpdate = hook("afterUpdate")
		script.Hooks.BeforeRender = hook("beforeRender")
		script.Hooks.AfterRender = hook("afterRender")
		script.Hooks.OnDestroy = hook("onDestroy")
		script.Hooks.OnConnect = hook("onConnect")
		script.Hooks.OnDisconnect = hook("onDisconnect")
		if index, exists := s.hooks["onEvent"]; exists {
			script.Hooks.OnEvent = func(name string, event *dom.Event) error {
				_, err := expressions[index](event, name)
				return err
			}
		}
		if index, exists := s.hooks["onError"]; exists {
			script.Hooks.OnError = func(trace string, err error) {
				// a failing error handler has nowhere else to report
				_, _ = expressions[index](trace, err.Error())
			}
		}

		exports := map[string]Expression{}
		for name, index := range s.exports {
			exports[name] = expressions[index]
		}
		script.Exports = exports

		return script, nil
	}
}
