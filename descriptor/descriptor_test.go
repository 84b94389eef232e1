package descriptor

import (
	"errors"
	"strings"
	"testing"

	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/dom"
	"github.com/tdewolff/test"
)

const testDescriptorJSON = `{
  "f": "template.html",
  "l": 3,
  "e": ["#title", "#name", "[data-syntax-id='btn']"],
  "a": ["value", "disabled", "class"],
  "n": ["click"],
  "o": [[2, 0, 2]],
  "t": [[0, 0], [1, 0, 0], [2, 1, 3], [2, 2, ["btn ", 0, " size-", 4]]],
  "w": [[1, 0, 0], [1, 0, 1], [0, 0, 3], [1, 1, 2]],
  "c": {
    "v": ["name", "busy"],
    "s": {"name": "Syntax", "busy": false},
    "x": ["name", "set('name', value)", "set('busy', !busy)", "busy", "len(name)"],
    "h": {"on-mount": 1},
    "z": {"toggle": 2}
  }
}`

type testAPI struct {
	invalidated [][3]interface{}
}

func (a *testAPI) Root() dom.Node                             { return nil }
func (a *testAPI) Node(selector interface{}) dom.Node         { return nil }
func (a *testAPI) Escape(value string) string                 { return dom.HtmlEscape(value) }
func (a *testAPI) OnInputChange(event *dom.Event, setter int) {}
func (a *testAPI) Invalidate(slot int, previous, next interface{}) interface{} {
	a.invalidated = append(a.invalidated, [3]interface{}{slot, previous, next})
	return next
}

func testLoad(t *testing.T, source string) *Descriptor {
	d, err := Load([]byte(source))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func Test_Load_Wire_Format(t *testing.T) {
	d := testLoad(t, testDescriptorJSON)

	test.String(t, d.File, "template.html")
	test.String(t, d.Line, "3")
	test.T(t, d.Elements, []string{"#title", "#name", "[data-syntax-id='btn']"})
	test.T(t, d.Attributes, []string{"value", "disabled", "class"})
	test.T(t, d.EventNames, []string{"click"})
	test.T(t, d.Events, []Event{{Node: 2, Name: 0, Expression: 2}})

	test.T(t, len(d.Writers), 4)
	test.T(t, d.Writers[0], Writer{Kind: WriterText, Node: 0, Attribute: -1, Expression: 0})
	test.T(t, d.Writers[1], Writer{Kind: WriterAttribute, Node: 1, Attribute: 0, Expression: 0})
	test.T(t, d.Writers[2].Kind, WriterAttribute)
	test.T(t, d.Writers[3].Kind, WriterTemplatedAttribute)
	test.T(t, d.Writers[3].Template, []TemplatePart{
		{Literal: "btn "},
		{Expression: 0, IsExpression: true},
		{Literal: " size-"},
		{Expression: 4, IsExpression: true},
	})

	test.T(t, d.Watchers, []Watcher{
		{Kind: Schedule, Slot: 0, Target: 0},
		{Kind: Schedule, Slot: 0, Target: 1},
		{Kind: Action, Slot: 0, Target: 3},
		{Kind: Schedule, Slot: 1, Target: 2},
	})
	test.That(t, d.Initializer != nil)
}

func Test_Script_Initializer(t *testing.T) {
	d := testLoad(t, testDescriptorJSON)
	api := &testAPI{}
	script, err := d.Initializer(api)
	if err != nil {
		t.Fatal(err)
	}
	if err = d.ValidateScript(script); err != nil {
		t.Fatal(err)
	}

	value, err := script.Expressions[0]()
	test.That(t, err == nil)
	test.T(t, value, interface{}("Syntax"))

	// setter, receives the new value
	_, err = script.Expressions[1]("Go")
	test.That(t, err == nil)
	value, _ = script.Expressions[0]()
	test.T(t, value, interface{}("Go"))
	test.T(t, api.invalidated, [][3]interface{}{{0, "Syntax", "Go"}})

	// hooks names are normalized
	test.That(t, script.Hooks.OnMount != nil)
	test.That(t, script.Hooks.BeforeUpdate == nil)

	exports := script.Exports.(map[string]Expression)
	_, err = exports["toggle"]()
	test.That(t, err == nil)
	test.T(t, api.invalidated[1], [3]interface{}{1, false, true})
}

func Test_Script_State_Is_Per_Instance(t *testing.T) {
	d := testLoad(t, testDescriptorJSON)
	a, _ := d.Initializer(&testAPI{})
	b, _ := d.Initializer(&testAPI{})

	_, _ = a.Expressions[1]("changed")
	value, _ := b.Expressions[0]()
	test.T(t, value, interface{}("Syntax"))
}

func Test_Script_Event_Value(t *testing.T) {
	doc, err := dom.Parse(`<input id="name" value="typed">`, "template.html")
	if err != nil {
		t.Fatal(err)
	}
	input, _ := doc.Find(nil, "#name")

	d := testLoad(t, testDescriptorJSON)
	api := &testAPI{}
	script, _ := d.Initializer(api)
	_, err = script.Expressions[1](&dom.Event{Type: "input", Target: input})
	test.That(t, err == nil)
	test.T(t, api.invalidated, [][3]interface{}{{0, "Syntax", "typed"}})
}

func Test_Decode_Errors(t *testing.T) {
	var tests = []struct {
		name   string
		source string
		code   string
	}{
		{"no initializer", `{"e": ["#a"], "t": [[0, 0]]}`, "[descriptor.initializer]"},
		{"element out of range", `{"c": {"x": ["1"]}, "e": ["#a"], "t": [[1, 0]]}`, "[descriptor.index]"},
		{"attribute out of range", `{"c": {"x": ["1"]}, "e": ["#a"], "t": [[0, 0, 0]]}`, "[descriptor.index]"},
		{"writer out of range", `{"c": {"x": ["1"]}, "w": [[1, 0, 0]]}`, "[descriptor.index]"},
		{"event name out of range", `{"c": {"x": ["1"]}, "e": ["#a"], "o": [[0, 0, 0]]}`, "[descriptor.index]"},
		{"watcher kind", `{"c": {"x": ["1"]}, "w": [[7, 0, 0]]}`, "[descriptor.watcher.kind]"},
		{"writer shape", `{"c": {"x": ["1"]}, "e": ["#a"], "t": [[0]]}`, "[descriptor.decode.tuple]"},
		{"template part", `{"c": {"x": ["1"]}, "e": ["#a"], "a": ["class"], "t": [[0, 0, [true]]]}`, "[descriptor.decode.tuple]"},
		{"elements table", `{"e": [1]}`, "[descriptor.decode.table]"},
		{"expression syntax", `{"c": {"x": ["1 +"]}}`, "[descriptor.script.expression]"},
		{"hook name", `{"c": {"x": ["1"], "h": {"onSomething": 0}}}`, "[descriptor.script.hook]"},
		{"hook reference", `{"c": {"x": ["1"], "h": {"onMount": 3}}}`, "[descriptor.script.reference]"},
		{"not json", `[`, "[descriptor.decode.table]"},
		{"elements not array", `{"c": {"x": ["1"]}, "e": "#title"}`, "[descriptor.decode.table]"},
		{"attributes not array", `{"c": {"x": ["1"]}, "a": {"0": "class"}}`, "[descriptor.decode.table]"},
		{"event names not array", `{"c": {"x": ["1"]}, "n": "click"}`, "[descriptor.decode.table]"},
		{"events not array", `{"c": {"x": ["1"]}, "o": 7}`, "[descriptor.decode.table]"},
		{"writers not array", `{"c": {"x": ["1"]}, "t": "bogus"}`, "[descriptor.decode.table]"},
		{"watchers not array", `{"c": {"x": ["1"]}, "w": {"x": 1}}`, "[descriptor.decode.table]"},
		{"script not object", `{"c": ["1"]}`, "[descriptor.decode.table]"},
		{"script expressions not array", `{"c": {"x": "1"}}`, "[descriptor.decode.table]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.source))
			if err == nil {
				t.Fatal("Load(source) | expect to receive error")
			}
			test.That(t, strings.HasPrefix(err.Error(), tt.code), err.Error())
			test.That(t, errors.Is(err, cmn.ErrConfig), "must be a config error")
		})
	}
}

func Test_ValidateScript_Expression_Range(t *testing.T) {
	d := &Descriptor{
		Initializer: func(api API) (*Script, error) { return &Script{}, nil },
		Elements:    []string{"#a"},
		Writers:     []Writer{{Kind: WriterText, Node: 0, Expression: 2}},
		Watchers:    []Watcher{{Kind: Schedule, Slot: 0, Target: 0}},
	}
	test.That(t, d.Validate() == nil)

	err := d.ValidateScript(&Script{Expressions: []Expression{nil, nil}})
	test.That(t, errors.Is(err, cmn.ErrConfig))

	err = d.ValidateScript(&Script{Expressions: make([]Expression, 3)})
	test.That(t, strings.HasPrefix(err.Error(), "[descriptor.expression.nil]"), err.Error())
}
