package descriptor

import (
	"fmt"

	"github.com/syntax-framework/stx/cmn"
)

var errorDecodeTable = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.decode.table",
	"Malformed descriptor table.", "Table: %s", "Expected: %s", "File: %s", "Line: %s",
)

var errorDecodeTuple = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.decode.tuple",
	"Malformed descriptor tuple.", "Table: %s", "Index: %d", "Expected: %s", "Found: %v", "File: %s", "Line: %s",
)

// Load parses a JSON encoded descriptor
func Load(data []byte) (*Descriptor, error) {
	j, err := cmn.JSONParse(data)
	if err != nil {
		return nil, errorDecodeTable("*", "json object", "", "")
	}
	return Decode(j)
}

// Decode a descriptor in the wire format. The result is validated.
func Decode(j cmn.JSON) (*Descriptor, error) {
	d := &Descriptor{File: stringOf(j["f"]), Line: stringOf(j["l"])}

	var ok bool
	if d.Elements, ok = j.ArrayString("e"); !ok {
		return nil, errorDecodeTable("e", "Array<string>", d.File, d.Line)
	}
	if d.Attributes, ok = j.ArrayString("a"); !ok {
		return nil, errorDecodeTable("a", "Array<string>", d.File, d.Line)
	}
	if d.EventNames, ok = j.ArrayString("n"); !ok {
		return nil, errorDecodeTable("n", "Array<string>", d.File, d.Line)
	}

	events, isArray := j.ArrayOf("o")
	if !isArray {
		return nil, errorDecodeTable("o", "Array<[elementIndex, eventNameIndex, expressionIndex]>", d.File, d.Line)
	}
	for i, item := range events {
		tuple, err := d.intTuple("o", i, item, 3, 3)
		if err != nil {
			return nil, err
		}
		d.Events = append(d.Events, Event{Node: tuple[0], Name: tuple[1], Expression: tuple[2]})
	}

	writers, isArray := j.ArrayOf("t")
	if !isArray {
		return nil, errorDecodeTable("t", "Array<writer>", d.File, d.Line)
	}
	for i, item := range writers {
		writer, err := d.decodeWriter(i, item)
		if err != nil {
			return nil, err
		}
		d.Writers = append(d.Writers, writer)
	}

	watchers, isArray := j.ArrayOf("w")
	if !isArray {
		return nil, errorDecodeTable("w", "Array<[type, variableIndex, index]>", d.File, d.Line)
	}
	for i, item := range watchers {
		tuple, err := d.intTuple("w", i, item, 3, 3)
		if err != nil {
			return nil, err
		}
		d.Watchers = append(d.Watchers, Watcher{Kind: WatcherKind(tuple[0]), Slot: tuple[1], Target: tuple[2]})
	}

	if value, exists := j["c"]; exists && value != nil && j.Object("c") == nil {
		return nil, errorDecodeTable("c", "Object", d.File, d.Line)
	}
	if c := j.Object("c"); c != nil {
		script, err := CompileScript(c)
		if err != nil {
			return nil, err
		}
		d.Initializer = script.Initializer()
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// f and l are diagnostic strings, the compiler emits the line as a number
func stringOf(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	if i, isInt := cmn.AsInt(value); isInt {
		return fmt.Sprint(i)
	}
	return fmt.Sprint(value)
}

func (d *Descriptor) intTuple(table string, index int, item interface{}, min, max int) ([]int, error) {
	arr, isArray := item.([]interface{})
	if !isArray || len(arr) < min || len(arr) > max {
		return nil, errorDecodeTuple(table, index, fmt.Sprintf("Array<int>(%d)", max), item, d.File, d.Line)
	}
	out := make([]int, len(arr))
	for i, value := range arr {
		n, isInt := cmn.AsInt(value)
		if !isInt {
			return nil, errorDecodeTuple(table, index, "int", value, d.File, d.Line)
		}
		out[i] = n
	}
	return out, nil
}

func (d *Descriptor) decodeWriter(index int, item interface{}) (Writer, error) {
	arr, isArray := item.([]interface{})
	if !isArray || len(arr) < 2 || len(arr) > 3 {
		return Writer{}, errorDecodeTuple("t", index, "[elementIndex, ...](2|3)", item, d.File, d.Line)
	}

	if len(arr) == 2 {
		// A) [elementIndex, expressionIndex]
		tuple, err := d.intTuple("t", index, item, 2, 2)
		if err != nil {
			return Writer{}, err
		}
		return Writer{Kind: WriterText, Node: tuple[0], Attribute: -1, Expression: tuple[1]}, nil
	}

	if template, isTemplate := arr[2].([]interface{}); isTemplate {
		// C) [elementIndex, attributeIndex, [string, expressionIndex, string, ...]]
		head, err := d.intTuple("t", index, arr[:2], 2, 2)
		if err != nil {
			return Writer{}, err
		}
		writer := Writer{Kind: WriterTemplatedAttribute, Node: head[0], Attribute: head[1], Expression: -1}
		for _, part := range template {
			if literal, isString := part.(string); isString {
				writer.Template = append(writer.Template, TemplatePart{Literal: literal})
			} else if expression, isInt := cmn.AsInt(part); isInt {
				writer.Template = append(writer.Template, TemplatePart{Expression: expression, IsExpression: true})
			} else {
				return Writer{}, errorDecodeTuple("t", index, "string|expressionIndex", part, d.File, d.Line)
			}
		}
		return writer, nil
	}

	// B) [elementIndex, attributeIndex, expressionIndex]
	tuple, err := d.intTuple("t", index, item, 3, 3)
	if err != nil {
		return Writer{}, err
	}
	return Writer{Kind: WriterAttribute, Node: tuple[0], Attribute: tuple[1], Expression: tuple[2]}, nil
}
