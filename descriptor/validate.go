package descriptor

import (
	"github.com/syntax-framework/stx/cmn"
)

var errorMissingInitializer = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.initializer",
	"The component has no initializer.", "File: %s", "Line: %s",
)

var errorIndexOutOfRange = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.index",
	"Index out of range.", "Table: %s", "Index: %d", "Size: %d", "Referenced by: %s[%d]", "File: %s", "Line: %s",
)

var errorWatcherKind = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.watcher.kind",
	"Unknown watcher type.", "Type: %d", "Watcher: %d", "File: %s", "Line: %s",
)

var errorNilExpression = cmn.ErrOf(
	cmn.ErrConfig,
	"descriptor.expression.nil",
	"The expression is not defined.", "Expression: %d", "File: %s", "Line: %s",
)

func (d *Descriptor) checkIndex(table string, index int, size int, by string, byIndex int) error {
	if index < 0 || index >= size {
		return errorIndexOutOfRange(table, index, size, by, byIndex, d.File, d.Line)
	}
	return nil
}

// Validate checks every table reference that does not depend on the script. Index errors are config errors.
func (d *Descriptor) Validate() error {
	if d.Initializer == nil {
		return errorMissingInitializer(d.File, d.Line)
	}

	for i, event := range d.Events {
		if err := d.checkIndex("e", event.Node, len(d.Elements), "o", i); err != nil {
			return err
		}
		if err := d.checkIndex("n", event.Name, len(d.EventNames), "o", i); err != nil {
			return err
		}
	}

	for i, writer := range d.Writers {
		if err := d.checkIndex("e", writer.Node, len(d.Elements), "t", i); err != nil {
			return err
		}
		if writer.Kind != WriterText {
			if err := d.checkIndex("a", writer.Attribute, len(d.Attributes), "t", i); err != nil {
				return err
			}
		}
	}

	for i, watcher := range d.Watchers {
		if watcher.Slot < 0 {
			return errorIndexOutOfRange("v", watcher.Slot, 0, "w", i, d.File, d.Line)
		}
		switch watcher.Kind {
		case Action:
		case Schedule:
			if err := d.checkIndex("t", watcher.Target, len(d.Writers), "w", i); err != nil {
				return err
			}
		default:
			return errorWatcherKind(int(watcher.Kind), i, d.File, d.Line)
		}
	}
	return nil
}

// ValidateScript checks every expression reference against the expressions returned by the initializer
func (d *Descriptor) ValidateScript(script *Script) error {
	size := len(script.Expressions)
	check := func(index int, by string, byIndex int) error {
		if err := d.checkIndex("x", index, size, by, byIndex); err != nil {
			return err
		}
		if script.Expressions[index] == nil {
			return errorNilExpression(index, d.File, d.Line)
		}
		return nil
	}

	for i, event := range d.Events {
		if err := check(event.Expression, "o", i); err != nil {
			return err
		}
	}
	for i, writer := range d.Writers {
		if writer.Kind == WriterTemplatedAttribute {
			for _, part := range writer.Template {
				if part.IsExpression {
					if err := check(part.Expression, "t", i); err != nil {
						return err
					}
				}
			}
		} else if err := check(writer.Expression, "t", i); err != nil {
			return err
		}
	}
	for i, watcher := range d.Watchers {
		if watcher.Kind == Action {
			if err := check(watcher.Target, "w", i); err != nil {
				return err
			}
		}
	}
	return nil
}
