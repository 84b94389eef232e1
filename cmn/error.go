package cmn

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error created by an ErrFunc bound to a category matches it with errors.Is
var (
	ErrConfig     = errors.New("config error")
	ErrValidation = errors.New("validation error")
	ErrCallback   = errors.New("callback error")
	ErrTransport  = errors.New("transport error")
	ErrTimeout    = errors.New("TIMEOUT")
)

// Error a framework error, formatted as `[code] Text. { Detail: value, ... }`
type Error struct {
	Code  string
	Kind  error // one of the error categories, may be nil
	Cause error // first error found in the params, may be nil
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the error belongs to the target category
func (e *Error) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// ErrFunc returns the formatted Err
type ErrFunc func(params ...interface{}) error

// Err framework error messages pattern
func Err(code string, textAndDetails ...string) ErrFunc {
	return ErrOf(nil, code, textAndDetails...)
}

// ErrOf same as Err, the created errors belong to the informed category
func ErrOf(kind error, code string, textAndDetails ...string) ErrFunc {
	buf := &bytes.Buffer{}
	buf.WriteByte('[')
	buf.WriteString(code)
	buf.WriteString("] ")
	buf.WriteString(textAndDetails[0])
	if !strings.HasSuffix(textAndDetails[0], ".") {
		buf.WriteByte('.')
	}

	size := len(textAndDetails)
	if size > 1 {
		buf.WriteString(" {")
		for i := 1; i < size; i++ {
			if i > 1 {
				buf.WriteString(", ")
			} else {
				buf.WriteByte(' ')
			}
			buf.WriteString(textAndDetails[i])
		}
		buf.WriteString(" }")
	}

	format := buf.String()

	return func(params ...interface{}) error {
		e := &Error{Code: code, Kind: kind, msg: fmt.Sprintf(format, params...)}
		for _, param := range params {
			if cause, isErr := param.(error); isErr {
				e.Cause = cause
				break
			}
		}
		return e
	}
}

// Recovered converts the value of a recover() into an error
func Recovered(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
