package cmn

import (
	"errors"
	"testing"

	"github.com/tdewolff/test"
)

func Test_Err_Format(t *testing.T) {
	errFunc := Err("pubsub.topic.name", "Not a valid Topic name", "Name: %s", "Segments: %d")
	test.String(t, errFunc("a:b:c", 3).Error(), "[pubsub.topic.name] Not a valid Topic name. { Name: a:b:c, Segments: 3 }")

	noDetails := Err("code", "Text.")
	test.String(t, noDetails().Error(), "[code] Text.")
}

func Test_ErrOf_Category_And_Cause(t *testing.T) {
	cause := errors.New("boom")
	err := ErrOf(ErrCallback, "callback", "Callback failed", "Trace: %s", "Cause: %s")("dispatch", cause)

	test.That(t, errors.Is(err, ErrCallback), "must match its category")
	test.That(t, !errors.Is(err, ErrConfig), "must not match other category")
	test.That(t, errors.Is(err, cause), "must unwrap the cause")

	var e *Error
	test.That(t, errors.As(err, &e))
	test.String(t, e.Code, "callback")
}

func Test_Recovered(t *testing.T) {
	test.That(t, Recovered(nil) == nil)
	test.String(t, Recovered("text").Error(), "text")
	test.String(t, Recovered(42).Error(), "42")
	cause := errors.New("x")
	test.That(t, Recovered(cause) == cause)
}

func Test_IndexedSet_Keeps_First_Position(t *testing.T) {
	set := &IndexedSet[int]{}
	set.Add(1)
	set.Add(2)
	index, added := set.Add(1)

	test.T(t, index, 0)
	test.That(t, !added, "re-adding must be a no-op")
	test.T(t, set.ToArray(), []int{1, 2})
	test.T(t, set.GetIndex(2), 1)
	test.T(t, set.GetIndex(3), -1)

	test.T(t, set.Clear(), []int{1, 2})
	test.That(t, set.IsEmpty())
	test.T(t, set.Cardinality(), 0)
}

func Test_AsInt(t *testing.T) {
	var tests = []struct {
		input interface{}
		value int
		ok    bool
	}{
		{float64(3), 3, true},
		{3.5, 0, false},
		{7, 7, true},
		{"3", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		value, ok := AsInt(tt.input)
		test.T(t, value, tt.value)
		test.T(t, ok, tt.ok)
	}
}
