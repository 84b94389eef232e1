package cmn

import (
	"encoding/json"
	"math"
)

// JSON https://www.json.org/json-en.html
type JSON map[string]interface{}

func JSONParse(data []byte) (JSON, error) {
	var obj = JSON{}
	err := json.Unmarshal(data, &obj)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (j JSON) Encode() ([]byte, error) {
	return json.Marshal(j.Get())
}

func (j JSON) Get() map[string]interface{} {
	if j == nil {
		return map[string]interface{}{}
	}
	return j
}

// Has determine if the JSON contains a specific key.
func (j JSON) Has(key string) (exists bool) {
	_, exists = j[key]
	return
}

// String the string value of key, or "" when absent or not a string
func (j JSON) String(key string) string {
	s, _ := j[key].(string)
	return s
}

// Object the object value of key, or nil when absent or not an object
func (j JSON) Object(key string) JSON {
	switch v := j[key].(type) {
	case map[string]interface{}:
		return v
	case JSON:
		return v
	}
	return nil
}

// ArrayOf the array value of key. An absent key is an empty array, the second result is false when the key holds
// anything else.
func (j JSON) ArrayOf(key string) ([]interface{}, bool) {
	value, exists := j[key]
	if !exists || value == nil {
		return nil, true
	}
	arr, isArray := value.([]interface{})
	return arr, isArray
}

// ArrayString the array of strings of key. The second result is false when the key is not an array or any item is
// not a string.
func (j JSON) ArrayString(key string) ([]string, bool) {
	arr, isArray := j.ArrayOf(key)
	if !isArray {
		return nil, false
	}
	out := make([]string, len(arr))
	for i, item := range arr {
		s, isString := item.(string)
		if !isString {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// AsInt converts a decoded JSON number into an integer. Fractional values are not integers.
func AsInt(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return AsInt(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
