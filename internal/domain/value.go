package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// ValueKind identifies the shape held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindList:   "list",
	KindMap:    "map",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a closed, JSON-serialisable union used for agent context entries
// and action parameters/results. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// List builds a list Value. The items are copied.
func List(items ...Value) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

// Map builds a map Value. The input map is copied.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: maps.Clone(m)}
}

// ValueOf converts plain Go data (as produced by encoding/json) into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, NewDomainError("ValueOf", ErrInvalidInput, err.Error())
		}
		return Number(f), nil
	case []string:
		out := make([]Value, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return Value{kind: KindList, list: out}, nil
	case []any:
		out := make([]Value, len(x))
		for i, item := range x {
			conv, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			out[i] = conv
		}
		return Value{kind: KindList, list: out}, nil
	case map[string]string:
		out := make(map[string]Value, len(x))
		for k, s := range x {
			out[k] = String(s)
		}
		return Value{kind: KindMap, m: out}, nil
	case map[string]any:
		out := make(map[string]Value, len(x))
		for k, item := range x {
			conv, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			out[k] = conv
		}
		return Value{kind: KindMap, m: out}, nil
	default:
		return Value{}, NewDomainError("ValueOf", ErrInvalidInput, fmt.Sprintf("unsupported value type %T", v))
	}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }

// AsList returns a copy of the list elements.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// AsMap returns a copy of the map entries.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return maps.Clone(v.m), true
}

// Interface converts v back into plain Go data.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		return slices.EqualFunc(v.list, o.list, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	}
	return false
}

// String renders v for logs and CLI output.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNull:
		return "null"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	conv, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}

// ValuesFromJSON decodes a JSON object into a Value map. Empty input yields an empty map.
func ValuesFromJSON(data []byte) (map[string]Value, error) {
	out := map[string]Value{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, NewDomainError("ValuesFromJSON", ErrInvalidInput, err.Error())
	}
	return out, nil
}

// ValuesToJSON encodes a Value map as a JSON object.
func ValuesToJSON(m map[string]Value) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
