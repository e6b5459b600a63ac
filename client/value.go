package client

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/tidwall/gjson"

	"mini-playwright/errext"
)

// Values cross the wire in the driver's tagged form:
//
//	null → {"v":"null"}   true → {"b":true}   1.5 → {"n":1.5}   "x" → {"s":"x"}
//	[1]  → {"a":[{"n":1}],"id":1}   {"k":1} → {"o":[{"k":"k","v":{"n":1}}],"id":2}

// serializeArgument wraps v the way evaluate calls expect their arg.
func serializeArgument(v any) (map[string]any, error) {
	id := 0
	value, err := serializeValue(reflect.ValueOf(v), &id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value, "handles": []any{}}, nil
}

func serializeValue(v reflect.Value, id *int) (map[string]any, error) {
	if !v.IsValid() {
		return map[string]any{"v": "null"}, nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return map[string]any{"v": "null"}, nil
		}
		return serializeValue(v.Elem(), id)
	case reflect.Bool:
		return map[string]any{"b": v.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"n": v.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"n": v.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return serializeFloat(v.Float()), nil
	case reflect.String:
		return map[string]any{"s": v.String()}, nil
	case reflect.Slice, reflect.Array:
		*id++
		out := map[string]any{"id": *id}
		items := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := serializeValue(v.Index(i), id)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		out["a"] = items
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, errext.InvalidArgument("cannot serialize map with %s keys", v.Type().Key())
		}
		*id++
		out := map[string]any{"id": *id}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		props := make([]any, 0, len(keys))
		for _, k := range keys {
			item, err := serializeValue(v.MapIndex(k), id)
			if err != nil {
				return nil, err
			}
			props = append(props, map[string]any{"k": k.String(), "v": item})
		}
		out["o"] = props
		return out, nil
	default:
		return nil, errext.InvalidArgument("cannot serialize %s", v.Type())
	}
}

func serializeFloat(f float64) map[string]any {
	switch {
	case math.IsNaN(f):
		return map[string]any{"v": "NaN"}
	case math.IsInf(f, 1):
		return map[string]any{"v": "Infinity"}
	case math.IsInf(f, -1):
		return map[string]any{"v": "-Infinity"}
	case f == 0 && math.Signbit(f):
		return map[string]any{"v": "-0"}
	default:
		return map[string]any{"n": f}
	}
}

// parseValue turns a tagged value back into nil, bool, float64, string,
// []any or map[string]any.
func parseValue(v gjson.Result) (any, error) {
	if !v.IsObject() {
		return nil, errext.NewProtocolError(fmt.Sprintf("serialized value is %s", v.Type), []byte(v.Raw), nil)
	}
	if r := v.Get("v"); r.Exists() {
		switch r.String() {
		case "null", "undefined":
			return nil, nil
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		case "-0":
			return math.Copysign(0, -1), nil
		}
	}
	if r := v.Get("b"); r.Exists() {
		return r.Bool(), nil
	}
	if r := v.Get("n"); r.Exists() {
		return r.Float(), nil
	}
	if r := v.Get("s"); r.Exists() {
		return r.String(), nil
	}
	if r := v.Get("a"); r.IsArray() {
		items := r.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			parsed, err := parseValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, parsed)
		}
		return out, nil
	}
	if r := v.Get("o"); r.IsArray() {
		out := make(map[string]any)
		for _, prop := range r.Array() {
			parsed, err := parseValue(prop.Get("v"))
			if err != nil {
				return nil, err
			}
			out[prop.Get("k").String()] = parsed
		}
		return out, nil
	}
	return nil, errext.NewProtocolError("unrecognized serialized value", []byte(v.Raw), nil)
}
