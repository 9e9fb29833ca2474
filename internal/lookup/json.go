package lookup

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"rowforge/internal/value"
)

// LoadJSON parses path into the nested map/sequence/scalar Value tree
// spec.md §4.6 describes and registers it under name.
func LoadJSON(reg *Registry, name, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading json %s: %w", path, err)
	}
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parsing json %s: %w", path, err)
	}
	reg.PutJSON(name, fromJSON(raw))
	return nil
}

func fromJSON(raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.Bool(v)
	case float64:
		if v == float64(int64(v)) {
			return value.Int(int64(v))
		}
		return value.Float(v)
	case string:
		return value.Str(v)
	case []interface{}:
		seq := make([]value.Value, len(v))
		for i, e := range v {
			seq[i] = fromJSON(e)
		}
		return value.Seq(seq)
	case map[string]interface{}:
		m := make(map[string]value.Value, len(v))
		for k, e := range v {
			m[k] = fromJSON(e)
		}
		return value.Map(m)
	default:
		return value.Nil()
	}
}

func toJSON(v value.Value) interface{} {
	switch v.Kind {
	case value.KNil:
		return nil
	case value.KBool:
		return v.B
	case value.KInt:
		return v.I
	case value.KFloat:
		return v.F
	case value.KString:
		return v.S
	case value.KSequence:
		out := make([]interface{}, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = toJSON(e)
		}
		return out
	case value.KMapping:
		// SPEC_FULL.md §9(c): sort keys for deterministic output; spec.md
		// only requires semantic equality.
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(v.Map))
		for _, k := range keys {
			out[k] = toJSON(v.Map[k])
		}
		return out
	default:
		return nil
	}
}

// WriteJSON serializes v to path, with two-space indentation when pretty
// is set (spec.md §4.6).
func WriteJSON(v value.Value, path string, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(toJSON(v), "", "  ")
	} else {
		b, err = json.Marshal(toJSON(v))
	}
	if err != nil {
		return fmt.Errorf("marshaling json for %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing json to %s: %w", path, err)
	}
	return nil
}
