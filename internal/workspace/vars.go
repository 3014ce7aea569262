package workspace

import "fmt"

// VarValueFromTOML coerces a decoded cobble.toml leaf (already parsed
// by BurntSushi/toml into Go's any-shaped tree) into a VarValue. TOML
// leaves are strings, arrays of strings, or string-keyed tables; any
// other shape is a Parse error to the caller (added per SPEC_FULL.md
// §3, supplementing a detail spec.md leaves implicit).
func VarValueFromTOML(v any) (VarValue, error) {
	switch t := v.(type) {
	case string:
		return VarValue{Str: t}, nil
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return VarValue{}, fmt.Errorf("var list element %v is not a string", item)
			}
			list = append(list, s)
		}
		return VarValue{List: list}, nil
	case []string:
		return VarValue{List: t}, nil
	case map[string]any:
		m := make(map[string]string, len(t))
		for k, item := range t {
			s, ok := item.(string)
			if !ok {
				return VarValue{}, fmt.Errorf("var table entry %q is not a string", k)
			}
			m[k] = s
		}
		return VarValue{Map: m}, nil
	case map[string]string:
		return VarValue{Map: t}, nil
	default:
		return VarValue{}, fmt.Errorf("var value %v has unsupported type %T", v, v)
	}
}

// IsZero reports whether v holds no value in any of its three shapes.
func (v VarValue) IsZero() bool {
	return v.Str == "" && v.List == nil && v.Map == nil
}
