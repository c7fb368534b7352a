package plugin

import (
	"fmt"
	"strconv"
)

// intParam reads an integer parameter. Values decoded from YAML or JSON
// may arrive as int, int64, float64 or numeric strings.
func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("param %q: unsupported type %T", key, v)
	}
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

// stringMap converts map[string]string or map[string]any with string values.
func stringMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				s = fmt.Sprint(val)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
