package models

// Loose map accessors for wire-format payloads. Feed payloads arrive as
// map[string]any decoded from JSON, so numbers may be float64, int, or int64
// depending on the decoder.

func mapFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		case uint64:
			return float64(n), true
		}
	}
	return 0, false
}

func mapInt(m map[string]any, keys ...string) (int64, bool) {
	f, ok := mapFloat(m, keys...)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func mapString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
