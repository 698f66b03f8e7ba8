package domain

// Metadata is an unstructured metadata container for domain entities.
type Metadata map[string]any

// Clone returns a deep copy; nested maps and slices are copied as well so the
// result can be handed out without sharing mutable state.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Metadata:
		return val.Clone()
	case map[string]any:
		return map[string]any(Metadata(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
