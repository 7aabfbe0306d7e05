package resolver

import (
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// ValueStore stores the variable scope of a call as nested maps so that
// expressions can traverse it with member access (api_result.balance).
type ValueStore struct {
	values map[string]any
}

func NewValueStore() *ValueStore {
	return &ValueStore{
		values: make(map[string]any),
	}
}

// Set stores a value at a dot-separated key path, creating intermediate maps.
// Set("customer.account.id", v) creates values["customer"]["account"]["id"] = v.
func (s *ValueStore) Set(key string, value any) {
	parts := strings.Split(key, ".")
	current := s.values
	for _, part := range parts[:len(parts)-1] {
		if m, ok := current[part].(map[string]any); ok {
			current = m
			continue
		}
		// Missing or non-map intermediates are replaced by a new map
		m := make(map[string]any)
		current[part] = m
		current = m
	}
	current[parts[len(parts)-1]] = value
}

// Get resolves a dot-separated path. Numeric segments index into lists.
// A missing segment anywhere on the path reports false, which callers treat
// as undefined; a stored nil is defined.
func (s *ValueStore) Get(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	if v, ok := s.values[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	c := gabs.Wrap(s.values)
	if !c.ExistsP(key) {
		return nil, false
	}
	return c.Path(key).Data(), true
}

// SetNested stores value at prefix. Object values are also written key by key
// so every level is addressable by its full dotted path.
func (s *ValueStore) SetNested(prefix string, value any) {
	m, ok := value.(map[string]any)
	if !ok {
		s.Set(prefix, value)
		return
	}

	s.Set(prefix, m)
	for k, v := range m {
		if strings.Contains(k, ".") {
			continue
		}
		s.Set(prefix+"."+k, v)
	}
}

// All returns the top-level map.
func (s *ValueStore) All() map[string]any {
	return s.values
}

// Snapshot returns a deep copy of the scope.
func (s *ValueStore) Snapshot() map[string]any {
	return copyMap(s.values)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
