package resolver

import (
	"regexp"

	"github.com/BDNK1/ivrflow/runtime"
)

// Scope is the read side of a variable store.
type Scope interface {
	Get(key string) (any, bool)
}

var templatePattern = regexp.MustCompile(`\{\{(\w+(?:\.\w+)*)\}\}`)

// Interpolate replaces every {{dotted.path}} token with the stringified value
// of the path. Tokens whose path is undefined are left untouched.
func Interpolate(template string, scope Scope) string {
	if template == "" {
		return template
	}
	return templatePattern.ReplaceAllStringFunc(template, func(token string) string {
		path := templatePattern.FindStringSubmatch(token)[1]
		v, ok := scope.Get(path)
		if !ok {
			return token
		}
		return runtime.Stringify(v)
	})
}

// InterpolateDeep applies Interpolate to every string leaf of lists and maps.
// Non-string leaves are returned as is.
func InterpolateDeep(value any, scope Scope) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, scope)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = InterpolateDeep(item, scope)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = InterpolateDeep(item, scope)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = Interpolate(item, scope)
		}
		return out
	default:
		return value
	}
}
