package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Stringify renders a scope value the way it is spoken, matched against
// branch keys and substituted into templates. Whole floats lose their
// fraction so JSON numbers compare equal to their digit string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func ToStringValueMap(m map[string]any) map[string]string {
	result := make(map[string]string, len(m))
	for key, value := range m {
		result[key] = Stringify(value)
	}
	return result
}

// mapToStruct converts a map[string]any to a struct using mapstructure.
// It uses json tags for field mapping and supports time.Duration conversions.
func mapToStruct(m map[string]any, target any) error {
	return decodeWithTag(m, target, "json")
}

// mapToStructFromYAML is mapToStruct for structs mapped with yaml tags.
func mapToStructFromYAML(m map[string]any, target any) error {
	return decodeWithTag(m, target, "yaml")
}

func decodeWithTag(m map[string]any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tag,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}
