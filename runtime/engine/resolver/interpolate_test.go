package resolver

import (
	"reflect"
	"testing"
)

func TestInterpolate(t *testing.T) {
	s := NewValueStore()
	s.Set("user", map[string]any{"name": "Sam"})
	s.Set("account_number", "123456")
	s.Set("balance", 740.7)
	s.Set("count", float64(3))
	s.Set("empty", nil)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"nested path", "Hello {{user.name}}", "Hello Sam"},
		{"missing path kept", "{{missing.path}}", "{{missing.path}}"},
		{"partially missing", "{{user.name}}/{{user.age}}", "Sam/{{user.age}}"},
		{"multiple tokens", "/accounts/{{account_number}}?n={{count}}", "/accounts/123456?n=3"},
		{"fractional number", "{{balance}}", "740.7"},
		{"nil renders empty", "[{{empty}}]", "[]"},
		{"no tokens", "plain text", "plain text"},
		{"empty template", "", ""},
		{"not a token", "{{ user.name }}", "{{ user.name }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.template, s)
			if got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestInterpolateDeep(t *testing.T) {
	s := NewValueStore()
	s.Set("account_number", "123456")
	s.Set("caller_id", "0500000000")

	input := map[string]any{
		"account": "{{account_number}}",
		"meta": map[string]any{
			"caller":  "{{caller_id}}",
			"missing": "{{nope}}",
		},
		"tags":    []any{"ivr", "{{account_number}}", 7},
		"retries": 2,
		"enabled": true,
	}

	want := map[string]any{
		"account": "123456",
		"meta": map[string]any{
			"caller":  "0500000000",
			"missing": "{{nope}}",
		},
		"tags":    []any{"ivr", "123456", 7},
		"retries": 2,
		"enabled": true,
	}

	got := InterpolateDeep(input, s)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InterpolateDeep() = %#v, want %#v", got, want)
	}

	// The input must not be modified in place
	if input["account"] != "{{account_number}}" {
		t.Errorf("input mutated: %v", input["account"])
	}
}

func TestInterpolateDeep_StringHeaders(t *testing.T) {
	s := NewValueStore()
	s.Set("token", "abc")

	got := InterpolateDeep(map[string]string{"Authorization": "Bearer {{token}}"}, s)
	headers, ok := got.(map[string]string)
	if !ok {
		t.Fatalf("got %T, want map[string]string", got)
	}
	if headers["Authorization"] != "Bearer abc" {
		t.Errorf("Authorization = %q", headers["Authorization"])
	}
}
