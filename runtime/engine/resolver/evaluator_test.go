package resolver

import (
	"testing"
)

func newScope() *ValueStore {
	s := NewValueStore()
	s.Set("choice", "1")
	s.Set("account_number", "123456")
	s.SetNested("api_result", map[string]any{
		"balance":  740.7,
		"currency": "SAR",
		"accounts": []any{
			map[string]any{"id": "111111", "balance": 10.0},
			map[string]any{"id": "123456", "balance": 740.7},
		},
	})
	return s
}

func TestEvaluate(t *testing.T) {
	s := newScope()

	tests := []struct {
		name       string
		expression string
		want       any
	}{
		{"comparison", `choice == "1"`, true},
		{"property access", `api_result.currency`, "SAR"},
		{"numeric comparison", `api_result.balance > 100`, true},
		{"boolean ops", `choice == "2" || api_result.balance > 0`, true},
		{"find by field", `find(api_result.accounts, .id == account_number).balance`, 740.7},
		{"find no match", `find(api_result.accounts, .id == "999") == nil`, true},
		{"defined present", `defined("api_result.balance")`, true},
		{"defined missing", `defined("api_result.missing")`, false},
		{"undefined variable is nil", `missing == nil`, true},
		{"null alias", `missing == null`, true},
		{"len", `len(account_number)`, 6},
		{"nil coalescing", `missing ?? "fallback"`, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(s, tt.expression)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expression, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v (%T), want %v (%T)", tt.expression, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	s := newScope()

	tests := []struct {
		name       string
		expression string
	}{
		{"syntax error", `choice ==`},
		{"empty", ``},
		{"disabled builtin", `now()`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Evaluate(s, tt.expression); err == nil {
				t.Errorf("Evaluate(%q) expected error", tt.expression)
			}
		})
	}
}

func TestEvaluate_DoesNotMutateScope(t *testing.T) {
	s := newScope()

	if _, err := Evaluate(s, `null == nil`); err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if _, ok := s.Get("null"); ok {
		t.Error("null alias leaked into the store")
	}
}
