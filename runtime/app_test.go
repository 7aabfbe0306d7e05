package runtime

import (
	"context"
	"errors"
	"testing"
)

type sourceFunc func(ctx context.Context, extension string) (*Flow, error)

func (f sourceFunc) FlowFor(ctx context.Context, extension string) (*Flow, error) {
	return f(ctx, extension)
}

func flowFixture(id, extension string) *Flow {
	return &Flow{
		ID:        id,
		Extension: extension,
		StartNode: "bye",
		Nodes:     map[string]*Node{"bye": {ID: "bye", Type: NodeHangup}},
	}
}

func TestApp_FlowFor(t *testing.T) {
	app := NewApp()
	if err := app.RegisterFlow(flowFixture("balance", "2001")); err != nil {
		t.Fatalf("RegisterFlow error: %v", err)
	}
	if err := app.RegisterFlow(flowFixture("support", "")); err != nil {
		t.Fatalf("RegisterFlow error: %v", err)
	}

	tests := []struct {
		name      string
		extension string
		wantID    string
		wantErr   error
	}{
		{"by extension", "2001", "balance", nil},
		{"by id", "support", "support", nil},
		{"unknown", "9999", "", ErrFlowNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := app.FlowFor(context.Background(), tt.extension)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FlowFor error: %v", err)
			}
			if f.ID != tt.wantID {
				t.Errorf("flow = %s, want %s", f.ID, tt.wantID)
			}
		})
	}
}

func TestApp_RegisterConflicts(t *testing.T) {
	app := NewApp()
	if err := app.RegisterFlow(flowFixture("balance", "2001")); err != nil {
		t.Fatalf("RegisterFlow error: %v", err)
	}
	if err := app.RegisterFlow(flowFixture("balance", "3000")); err == nil {
		t.Error("expected duplicate id error")
	}
	if err := app.RegisterFlow(flowFixture("other", "2001")); err == nil {
		t.Error("expected duplicate extension error")
	}

	flows := app.Flows()
	if len(flows) != 1 || flows[0].ID != "balance" {
		t.Errorf("Flows() = %v", flows)
	}
}

func TestApp_Fallback(t *testing.T) {
	app := NewApp()
	if err := app.RegisterFlow(flowFixture("balance", "2001")); err != nil {
		t.Fatalf("RegisterFlow error: %v", err)
	}

	var asked []string
	app.SetFallback(sourceFunc(func(_ context.Context, extension string) (*Flow, error) {
		asked = append(asked, extension)
		if extension == "4000" {
			return flowFixture("remote", "4000"), nil
		}
		return nil, ErrFlowNotFound
	}))

	if f, err := app.FlowFor(context.Background(), "2001"); err != nil || f.ID != "balance" {
		t.Errorf("local flow = %v, %v", f, err)
	}
	if f, err := app.FlowFor(context.Background(), "4000"); err != nil || f.ID != "remote" {
		t.Errorf("remote flow = %v, %v", f, err)
	}
	if _, err := app.FlowFor(context.Background(), "5000"); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
	if len(asked) != 2 {
		t.Errorf("fallback asked for %v, want only unknown extensions", asked)
	}
}
