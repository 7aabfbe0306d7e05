package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BDNK1/ivrflow/runtime"
)

const envelopeJSON = `{
  "id": "balance-ivr",
  "name": "Balance inquiry",
  "extension": "2001",
  "settings": {"tracking": {"balance": "api_result.balance"}},
  "flow": {
    "startNode": "welcome",
    "nodes": {
      "welcome": {"type": "play", "prompt": "welcome", "next": "get_account"},
      "get_account": {"type": "collect", "prompt": "enter_account", "maxDigits": 8, "timeout": 7.5, "validDigits": "0123456789", "next": "lookup"},
      "lookup": {"type": "api_call", "url": "https://bank.example/{{account_number}}", "onError": "sorry", "next": "say"},
      "say": {"type": "play_sequence", "sequence": [{"type": "prompt", "value": "your_balance"}, {"type": "number", "variable": "api_result.balance"}], "next": "hangup"},
      "sorry": {"type": "hangup", "status": "api_failed"}
    },
    "captureVariables": [{"name": "account_number", "label": "Account"}]
  }
}`

const bareYAML = `
id: menu
extension: "3000"
language: en
startNode: menu
nodes:
  menu:
    type: collect
    prompt: main_menu
    maxDigits: 1
    next: route
  route:
    type: branch
    variable: dtmf_input
    branches:
      "1": agent
    default: hangup
  agent:
    type: transfer
    destination: "7001"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileLoader_JSONEnvelope(t *testing.T) {
	path := writeFile(t, "balance.json", envelopeJSON)

	flow, err := NewFileLoader("ar").Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if flow.ID != "balance-ivr" || flow.Extension != "2001" || flow.StartNode != "welcome" {
		t.Errorf("flow header = %s/%s/%s", flow.ID, flow.Extension, flow.StartNode)
	}
	if flow.Language != "ar" {
		t.Errorf("language = %q, want default ar", flow.Language)
	}
	collect, ok := flow.Node("get_account")
	if !ok {
		t.Fatal("get_account missing")
	}
	if collect.ID != "get_account" || collect.Timeout != 7.5 || collect.MaxDigits != 8 {
		t.Errorf("collect node = %+v", collect)
	}
	if len(flow.CaptureVariables) != 1 || flow.CaptureVariables[0].Name != "account_number" {
		t.Errorf("capture variables = %+v", flow.CaptureVariables)
	}

	settings, err := flow.DecodeSettings()
	if err != nil {
		t.Fatalf("DecodeSettings error: %v", err)
	}
	if settings.Tracking.Balance != "api_result.balance" || settings.Tracking.Account != "account_number" {
		t.Errorf("tracking = %+v", settings.Tracking)
	}
}

func TestFileLoader_BareYAML(t *testing.T) {
	path := writeFile(t, "menu.yaml", bareYAML)

	flow, err := NewFileLoader("ar").Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if flow.Language != "en" {
		t.Errorf("language = %q", flow.Language)
	}
	route, _ := flow.Node("route")
	if route.Type != runtime.NodeBranch || route.Branches["1"] != "agent" {
		t.Errorf("route = %+v", route)
	}
}

func TestFileLoader_IDFromFileName(t *testing.T) {
	content := strings.Replace(bareYAML, "id: menu\n", "", 1)
	path := writeFile(t, "night-menu.yml", content)

	flow, err := NewFileLoader("ar").Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if flow.ID != "night-menu" {
		t.Errorf("id = %q", flow.ID)
	}
}

func TestFileLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"missing start node", "a.json", `{"nodes": {"a": {"type": "hangup"}}}`, "StartNode"},
		{"unknown node type", "b.json", `{"startNode": "a", "nodes": {"a": {"type": "dance"}}}`, "Type"},
		{"no nodes", "c.yaml", "startNode: a\n", "Nodes"},
		{"bad method", "d.json", `{"startNode": "a", "nodes": {"a": {"type": "api_call", "method": "FETCH"}}}`, "Method"},
		{"malformed", "e.json", `{"startNode": `, "unmarshalling"},
		{"unsupported", "f.txt", "", "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := NewFileLoader("ar").Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApp_LoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "balance.json"), []byte(envelopeJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "menu.yaml"), []byte(bareYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	app := runtime.NewApp()
	if err := app.LoadDir(dir, NewFileLoader("ar")); err != nil {
		t.Fatalf("LoadDir error: %v", err)
	}

	flows := app.Flows()
	if len(flows) != 2 || flows[0].ID != "balance-ivr" || flows[1].ID != "menu" {
		t.Fatalf("flows = %v", flows)
	}
	if f, err := app.FlowFor(t.Context(), "3000"); err != nil || f.ID != "menu" {
		t.Errorf("FlowFor(3000) = %v, %v", f, err)
	}
}
