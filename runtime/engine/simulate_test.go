package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/BDNK1/ivrflow/runtime"
)

func TestSimulator_Simulate(t *testing.T) {
	flow := testFlow("ask", map[string]*runtime.Node{
		"ask":   {Type: runtime.NodeCollect, Prompt: "menu", Variable: "choice", Timeout: 1, Next: "route"},
		"route": {Type: runtime.NodeBranch, Variable: "choice", Branches: map[string]string{"2": "agent"}, Default: "hangup"},
		"agent": {Type: runtime.NodeTransfer, Destination: "7001"},
	})
	sim := NewSimulator(newInterpreter(nil, nil, Options{}))

	result, err := sim.Simulate(context.Background(), flow, runtime.SimulationRequest{
		CallerID:  "0555",
		Digits:    []string{"2#"},
		Variables: map[string]any{"segment": "gold"},
	})
	if err != nil {
		t.Fatalf("Simulate error: %v", err)
	}

	if result.Outcome != runtime.OutcomeTransferred {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if !reflect.DeepEqual(result.History, []string{"ask", "route", "agent"}) {
		t.Errorf("history = %v", result.History)
	}
	wantOps := []string{"answer", "play:sound:custom/menu", "digits", "redirect:transfer,7001,1"}
	if !reflect.DeepEqual(result.Operations, wantOps) {
		t.Errorf("operations = %v, want %v", result.Operations, wantOps)
	}
	if result.Variables["choice"] != "2" || result.Variables["segment"] != "gold" || result.Variables["caller_id"] != "0555" {
		t.Errorf("variables = %v", result.Variables)
	}
	if len(result.DTMFInputs) != 1 {
		t.Errorf("dtmf inputs = %v", result.DTMFInputs)
	}
}

func TestSimulator_CallerHangsUp(t *testing.T) {
	flow := testFlow("welcome", map[string]*runtime.Node{
		"welcome": {Type: runtime.NodePlay, Prompt: "welcome", Next: "menu"},
		"menu":    {Type: runtime.NodePlay, Prompt: "menu", Next: "hangup"},
	})
	sim := NewSimulator(newInterpreter(nil, nil, Options{}))

	result, err := sim.Simulate(context.Background(), flow, runtime.SimulationRequest{HangupAfterPlays: 1})
	if err != nil {
		t.Fatalf("Simulate error: %v", err)
	}
	if result.Outcome != runtime.OutcomeAbandoned {
		t.Errorf("outcome = %s, want abandoned", result.Outcome)
	}
}
