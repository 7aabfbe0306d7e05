package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/channeltest"
	"github.com/BDNK1/ivrflow/runtime/engine/resolver"
)

var _ runtime.Simulator = &Simulator{}

// Simulator runs flows against a scripted caller instead of a live channel.
type Simulator struct {
	interpreter *Interpreter
}

func NewSimulator(interpreter *Interpreter) *Simulator {
	return &Simulator{interpreter: interpreter}
}

func (s *Simulator) Simulate(ctx context.Context, flow *runtime.Flow, req runtime.SimulationRequest) (runtime.SimulationResult, error) {
	callerID := req.CallerID
	if callerID == "" {
		callerID = "simulator"
	}

	ch := channeltest.New("sim-"+uuid.NewString(), callerID, req.Digits...)
	ch.HangupAfterPlays = req.HangupAfterPlays
	for k, v := range req.ChannelVariables {
		ch.SetVariable(k, v)
	}

	exec, err := s.interpreter.Execute(ctx, flow, ch, req.Variables)
	if err != nil {
		return runtime.SimulationResult{}, fmt.Errorf("simulate %s: %w", flow.ID, err)
	}

	var vars map[string]any
	if store, ok := exec.Store.(*resolver.ValueStore); ok {
		vars = store.Snapshot()
	} else {
		vars = exec.Store.All()
	}

	return runtime.SimulationResult{
		Outcome:    exec.Outcome,
		History:    exec.History,
		Operations: ch.Ops(),
		Variables:  vars,
		DTMFInputs: exec.DTMFLog,
		APICalls:   exec.APILog,
	}, nil
}
