package runtime

import "context"

// Simulator runs a flow against a scripted channel.
type Simulator interface {
	Simulate(ctx context.Context, flow *Flow, req SimulationRequest) (SimulationResult, error)
}

// SimulationRequest scripts the caller side of a simulated call. Each entry of
// Digits is delivered to one digit collection, in order; an empty entry is
// silence.
type SimulationRequest struct {
	CallerID         string            `json:"callerId" yaml:"callerId"`
	Digits           []string          `json:"digits" yaml:"digits"`
	Variables        map[string]any    `json:"variables,omitempty" yaml:"variables,omitempty"`
	ChannelVariables map[string]string `json:"channelVariables,omitempty" yaml:"channelVariables,omitempty"`
	HangupAfterPlays int               `json:"hangupAfterPlays,omitempty" yaml:"hangupAfterPlays,omitempty"`
}

type SimulationResult struct {
	Outcome    Outcome        `json:"outcome"`
	History    []string       `json:"history"`
	Operations []string       `json:"operations"`
	Variables  map[string]any `json:"variables"`
	DTMFInputs []LogEntry     `json:"dtmfInputs"`
	APICalls   []LogEntry     `json:"apiCalls"`
}
