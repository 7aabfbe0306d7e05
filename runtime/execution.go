package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// Outcome is the terminal status of a call.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeHangup      Outcome = "hangup"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeTransferred Outcome = "transferred"
	OutcomeError       Outcome = "error"
)

// Well-known variable slots seeded or written by the engine.
const (
	VarCallerID  = "caller_id"
	VarChannelID = "channel_id"
	VarFlowID    = "ivr_id"
	VarFlowName  = "ivr_name"
	VarExtension = "extension"
	VarLanguage  = "language"
	VarDTMFInput = "dtmf_input"
	VarLastError = "last_error"

	// VarAccountNumber receives digits from account collect nodes that
	// name no variable.
	VarAccountNumber = "account_number"
)

// LogEntry is one append-only observability record of a call.
type LogEntry struct {
	NodeID    string    `json:"node"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is the state of one call. It is owned by the goroutine running
// the call and must not be shared.
type Execution struct {
	ID          string
	CallID      string
	Store       ValueStore
	Flow        *Flow
	Channel     Channel
	Settings    FlowSettings
	CurrentNode string
	History     []string
	Retries     map[string]int
	DTMFLog     []LogEntry
	APILog      []LogEntry
	Outcome     Outcome
	StartedAt   time.Time
	EndedAt     time.Time

	ctx    context.Context // cancelled with ErrChannelGone when the channel goes away
	cancel context.CancelCauseFunc
}

// context.Context implementation delegates to the call context so channel
// teardown cancels every blocking operation that received the execution.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}

	v, _ := e.Store.Get(k)
	return v
}

// NewExecution creates the state of a call and seeds the variable scope.
// vars are applied after the built-in slots and may override them.
func NewExecution(ctx context.Context, flow *Flow, channel Channel, store ValueStore, vars map[string]any) (*Execution, error) {
	settings, err := flow.DecodeSettings()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithCancelCause(ctx)
	exec := &Execution{
		ID:        uuid.New().String(),
		Store:     store,
		Flow:      flow,
		Channel:   channel,
		Settings:  settings,
		Retries:   make(map[string]int),
		StartedAt: time.Now(),
		ctx:       callCtx,
		cancel:    cancel,
	}

	go func() {
		select {
		case <-channel.Done():
			cancel(ErrChannelGone)
		case <-callCtx.Done():
		}
	}()

	callerID := channel.CallerID()
	if callerID == "" {
		callerID = "unknown"
	}
	store.Set(VarCallerID, callerID)
	store.Set(VarChannelID, channel.ID())
	store.Set(VarFlowID, flow.ID)
	store.Set(VarFlowName, flow.Name)
	store.Set(VarExtension, flow.Extension)
	store.Set(VarLanguage, flow.Language)

	for k, v := range vars {
		store.Set(k, v)
	}

	return exec, nil
}

// ChannelGone reports whether the channel vanished.
func (e *Execution) ChannelGone() bool {
	if errors.Is(context.Cause(e.ctx), ErrChannelGone) {
		return true
	}
	select {
	case <-e.Channel.Done():
		e.cancel(ErrChannelGone)
		return true
	default:
		return false
	}
}

// Visit makes id the active node and records it in the history.
func (e *Execution) Visit(id string) {
	e.CurrentNode = id
	e.History = append(e.History, id)
}

func (e *Execution) LogDTMF(nodeID, digits string) {
	e.DTMFLog = append(e.DTMFLog, LogEntry{NodeID: nodeID, Payload: digits, Timestamp: time.Now()})
}

func (e *Execution) LogAPI(nodeID string, payload map[string]any) {
	e.APILog = append(e.APILog, LogEntry{NodeID: nodeID, Payload: payload, Timestamp: time.Now()})
}

// Finish records the outcome and releases the call context.
func (e *Execution) Finish(outcome Outcome) {
	if e.Outcome == "" {
		e.Outcome = outcome
	}
	e.EndedAt = time.Now()
	e.cancel(nil)
}

// Captured resolves the flow's capture variables. Undefined variables are
// omitted.
func (e *Execution) Captured() map[string]any {
	out := make(map[string]any, len(e.Flow.CaptureVariables))
	for _, cv := range e.Flow.CaptureVariables {
		if v, ok := e.Store.Get(cv.Name); ok {
			out[cv.Name] = v
		}
	}
	return out
}

// CallSummary is the call-log record sent to the call-record store.
type CallSummary struct {
	CallID      string         `json:"callId,omitempty"`
	ExecutionID string         `json:"executionId"`
	FlowID      string         `json:"ivrId"`
	FlowName    string         `json:"ivrName"`
	Extension   string         `json:"extension"`
	ChannelID   string         `json:"channelId"`
	CallerID    string         `json:"callerId"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	Status      string         `json:"status"`
	NodeHistory []string       `json:"nodeHistory"`
	DTMFInputs  []LogEntry     `json:"dtmfInputs"`
	APICalls    []LogEntry     `json:"apiCalls"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e *Execution) Summary() CallSummary {
	callerID, _ := e.Store.Get(VarCallerID)
	end := e.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return CallSummary{
		CallID:      e.CallID,
		ExecutionID: e.ID,
		FlowID:      e.Flow.ID,
		FlowName:    e.Flow.Name,
		Extension:   e.Flow.Extension,
		ChannelID:   e.Channel.ID(),
		CallerID:    Stringify(callerID),
		StartTime:   e.StartedAt,
		EndTime:     end,
		Status:      string(e.Outcome),
		NodeHistory: append([]string(nil), e.History...),
		DTMFInputs:  append([]LogEntry(nil), e.DTMFLog...),
		APICalls:    append([]LogEntry(nil), e.APILog...),
		Variables:   e.Captured(),
	}
}

// OutboundStatus is reported for calls originated by the dialer.
type OutboundStatus struct {
	Status      string         `json:"status"`
	ChannelID   string         `json:"channel_id,omitempty"`
	AnswerTime  *time.Time     `json:"answer_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	DTMFInputs  []LogEntry     `json:"dtmf_inputs,omitempty"`
	HangupCause string         `json:"hangup_cause,omitempty"`
}
