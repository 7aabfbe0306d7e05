package runtime

import (
	"fmt"
	"sort"
)

// NodeType names one of the node kinds a flow may contain.
type NodeType string

const (
	NodePlay         NodeType = "play"
	NodePlayDigits   NodeType = "play_digits"
	NodePlaySequence NodeType = "play_sequence"
	NodeCollect      NodeType = "collect"
	NodeBranch       NodeType = "branch"
	NodeAPICall      NodeType = "api_call"
	NodeSetVariable  NodeType = "set_variable"
	NodeTransfer     NodeType = "transfer"
	NodeHangup       NodeType = "hangup"
)

// HangupTarget is the conventional target id flow authors use to end a call.
// It does not need to exist in the node map.
const HangupTarget = "hangup"

// Sequence item kinds for play_sequence nodes.
const (
	SequencePrompt = "prompt"
	SequenceNumber = "number"
	SequenceDigits = "digits"
)

type Flow struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Extension        string            `json:"extension,omitempty" yaml:"extension,omitempty"`
	Language         string            `json:"language,omitempty" yaml:"language,omitempty"`
	Settings         map[string]any    `json:"settings,omitempty" yaml:"settings,omitempty"`
	StartNode        string            `json:"startNode" yaml:"startNode" validate:"required"`
	Nodes            map[string]*Node  `json:"nodes" yaml:"nodes" validate:"required,min=1,dive,required"`
	CaptureVariables []CaptureVariable `json:"captureVariables,omitempty" yaml:"captureVariables,omitempty" validate:"dive"`
}

// CaptureVariable names a resolved variable surfaced to the reporting layer.
type CaptureVariable struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

type Node struct {
	ID           string   `json:"id" yaml:"id"`
	Type         NodeType `json:"type" yaml:"type" validate:"required,oneof=play play_digits play_sequence collect branch api_call set_variable transfer hangup"`
	Label        string   `json:"label,omitempty" yaml:"label,omitempty"`
	Next         string   `json:"next,omitempty" yaml:"next,omitempty"`
	OnError      string   `json:"onError,omitempty" yaml:"onError,omitempty"`
	OnTimeout    string   `json:"onTimeout,omitempty" yaml:"onTimeout,omitempty"`
	OnEmpty      string   `json:"onEmpty,omitempty" yaml:"onEmpty,omitempty"`
	OnMaxRetries string   `json:"onMaxRetries,omitempty" yaml:"onMaxRetries,omitempty"`
	MaxRetries   int      `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" validate:"gte=0"`

	// play, collect
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// play_digits, collect, branch, set_variable
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty" yaml:"suffix,omitempty"`

	// play_sequence
	Sequence []SequenceItem `json:"sequence,omitempty" yaml:"sequence,omitempty" validate:"dive"`

	// collect
	MaxDigits   int     `json:"maxDigits,omitempty" yaml:"maxDigits,omitempty" validate:"gte=0"`
	Timeout     float64 `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"` // seconds
	Terminators string  `json:"terminators,omitempty" yaml:"terminators,omitempty"`
	ValidDigits string  `json:"validDigits,omitempty" yaml:"validDigits,omitempty"`

	// branch
	Condition string            `json:"condition,omitempty" yaml:"condition,omitempty"`
	Branches  map[string]string `json:"branches,omitempty" yaml:"branches,omitempty"`
	Default   string            `json:"default,omitempty" yaml:"default,omitempty"`

	// api_call
	URL            string         `json:"url,omitempty" yaml:"url,omitempty"`
	Method         string         `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	Body           any            `json:"body,omitempty" yaml:"body,omitempty"`
	Headers        map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
	ResultVariable string         `json:"resultVariable,omitempty" yaml:"resultVariable,omitempty"`

	// set_variable
	Value      any    `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// transfer
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
	Context     string `json:"context,omitempty" yaml:"context,omitempty"`

	// hangup
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

type SequenceItem struct {
	Type     string `json:"type" yaml:"type" validate:"required,oneof=prompt number digits"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
}

// Node returns the node registered under id.
func (f *Flow) Node(id string) (*Node, bool) {
	if id == "" || f.Nodes == nil {
		return nil, false
	}
	n, ok := f.Nodes[id]
	if !ok || n == nil {
		return nil, false
	}
	return n, true
}

// IsHangup reports whether target ends the call: empty, the conventional
// hangup id, a missing node, or a node of type hangup.
func (f *Flow) IsHangup(target string) bool {
	if target == "" || target == HangupTarget {
		return true
	}
	n, ok := f.Node(target)
	return !ok || n.Type == NodeHangup
}

// Normalize fills node ids from their map keys and defaults the language.
func (f *Flow) Normalize(defaultLanguage string) {
	for id, n := range f.Nodes {
		if n != nil && n.ID == "" {
			n.ID = id
		}
	}
	if f.Language == "" {
		f.Language = defaultLanguage
	}
}

// Targets lists every node id referenced by n.
func (n *Node) Targets() []string {
	targets := []string{n.Next, n.OnError, n.OnTimeout, n.OnEmpty, n.OnMaxRetries, n.Default}
	for _, t := range n.Branches {
		targets = append(targets, t)
	}
	out := targets[:0]
	for _, t := range targets {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Lint reports references that do not resolve to a node. They are legal
// (the interpreter treats them as a hangup) but usually a typo.
func (f *Flow) Lint() []string {
	var warnings []string
	if _, ok := f.Node(f.StartNode); !ok {
		warnings = append(warnings, fmt.Sprintf("start node %q does not exist", f.StartNode))
	}

	ids := make([]string, 0, len(f.Nodes))
	for id := range f.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := f.Nodes[id]
		if n == nil {
			continue
		}
		for _, t := range n.Targets() {
			if t == HangupTarget {
				continue
			}
			if _, ok := f.Node(t); !ok {
				warnings = append(warnings, fmt.Sprintf("node %q references unknown node %q", id, t))
			}
		}
		if n.Type == NodeBranch && n.Condition == "" && n.Variable == "" && n.Default == "" {
			warnings = append(warnings, fmt.Sprintf("branch node %q has neither condition, variable nor default", id))
		}
	}
	return warnings
}
