package runtime

import (
	"fmt"
	"time"
)

// FlowSettings is the typed view of Flow.Settings.
type FlowSettings struct {
	ErrorPrompt   string           `json:"errorPrompt" default:"could_not_retrieve"`
	GoodbyePrompt string           `json:"goodbyePrompt" default:"goodbye"`
	AnswerDelay   time.Duration    `json:"answerDelay"`
	Tracking      TrackingSettings `json:"tracking"`
}

// TrackingSettings names the variables reported to the call tracker once
// they become defined.
type TrackingSettings struct {
	Account  string `json:"account" default:"account_number"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// DecodeSettings decodes the free-form settings map and applies defaults.
func (f *Flow) DecodeSettings() (FlowSettings, error) {
	var s FlowSettings
	if err := ApplyDefaults(&s); err != nil {
		return s, err
	}
	if len(f.Settings) == 0 {
		return s, nil
	}
	if err := mapToStruct(f.Settings, &s); err != nil {
		return s, fmt.Errorf("flow %s settings: %w", f.ID, err)
	}
	return s, nil
}
