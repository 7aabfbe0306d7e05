package ari

import "strings"

// Event types consumed by the engine.
const (
	EventStasisStart         = "StasisStart"
	EventStasisEnd           = "StasisEnd"
	EventChannelDestroyed    = "ChannelDestroyed"
	EventChannelHangup       = "ChannelHangupRequest"
	EventChannelDtmfReceived = "ChannelDtmfReceived"
	EventPlaybackFinished    = "PlaybackFinished"
)

// Event is the subset of an ARI event message the engine reads.
type Event struct {
	Type        string    `json:"type"`
	Application string    `json:"application"`
	Args        []string  `json:"args,omitempty"`
	Channel     *Channel  `json:"channel,omitempty"`
	Digit       string    `json:"digit,omitempty"`
	Playback    *Playback `json:"playback,omitempty"`
}

type Channel struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	State  string   `json:"state"`
	Caller CallerID `json:"caller"`
}

type CallerID struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Playback struct {
	ID        string `json:"id"`
	TargetURI string `json:"target_uri"`
	State     string `json:"state"`
}

// channelID returns the id of the channel the event concerns.
func (e *Event) channelID() string {
	if e.Channel != nil {
		return e.Channel.ID
	}
	if e.Playback != nil {
		if id, ok := strings.CutPrefix(e.Playback.TargetURI, "channel:"); ok {
			return id
		}
	}
	return ""
}
