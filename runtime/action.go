package runtime

import "time"

// Action is a fully interpolated outbound HTTP request.
type Action struct {
	NodeID  string
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// ActionResult is the decoded response of a successful Action. Payload holds
// the parsed JSON document, or the raw body text when it is not JSON.
type ActionResult struct {
	Status   int
	Payload  any
	Duration time.Duration
}
