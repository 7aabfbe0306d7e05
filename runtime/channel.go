package runtime

import "context"

// Channel is the capability surface the engine drives for one live call.
// Every blocking operation honours ctx. Errors wrapping ErrChannelGone mean
// the telephony side is gone and the call must stop; any other error is
// recoverable.
type Channel interface {
	ID() string
	CallerID() string

	Answer(ctx context.Context) error
	// Play blocks until playback of media finished.
	Play(ctx context.Context, media string) error
	// Digits subscribes to DTMF events. The returned channel is closed once
	// ctx is cancelled or the channel is gone.
	Digits(ctx context.Context) (<-chan string, error)
	Hangup(ctx context.Context) error
	Variable(ctx context.Context, name string) (string, error)
	Redirect(ctx context.Context, target Redirect) error

	// Done is closed when the call leaves the engine's control.
	Done() <-chan struct{}
}

// Redirect continues the call in the dialplan outside the engine.
type Redirect struct {
	Context   string
	Extension string
	Priority  int
}
