package runtime

import "context"

// Initializer is implemented by plugins that connect to something before the
// first call is accepted. The Container calls it in registration order.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by plugins holding connections or running calls.
// The Container calls it in reverse registration order.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
