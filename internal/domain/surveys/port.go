package surveys

import (
	"context"
	"io"
)

// Store port (the append-only response store)
type Store interface {
	Append(ctx context.Context, r *Response) error
	ReadAll(ctx context.Context) ([]*Response, error)
	WriteCSV(ctx context.Context, w io.Writer) (int64, error)
}

// Sink receives a copy of every accepted response (email, mirrors, archives).
// Deliveries are best-effort; a failing sink never fails an intake.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, r *Response) error
}

// Dispatcher hands accepted responses to sinks without blocking the caller.
type Dispatcher interface {
	Dispatch(r *Response)
}
