package transport

import (
	"fmt"

	"github.com/desertthunder/cadence/internal/shared"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindTimeout Kind = "timeout" // every attempt hit the per-attempt timeout
	KindNetwork Kind = "network" // dial, TLS or connection failure
	KindAborted Kind = "aborted" // the caller's context was cancelled
)

// TransportError is returned by [Transport.Send] once retries are exhausted.
//
// It unwraps to both the kind's sentinel in [shared] and the last attempt's cause.
type TransportError struct {
	Kind     Kind
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport: %s %s: %s", e.Method, e.URL, e.Kind)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *TransportError) sentinel() error {
	switch e.Kind {
	case KindTimeout:
		return shared.ErrTimeout
	case KindAborted:
		return shared.ErrAborted
	default:
		return shared.ErrNetwork
	}
}
