package explain

import "errors"

// ErrConfig reports a request that cannot be issued: no code, or no
// credential. It is surfaced at once and never retried.
var ErrConfig = errors.New("not configured")

// TransportError wraps a failure talking to the remote model.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "model request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
