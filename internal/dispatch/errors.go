package dispatch

import "errors"

var (
	ErrBusRequired      = errors.New("consumer requires a bus")
	ErrGroupRequired    = errors.New("consumer requires a group name")
	ErrNoHandlers       = errors.New("consumer has no registered handlers")
	ErrHandlerConflict  = errors.New("handler already registered for event type")
	ErrNoHandlerForType = errors.New("no handler registered for event type")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a protocol violation that will not succeed on retry.
// Such errors are retried a bounded number of times and then dead-lettered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
