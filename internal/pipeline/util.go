package pipz

import (
	"fmt"
	"time"
)

// panicError wraps a recovered panic value so it satisfies the error
// interface without leaking raw panic payloads (which may contain
// unexported types or sensitive data) into logs.
type panicError struct {
	processorName Name
	sanitized     string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("processor %q panicked: %s", p.processorName, p.sanitized)
}

// sanitizePanicMessage converts a recovered panic value into a safe string.
// Errors and strings are used directly; anything else falls back to a
// type-tagged representation so the message never reflects into exotic
// value formatting for unknown concrete types.
func sanitizePanicMessage(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// recoverFromPanic recovers from a panic during processor execution and
// converts it into an *Error[T], assigning it through the supplied result
// and error pointers so it can be used as a deferred call at the top of a
// Chainable's Process method:
//
//	func (p *Thing[T]) Process(ctx context.Context, data T) (result T, err *Error[T]) {
//	    defer recoverFromPanic(&result, &err, p.name, data)
//	    ...
//	}
//
// If no panic occurred, recoverFromPanic is a no-op and leaves the existing
// result/err values untouched.
func recoverFromPanic[T any](result *T, err **Error[T], name Name, data T) {
	r := recover()
	if r == nil {
		return
	}

	var zero T
	*result = zero
	*err = &Error[T]{
		Path:      []Name{name},
		InputData: data,
		Err:       &panicError{processorName: name, sanitized: sanitizePanicMessage(r)},
		Timestamp: time.Now(),
	}
}
