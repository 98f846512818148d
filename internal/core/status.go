package core

import "errors"

// Status is the closed result taxonomy of every fallible operation.
type Status uint8

const (
	OK Status = iota
	InvalidArg
	PreconditionFail
	NotReady
	DeadlineMiss
	NoMem
)

var statusNames = [...]string{
	OK:               "ok",
	InvalidArg:       "invalid argument",
	PreconditionFail: "precondition failed",
	NotReady:         "not ready",
	DeadlineMiss:     "deadline miss",
	NoMem:            "arena exhausted",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

func (s Status) Error() string {
	return "core: " + s.String()
}

// Pre-boxed status errors. The tick path returns these directly so a failed
// update never allocates.
var (
	ErrInvalidArg       error = InvalidArg
	ErrPreconditionFail error = PreconditionFail
	ErrNotReady         error = NotReady
	ErrDeadlineMiss     error = DeadlineMiss
	ErrNoMem            error = NoMem
)

// StatusOf maps an error, possibly wrapped or aggregated, back to its Status.
// Errors that carry no Status report InvalidArg.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return InvalidArg
}
