package scmirroring

import (
	"errors"
	"fmt"
)

// Error is the screen mirroring error taxonomy. The zero value means success.
type Error int

const (
	ErrorNone Error = iota
	ErrorInvalidParameter
	ErrorOutOfMemory
	ErrorInvalidOperation
	ErrorConnectionTimeout
	ErrorPermissionDenied
	ErrorNotSupported
	ErrorUnknown
)

var errorNames = map[Error]string{
	ErrorNone:              "none",
	ErrorInvalidParameter:  "invalid parameter",
	ErrorOutOfMemory:       "out of memory",
	ErrorInvalidOperation:  "invalid operation",
	ErrorConnectionTimeout: "connection timeout",
	ErrorPermissionDenied:  "permission denied",
	ErrorNotSupported:      "not supported",
	ErrorUnknown:           "unknown error",
}

func (e Error) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Error(%d)", int(e))
}

func (e Error) Error() string {
	return "scmirroring: " + e.String()
}

// ErrorCode reduces err to the taxonomy. Wrapped Error values are unwrapped.
func ErrorCode(err error) Error {
	if err == nil {
		return ErrorNone
	}
	var e Error
	if errors.As(err, &e) {
		return e
	}
	return ErrorUnknown
}

// wrap attaches context to a taxonomy error while keeping it matchable with errors.Is.
func wrap(code Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", code, fmt.Sprintf(format, args...))
}
