package luci

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	// ConnectionFailed means no response was received at all.
	ConnectionFailed ErrorKind = iota
	// BadResponse means a response arrived but could not be used
	// (non-2xx status, wrong content type or unparsable JSON).
	BadResponse
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection failed"
	case BadResponse:
		return "bad response"
	default:
		return "unknown"
	}
}

// TransportError is returned when a request could not be completed or its
// response could not be parsed as JSON.
type TransportError struct {
	Method string
	URL    string
	Kind   ErrorKind
	Status int    // HTTP status, 0 when no response was received
	Body   string // raw response body, if any was read
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 && e.Err == nil {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectionError is returned when a response decodes but its shape or
// content is not acceptable.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return "backend rejected request: " + e.Message
}

// IsConnectionFailure reports whether err is a transport failure that
// happened before any response was received.
func IsConnectionFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == ConnectionFailed
}

// IsTransportError reports whether err is a TransportError of any kind.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a backend rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
