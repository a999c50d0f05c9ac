package gateway

import (
	"errors"
	"fmt"
)

// RequestError is the single error kind returned by Client. Status is the
// HTTP status code, or 0 when the request never got a response.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error

	outcome string
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Transport reports whether the request failed before an HTTP status arrived.
func (e *RequestError) Transport() bool {
	return e.Status == 0
}

// ErrMissingRowID is returned, without contacting the server, when a row
// operation gets an empty cart row id.
var ErrMissingRowID = errors.New("cart row id must not be empty")

// ErrBodyTooLarge is wrapped by a RequestError when a successful response
// exceeds the read limit. The body is not decoded.
var ErrBodyTooLarge = errors.New("response body too large")

func statusError(op string, status int, message string) *RequestError {
	if message == "" {
		message = fmt.Sprintf("Request failed (%d)", status)
	}
	return &RequestError{Op: op, Status: status, Message: message, outcome: outcomeHTTP}
}

func transportError(op string, err error) *RequestError {
	return &RequestError{Op: op, Message: fmt.Sprintf("%s: %v", op, err), Err: err, outcome: outcomeTransport}
}

// bodyError reports a successful status whose body could not be read whole.
func bodyError(op string, status int, err error) *RequestError {
	return &RequestError{
		Op:      op,
		Status:  status,
		Message: fmt.Sprintf("%s: reading response: %v", op, err),
		Err:     err,
		outcome: outcomeBadBody,
	}
}
