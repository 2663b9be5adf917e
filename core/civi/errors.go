package civi

import "fmt"

// TransportError reports a call that did not produce a well-formed response,
// e.g. a connection failure, a non-200 status or an undecodable body.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure: %v", e.Err)
	}
	return fmt.Sprintf("unexpected HTTP status %d, please check the endpoint URL", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError carries the logical failure message reported by the remote service
// in a decoded reply with the error flag set.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s", e.Message)
}
