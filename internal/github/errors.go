package github

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried by APIError.
const (
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeNotFound            = "E_NOT_FOUND"
	CodeRateLimited         = "E_RATE_LIMITED"
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeBadResponse         = "E_BAD_RESPONSE"
)

// ErrNotFound matches any APIError with CodeNotFound.
var ErrNotFound = errors.New("not found")

// APIError is a failed GitHub API call.
// StatusCode is 0 when no response was received; Err then holds the
// transport error.
type APIError struct {
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Code
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNotFound
}

// errorForStatus maps an HTTP error status to an APIError. message is the
// "message" field of GitHub's error body, if there was one.
func errorForStatus(status int, message string) *APIError {
	e := &APIError{StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = CodeAuthInvalid
	case status == http.StatusNotFound:
		e.Code = CodeNotFound
	case status == http.StatusTooManyRequests:
		e.Code = CodeRateLimited
	case status >= 500:
		e.Code = CodeEndpointUnreachable
	default:
		e.Code = CodeBadResponse
	}
	return e
}
