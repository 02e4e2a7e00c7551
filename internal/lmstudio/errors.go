package lmstudio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network_error"
	KindTimeout   ErrorKind = "timeout_error"
	KindAuth      ErrorKind = "authentication_error"
	KindRateLimit ErrorKind = "rate_limit_error"
	KindServer    ErrorKind = "server_error"
	KindClient    ErrorKind = "client_error"
	KindAPI       ErrorKind = "api_error"
	KindUnknown   ErrorKind = "unknown_error"
)

// Error is returned by HTTPClient for every failed call.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lmstudio: %s: %s (HTTP %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("lmstudio: %s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed. Authentication,
// client and unclassified failures are final.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindServer, KindRateLimit, KindNetwork, KindTimeout, KindAPI:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is an *Error with a retryable kind.
func IsRetryable(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Retryable()
	}
	return false
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUnknown
}

// kindForStatus maps an HTTP status code to an ErrorKind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	default:
		return KindAPI
	}
}

// statusError builds an Error from a non-2xx response body. LM Studio sends
// either {"error": "..."} or the OpenAI {"error": {"message": "..."}} shape.
func statusError(op string, code int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var s string
		var obj struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(envelope.Error, &s) == nil && s != "":
			msg = s
		case json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "":
			msg = obj.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &Error{Kind: kindForStatus(code), Op: op, StatusCode: code, Message: msg}
}

// transportError classifies an error returned by http.Client.Do.
func transportError(op string, err error) *Error {
	kind := KindNetwork
	var nerr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}
