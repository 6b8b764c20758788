package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for comparison using errors.Is()
var (
	// ErrUnauthenticated is returned when an operation needs a session and none is held
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStaleSession is returned when a response arrives after the session it was issued for ended
	ErrStaleSession = errors.New("session changed while request was in flight")
	// ErrEmptyCart is returned when a checkout handoff is requested for an empty cart
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidSortKey is returned for a sort key outside name, newest and popular
	ErrInvalidSortKey = errors.New("invalid sort key")
	// ErrNotFound is returned when an entity is absent from the catalog
	ErrNotFound = errors.New("not found")
)

// NetworkError means the store API could not be reached or did not respond
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError means the store API answered with a non-2xx status
type HTTPError struct {
	Op      string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthenticated) match rejected credentials
func (e *HTTPError) Is(target error) bool {
	if target == ErrUnauthenticated {
		return e.Status == http.StatusUnauthorized
	}
	if target == ErrNotFound {
		return e.Status == http.StatusNotFound
	}
	return false
}

// IsNetwork reports whether err is a NetworkError
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// HTTPStatus returns the status of an HTTPError, or 0
func HTTPStatus(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// ServerMessage returns the message the store API attached to a rejection,
// or fallback when there is none
func ServerMessage(err error, fallback string) string {
	var he *HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return fallback
}

// ParseErrorBody extracts a human-readable message from an error response.
// The store API answers {"detail": "..."} or {"detail": [{"msg": "..."}]}.
func ParseErrorBody(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &list); err == nil {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return payload.Message
}
