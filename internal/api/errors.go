package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a backend call failure.
type Kind int

const (
	// KindNetwork means the request never completed.
	KindNetwork Kind = iota
	// KindUnauthorized means the backend rejected the bearer token (401).
	KindUnauthorized
	// KindValidation means the input was rejected (other 4xx), either
	// client-side or by the backend.
	KindValidation
	// KindServer means the backend or its AI pipeline failed (5xx).
	KindServer
)

// Error is a failed backend call. Detail carries the backend's
// human-readable message and is shown to the user verbatim.
type Error struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// IsUnauthorized reports whether err is a rejected-token failure.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}

// Detail returns the user-facing message for err, or a generic fallback.
func Detail(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "Something went wrong. Please try again."
}

// statusError builds an Error from a non-2xx response body. The backend's
// detail field is usually a string, but validation failures arrive as a
// structured list, so anything non-string is re-serialized as-is.
func statusError(status int, body []byte) *Error {
	e := &Error{Status: status, Detail: decodeDetail(body)}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status >= 400 && status < 500:
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}
	if e.Detail == "" {
		e.Detail = http.StatusText(status)
	}
	return e
}

func decodeDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	// Validation failures arrive as a list of {loc, msg, type} objects;
	// the msg fields are the human-readable part.
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(payload.Detail))
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Detail: "could not reach the analysis service: " + err.Error()}
}

func validationError(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}
