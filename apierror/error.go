package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is the type of error returned by a network client. It contains an
// HTTP status code so that API clients can interpret the error message.
type Error struct {
	err    error
	status int
}

// ErrorMessage is the JSON body that some endpoints return along with a
// non-200 status.
type ErrorMessage struct {
	Message string `json:",omitempty"`
	Status  int    `json:",omitempty"`
}

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse creates an Error from a non-200 response status and body. If
// the body is a JSON-encoded ErrorMessage then its message text is used,
// otherwise the body is treated as plain text.
func FromResponse(status int, body []byte) error {
	var err error
	text := strings.TrimSpace(string(body))
	if text != "" {
		var em ErrorMessage
		if jerr := json.Unmarshal([]byte(text), &em); jerr == nil && em.Message != "" {
			text = em.Message
		}
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

// IsCancellation reports whether err resulted from the caller's own context
// being canceled or timing out, as opposed to a failure of the remote
// endpoint. Errors of this kind are self-inflicted and are not surfaced to
// users.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	// If there is only status, then return status text
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

func (e *Error) Text() string {
	parts := make([]string, 0, 5)
	if e.status != 0 {
		parts = append(parts, fmt.Sprintf("%d", e.status))
		text := http.StatusText(e.status)
		if text != "" {
			parts = append(parts, " ")
			parts = append(parts, text)
		}
	}
	if e.err != nil {
		if len(parts) != 0 {
			parts = append(parts, ": ")
		}
		parts = append(parts, e.err.Error())
	}

	return strings.Join(parts, "")
}

func (e *Error) Unwrap() error {
	return e.err
}
