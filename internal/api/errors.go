package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrTimeout      = errors.New("request timed out")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("server error")
	ErrBadRequest   = errors.New("bad request")
)

// HTTPError is a non-success response that is surfaced to the caller as is.
// Match its class with errors.Is(err, ErrForbidden) and friends.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrServer:
		return e.StatusCode >= 500
	case ErrBadRequest:
		return e.StatusCode >= 400 && e.StatusCode < 500 &&
			e.StatusCode != http.StatusUnauthorized &&
			e.StatusCode != http.StatusForbidden &&
			e.StatusCode != http.StatusNotFound
	}
	return false
}

// UserMessage is a sentence suitable for showing in the UI.
func (e *HTTPError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusForbidden:
		return "You don't have permission to do that."
	case e.StatusCode == http.StatusNotFound:
		return "The requested item no longer exists."
	case e.StatusCode >= 500:
		return "The mail server is having trouble. Please try again later."
	case e.Message != "":
		return e.Message
	default:
		return "The request could not be completed."
	}
}

func newHTTPError(method, path string, resp *Response) *HTTPError {
	e := &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &body) == nil {
		switch {
		case body.Message != "":
			e.Message = body.Message
		case body.Error != "":
			e.Message = body.Error
		}
	} else if text := strings.TrimSpace(string(resp.Body)); text != "" && len(text) < 200 {
		e.Message = text
	}
	return e
}
