package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FallbackMessage is used when the upstream gave no readable reason.
const FallbackMessage = "An error occurred"

// TransportError is a network or HTTP failure talking to the upstream API.
// Status is zero for network-level failures.
type TransportError struct {
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

// MessageOf returns the human-readable upstream message carried by err.
func MessageOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// upstreamMessage extracts {"message": ...} or {"error": ...} from an error
// body, falling back to the status text.
func upstreamMessage(status int, body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		if m := strings.TrimSpace(env.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(env.Error); m != "" {
			return m
		}
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return FallbackMessage
}
