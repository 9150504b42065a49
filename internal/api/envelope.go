package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the uniform response shape of the backend.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// fallbackMessage is used when the backend does not supply an error message.
func fallbackMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return "request failed: " + text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// decode interprets a response envelope and unmarshals data into out.
// out may be nil when the caller does not need the payload.
func (r *response) decode(out any) error {
	var env Envelope
	envErr := json.Unmarshal(r.body, &env)

	if r.status < 200 || r.status > 299 {
		message := fallbackMessage(r.status)
		if envErr == nil && env.Error != "" {
			message = env.Error
		}
		return logicalError(r.status, message, nil)
	}

	if envErr != nil {
		return logicalError(r.status, "invalid response from server", envErr)
	}

	if !env.Success {
		message := env.Error
		if message == "" {
			message = "request failed"
		}
		return logicalError(r.status, message, nil)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return logicalError(r.status, "invalid response from server", fmt.Errorf("decoding data: %w", err))
	}
	return nil
}
