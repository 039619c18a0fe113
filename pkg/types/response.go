package types

import "encoding/json"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RemoteEnvelope is the response wrapper used by the remote order backend:
// {"success": bool, "message": "...", "data": ...}. Failed responses may
// instead carry {"error": {"message": "..."}}.
type RemoteEnvelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

type RemoteError struct {
	Message string `json:"message"`
}
