package model

import "encoding/json"

// ConnectRequest is the body of POST /api/redis/connect.
// Older clients post a bare ConnectionConfig; newer clients wrap it in Config.
type ConnectRequest struct {
	ConnectionConfig

	// Config is the connection to open.
	Config *ConnectionConfig `json:"config,omitempty"`

	// IsEnvironmentConnection asks the server to resolve the connection from
	// its environment catalog by ID instead of trusting the posted fields.
	IsEnvironmentConnection bool `json:"isEnvironmentConnection,omitempty"`

	// ConnectionID names an environment connection when Config is absent.
	ConnectionID string `json:"connectionId,omitempty"`
}

// Target returns the connection configuration carried by the request.
// The second result is false when the body carries none.
func (r ConnectRequest) Target() (ConnectionConfig, bool) {
	if r.Config != nil {
		return *r.Config, true
	}
	if r.Host != "" || r.Port != 0 {
		return r.ConnectionConfig, true
	}
	if r.ConnectionID != "" {
		return ConnectionConfig{ID: r.ConnectionID}, true
	}
	return ConnectionConfig{}, false
}

// ConnectResponse acknowledges a successful connect.
type ConnectResponse struct {
	Success                 bool   `json:"success"`
	ID                      string `json:"id"`
	IsEnvironmentConnection bool   `json:"isEnvironmentConnection"`
}

// DisconnectRequest is the body of POST /api/redis/disconnect.
type DisconnectRequest struct {
	ID string `json:"id"`
}

// SetKeyRequest is the body of POST /api/redis/key.
type SetKeyRequest struct {
	ConnectionID string `json:"connectionId"`
	Key          string `json:"key"`
	Type         string `json:"type"`
	Value        any    `json:"value"`

	// HasValue is set when a decoded body carried a value field, which may
	// be an explicit null.
	HasValue bool `json:"-"`
}

// UnmarshalJSON records whether the value field was present.
func (r *SetKeyRequest) UnmarshalJSON(data []byte) error {
	type plain SetKeyRequest
	var body struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}

	*r = SetKeyRequest(body.plain)
	r.Value = nil
	r.HasValue = len(body.Value) > 0
	if r.HasValue {
		return json.Unmarshal(body.Value, &r.Value)
	}
	return nil
}

// CommandRequest is the body of POST /api/redis/command.
type CommandRequest struct {
	ConnectionID string `json:"connectionId"`
	Command      string `json:"command"`
}

// CommandResponse carries the raw result of a command.
type CommandResponse struct {
	Result any `json:"result"`
}

// KeysResponse carries a key listing.
type KeysResponse struct {
	Keys []KeyDescriptor `json:"keys"`
}

// SuccessResponse acknowledges an operation without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
