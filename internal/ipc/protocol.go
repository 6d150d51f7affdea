package ipc

import (
	"encoding/json"
	"fmt"
	"io"
)

// CommandType 控制命令类型
type CommandType string

const (
	CmdStatus CommandType = "STATUS"
	CmdStop   CommandType = "STOP"
)

// Command represents a command sent from CLI to daemon
type Command struct {
	Type CommandType `json:"type"`
}

// Response represents a response sent from daemon to CLI
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewCommand creates a new command of the given type
func NewCommand(cmdType CommandType) *Command {
	return &Command{Type: cmdType}
}

// NewResponse creates a new response, encoding data when it is not nil
func NewResponse(success bool, data any, err error) (*Response, error) {
	resp := &Response{Success: success}
	if data != nil {
		raw, merr := json.Marshal(data)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", merr)
		}
		resp.Data = raw
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// Decode unmarshals the response data into v
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// WriteCommand writes one command to w
func WriteCommand(w io.Writer, cmd *Command) error {
	if err := json.NewEncoder(w).Encode(cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// ReadCommand reads one command from r
func ReadCommand(r io.Reader) (*Command, error) {
	var cmd Command
	if err := json.NewDecoder(r).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}

// WriteResponse writes one response to w
func WriteResponse(w io.Writer, resp *Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}

// ReadResponse reads one response from r
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}
