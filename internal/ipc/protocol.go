package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/compwm/internal/hotkeys"
	"github.com/1broseidon/compwm/internal/wm"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload       CommandType = "RELOAD"
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandListWindows  CommandType = "LIST_WINDOWS"
	CommandListBindings CommandType = "LIST_BINDINGS"
	CommandSendMessage  CommandType = "SEND_MESSAGE"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Name          string   `json:"name"`
	Display       string   `json:"display"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Windows       int      `json:"windows"`
	Mapped        int      `json:"mapped"`
	Active        uint32   `json:"active"`
	Consumers     int      `json:"consumers"`
	Events        uint64   `json:"events"`
	ConfigFiles   []string `json:"config_files,omitempty"`
	DaemonRunning bool     `json:"daemon_running"`
}

// WindowsData is returned by LIST_WINDOWS.
type WindowsData = wm.Snapshot

// BindingsData is returned by LIST_BINDINGS.
type BindingsData struct {
	Bindings []hotkeys.BindingInfo `json:"bindings"`
	Actions  []string              `json:"actions"`
}

// SendMessagePayload is the payload of SEND_MESSAGE. A zero Window means
// the root window.
type SendMessagePayload struct {
	Window uint32   `json:"window,omitempty"`
	Type   string   `json:"type"`
	Params [4]int32 `json:"params"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
