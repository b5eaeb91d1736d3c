// Package protocol defines the request/response types for shellsense IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per
// line. Key matching is case-insensitive, which encoding/json gives us.
package protocol

import (
	"encoding/json"

	"shellsense/internal/store"
	"shellsense/internal/suggest"
)

// Request types.
const (
	TypePing           = "ping"
	TypeLogCommand     = "log_command"
	TypeSuggest        = "suggest"
	TypeGetHistory     = "get_history"
	TypeGetAnalytics   = "get_analytics"
	TypeGetConfig      = "get_config"
	TypeSetConfig      = "set_config"
	TypeExplainCommand = "explain_command"
	TypePrune          = "prune"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is one client message: a type discriminator plus a typed payload.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// LogCommandData is the payload of a log_command request.
type LogCommandData struct {
	Command  string  `json:"command"`
	CWD      string  `json:"cwd"`
	ExitCode int     `json:"exit_code"`
	Duration float64 `json:"duration"`
}

// SuggestData is the payload of a suggest request.
type SuggestData struct {
	Partial string   `json:"partial"`
	CWD     string   `json:"cwd"`
	History []string `json:"history,omitempty"`
}

// GetHistoryData is the payload of a get_history request. When Search is
// set the store's full-text search is used instead of plain recency.
type GetHistoryData struct {
	Limit  int    `json:"limit"`
	Search string `json:"search,omitempty"`
}

// ConfigData is the payload of get_config and set_config requests.
type ConfigData struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// ExplainData is the payload of an explain_command request.
type ExplainData struct {
	Command string `json:"command"`
}

// PruneData is the payload of a prune request.
type PruneData struct {
	// BeforeUnixMs prunes records older than this instant. Zero means
	// "apply the configured retention window".
	BeforeUnixMs int64 `json:"before_unix_ms,omitempty"`
}

// Response is one daemon reply. Exactly the fields relevant to the request
// type are populated; Status is always present.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	ID          *int64                `json:"id,omitempty"`
	Suggestions []suggest.Candidate   `json:"suggestions,omitempty"`
	History     []store.CommandRecord `json:"history,omitempty"`
	Analytics   *store.Analytics      `json:"analytics,omitempty"`
	Key         string                `json:"key,omitempty"`
	Value       any                   `json:"value,omitempty"`
	Explanation string                `json:"explanation,omitempty"`
	Pruned      *int64                `json:"pruned,omitempty"`
}

// OK returns a bare success response.
func OK() *Response {
	return &Response{Status: StatusOK}
}

// Error returns an error response with the given message.
func Error(msg string) *Response {
	return &Response{Status: StatusError, Message: msg}
}
