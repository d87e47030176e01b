package domain

// WebSocket message types from client.
const (
	MsgTypeSetQuery   = "set_query"
	MsgTypeSetFilters = "set_filters"
	MsgTypeLoadMore   = "load_more"
	MsgTypeClear      = "clear"
	MsgTypePing       = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeState = "state"
	MsgTypeError = "error"
	MsgTypePong  = "pong"
)

// Error codes
const (
	ErrCodeBadRequest = "BAD_REQUEST"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type SetQueryMessage struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

type SetFiltersMessage struct {
	Type    string  `json:"type"`
	Filters Filters `json:"filters"`
}

type LoadMoreMessage struct {
	Type     string `json:"type"`
	Category string `json:"category"`
}

// Server -> Client messages

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
