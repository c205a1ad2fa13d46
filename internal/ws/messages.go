package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "room/ready"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

const (
	EventLeave       = "room/leave"
	EventReady       = "room/ready"
	EventUnready     = "room/unready"
	EventKick        = "room/kick"
	EventClearReady  = "room/clear-ready"
	EventChat        = "room/chat"
	EventSelectGame  = "room/select-game"
	EventGameStart   = "game/start"
	EventGameInput   = "game/input"
	EventGameEnd     = "game/end"
	EventError       = "error"
	eventRoomPrefix  = "room/"
	eventAckSuffix   = "-ack"
	eventUnknownKind = "unknown"
)

type KickRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type ChatRequest struct {
	Content string `json:"content" validate:"required,max=500"`
}

type VariantRequest struct {
	Variant string `json:"variant" validate:"required"`
}

type InputRequest struct {
	Count     int    `json:"count" validate:"min=0,max=100"`
	Direction *int   `json:"direction,omitempty" validate:"omitempty,min=0"`
	Item      string `json:"item,omitempty" validate:"omitempty,max=16"`
}

type InputAck struct {
	Outcome string `json:"outcome"`
}

// AckBody is the empty acknowledgement.
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
