package websocket

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewMessage encodes a message. It returns nil if the payload cannot be encoded.
func NewMessage(action string, payload interface{}) []byte {
	b, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket message")
		return nil
	}
	return b
}
