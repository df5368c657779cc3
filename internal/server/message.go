package server

import (
	"encoding/json"
	"time"
)

// MessageType identifies a WebSocket frame.
type MessageType string

const (
	// Client -> server.
	MessageTypePlaceBet MessageType = "place_bet"
	MessageTypeAdvance  MessageType = "advance"

	// Server -> client.
	MessageTypeEvent   MessageType = "event"
	MessageTypeBetAck  MessageType = "bet_ack"
	MessageTypeAdvAck  MessageType = "advance_ack"
	MessageTypeError   MessageType = "error"
	MessageTypeWelcome MessageType = "welcome"
)

func (mt MessageType) String() string { return string(mt) }

// Message is the base WebSocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a frame with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client -> server payloads.

type PlaceBetData struct {
	RoundID string `json:"round_id"`
	BetID   string `json:"bet_id,omitempty"` // minted server-side when empty
}

// Server -> client payloads.

type WelcomeData struct {
	Game          string `json:"game"`
	ParticipantID string `json:"participant_id"`
	SubscriberID  string `json:"subscriber_id"`
}

type BetAckData struct {
	RoundID string `json:"round_id"`
	BetID   string `json:"bet_id"`
}

type AdvanceAckData struct {
	RoundID string `json:"round_id"`
	Status  string `json:"status"` // "advancing" or "already_advancing"
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
