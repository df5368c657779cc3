package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Connection couples one WebSocket client to a game: it forwards the hub's
// event stream out and routes bet/advance requests in. The hub's bounded
// channel is the backpressure boundary; a client that stops reading has its
// channel closed by the hub, which ends the write pump and the connection.
type Connection struct {
	conn          *websocket.Conn
	game          *Game
	events        <-chan round.Event
	send          chan *Message // acks and errors; drained by the write pump
	participantID string
	subscriberID  string
	logger        zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnection wraps an upgraded WebSocket and subscribes it to the game's
// hub. participantID may be empty for watch-only clients.
func NewConnection(conn *websocket.Conn, game *Game, participantID string, logger zerolog.Logger) (*Connection, error) {
	subscriberID := uuid.NewString()
	events, err := game.Hub.Subscribe(subscriberID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:          conn,
		game:          game,
		events:        events,
		send:          make(chan *Message, 16),
		participantID: participantID,
		subscriberID:  subscriberID,
		logger: logger.With().
			Str("component", "conn").
			Str("game", game.Name).
			Str("subscriber", subscriberID).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start runs the pumps and blocks until the connection ends.
func (c *Connection) Start() {
	go c.writePump()

	welcome, err := NewMessage(MessageTypeWelcome, WelcomeData{
		Game:          c.game.Name,
		ParticipantID: c.participantID,
		SubscriberID:  c.subscriberID,
	})
	if err == nil {
		c.enqueue(welcome)
	}

	c.readPump()
}

// Close tears the connection down and releases the hub subscription.
func (c *Connection) Close() {
	c.cancel()
	c.game.Hub.Unsubscribe(c.subscriberID)
	_ = c.conn.Close()
}

// writePump drains the hub channel to the socket and keeps the peer alive
// with pings. A closed events channel means the hub evicted us.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.logger.Warn().Msg("Evicted by hub, closing connection")
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			msg, err := eventMessage(ev)
			if err != nil {
				c.logger.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			if err := c.writeMessage(msg); err != nil {
				return
			}

		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump handles incoming frames until the peer disconnects.
func (c *Connection) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug().Str("type", msg.Type.String()).Msg("Received message")

	switch msg.Type {
	case MessageTypePlaceBet:
		var data PlaceBetData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse bet data")
			return
		}
		c.handlePlaceBet(data)

	case MessageTypeAdvance:
		c.handleAdvance()

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handlePlaceBet(data PlaceBetData) {
	if c.participantID == "" {
		c.sendError("not_identified", "Connect with a participant id to place bets")
		return
	}

	betID := data.BetID
	if betID == "" {
		betID = uuid.NewString()
	}

	err := c.game.Scheduler.RegisterBet(data.RoundID, c.participantID, betID)
	switch {
	case err == nil:
		ack, _ := NewMessage(MessageTypeBetAck, BetAckData{RoundID: data.RoundID, BetID: betID})
		c.enqueue(ack)
	case errors.Is(err, round.ErrInvalidPhase):
		c.sendError("invalid_phase", "Betting is closed for this round")
	case errors.Is(err, round.ErrRoundNotFound), errors.Is(err, round.ErrNoRound):
		c.sendError("round_not_found", "Round is no longer current")
	default:
		c.sendError("bet_failed", err.Error())
	}
}

func (c *Connection) handleAdvance() {
	if c.participantID == "" {
		c.sendError("not_identified", "Connect with a participant id to advance the round")
		return
	}

	roundID, err := c.game.Scheduler.TriggerAdvance(c.participantID)

	status := "advancing"
	switch {
	case err == nil:
	case errors.Is(err, round.ErrAlreadyAdvancing):
		// Race loser; absorbed, not an error.
		status = "already_advancing"
	case errors.Is(err, round.ErrInvalidPhase):
		c.sendError("invalid_phase", "Round cannot be advanced right now")
		return
	case errors.Is(err, round.ErrNoRound):
		c.sendError("round_not_found", "No round in progress")
		return
	default:
		c.sendError("advance_failed", err.Error())
		return
	}

	ack, _ := NewMessage(MessageTypeAdvAck, AdvanceAckData{RoundID: roundID, Status: status})
	c.enqueue(ack)
}

func (c *Connection) sendError(code, message string) {
	errMsg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create error message")
		return
	}
	c.enqueue(errMsg)
}

// enqueue hands a frame to the write pump. Dropping on a full buffer is fine
// here: these are acks and errors, and a client this far behind is about to
// be evicted by the hub anyway.
func (c *Connection) enqueue(msg *Message) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn().Str("type", msg.Type.String()).Msg("Send buffer full, dropping frame")
	}
}

// writeMessage is only called from the write pump goroutine.
func (c *Connection) writeMessage(msg *Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func eventMessage(ev round.Event) (*Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeEvent, Data: data, Timestamp: ev.Timestamp}, nil
}
