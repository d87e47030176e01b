package handler

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/orchestrator"
)

const sendBufferSize = 16

// stateMessage carries an orchestrator snapshot to the client.
type stateMessage struct {
	Type string `json:"type"`
	orchestrator.Snapshot
}

// Session is one websocket connection bound to its own orchestrator.
type Session struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Orch   *orchestrator.Orchestrator
	config config.WebSocketConfig
	logger zerolog.Logger

	forwardDone chan struct{}
}

func newSession(id string, conn *websocket.Conn, orch *orchestrator.Orchestrator, cfg config.WebSocketConfig, logger zerolog.Logger) *Session {
	return &Session{
		ID:          id,
		Conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
		Orch:        orch,
		config:      cfg,
		logger:      logger,
		forwardDone: make(chan struct{}),
	}
}

// ReadPump dispatches client messages until the connection drops, then ends the session.
func (s *Session) ReadPump(handle func(*Session, []byte), onClose func(*Session)) {
	defer func() {
		s.Orch.Close()
		<-s.forwardDone
		close(s.Send)
		onClose(s)
	}()

	s.Conn.SetReadLimit(s.config.MaxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		handle(s, message)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ForwardState pushes every orchestrator snapshot to the client until the orchestrator closes.
func (s *Session) ForwardState(updates <-chan orchestrator.Snapshot) {
	defer close(s.forwardDone)
	for snap := range updates {
		s.SendMessage(stateMessage{Type: domain.MsgTypeState, Snapshot: snap})
	}
}

// SendMessage queues message for the client, dropping it when the buffer is full.
func (s *Session) SendMessage(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal websocket message")
		return
	}

	select {
	case s.Send <- data:
	default:
		s.logger.Warn().Msg("websocket send buffer full, message dropped")
	}
}
