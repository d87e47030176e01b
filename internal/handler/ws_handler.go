package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/orchestrator"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler runs interactive search sessions over websocket, one orchestrator per connection.
type WSHandler struct {
	searcher orchestrator.Searcher
	cache    orchestrator.ResultCache
	orchCfg  config.OrchestratorConfig
	wsCfg    config.WebSocketConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewWSHandler(searcher orchestrator.Searcher, resultCache orchestrator.ResultCache, orchCfg config.OrchestratorConfig, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		searcher: searcher,
		cache:    resultCache,
		orchCfg:  orchCfg,
		wsCfg:    wsCfg,
		sessions: make(map[string]*Session),
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/v1/search/ws", h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	logger := l.With().Str(log.FieldSessionID, id).Logger()
	orch := orchestrator.New(h.searcher, h.cache, h.orchCfg, orchestrator.WithLogger(logger))
	session := newSession(id, conn, orch, h.wsCfg, logger)

	h.mu.Lock()
	h.sessions[id] = session
	h.mu.Unlock()
	logger.Debug().Msg("search session opened")

	updates, _ := orch.Subscribe()
	session.SendMessage(stateMessage{Type: domain.MsgTypeState, Snapshot: orch.Snapshot()})

	go session.WritePump()
	go session.ForwardState(updates)
	go session.ReadPump(h.handleMessage, h.unregister)
}

// CloseAll drops every open session, used on shutdown.
func (h *WSHandler) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Conn.Close()
	}
}

// SessionCount returns the number of open sessions.
func (h *WSHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *WSHandler) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	s.logger.Debug().Msg("search session closed")
}

func (h *WSHandler) handleMessage(s *Session, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		s.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypeSetQuery:
		var msg domain.SetQueryMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid set_query message"))
			return
		}
		s.Orch.SetQuery(msg.Query)

	case domain.MsgTypeSetFilters:
		var msg domain.SetFiltersMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid set_filters message"))
			return
		}
		s.Orch.SetFilters(msg.Filters)

	case domain.MsgTypeLoadMore:
		var msg domain.LoadMoreMessage
		if err := json.Unmarshal(message, &msg); err != nil || !domain.IsValidCategory(msg.Category) {
			s.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid load_more category"))
			return
		}
		s.Orch.LoadMore(msg.Category)

	case domain.MsgTypeClear:
		s.Orch.Clear()

	case domain.MsgTypePing:
		s.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		s.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}
