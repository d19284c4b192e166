package ginserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"campusmarket/internal/app/dto"
	chatservice "campusmarket/internal/app/services/chat"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSHTTP exposes the live feed endpoint.
type WSHTTP interface {
	Handle(c *gin.Context)
}

// WSHandler upgrades authenticated clients and bridges feed subscriptions to
// the socket. Each socket owns its handles; closing the socket cancels them.
type WSHandler struct {
	Feed   *chatservice.Feed
	Logger *slog.Logger
}

type wsCommand struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type wsEnvelope struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h WSHandler) Handle(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "error", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	session := &wsSession{
		handler:    h,
		conn:       conn,
		userID:     principal.Profile.ID,
		send:       make(chan []byte, 64),
		msgHandles: make(map[string]*chatservice.MessageFeed),
		cancel:     cancel,
	}
	go session.writeLoop(ctx)
	session.readLoop(ctx)
}

type wsSession struct {
	handler WSHandler
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	cancel  context.CancelFunc

	mu         sync.Mutex
	convHandle *chatservice.ConversationFeed
	msgHandles map[string]*chatservice.MessageFeed
}

func (s *wsSession) readLoop(ctx context.Context) {
	defer s.teardown()
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.sendError("", "invalid command")
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *wsSession) dispatch(ctx context.Context, cmd wsCommand) {
	switch cmd.Action {
	case "watch_conversations":
		handle, err := s.handler.Feed.WatchConversations(ctx, s.userID)
		if err != nil {
			s.sendError("", "watch failed")
			return
		}
		s.mu.Lock()
		if s.convHandle != nil {
			s.convHandle.Cancel()
		}
		s.convHandle = handle
		s.mu.Unlock()
		go s.pumpConversations(ctx, handle)
	case "unwatch_conversations":
		s.mu.Lock()
		if s.convHandle != nil {
			s.convHandle.Cancel()
			s.convHandle = nil
		}
		s.mu.Unlock()
	case "watch_messages":
		if cmd.ConversationID == "" {
			s.sendError("", "conversation_id is required")
			return
		}
		handle, err := s.handler.Feed.WatchMessages(ctx, s.userID, cmd.ConversationID)
		if err != nil {
			s.sendError(cmd.ConversationID, "watch failed")
			return
		}
		s.mu.Lock()
		if prior, ok := s.msgHandles[cmd.ConversationID]; ok {
			prior.Cancel()
		}
		s.msgHandles[cmd.ConversationID] = handle
		s.mu.Unlock()
		go s.pumpMessages(ctx, cmd.ConversationID, handle)
	case "unwatch_messages":
		s.mu.Lock()
		if handle, ok := s.msgHandles[cmd.ConversationID]; ok {
			handle.Cancel()
			delete(s.msgHandles, cmd.ConversationID)
		}
		s.mu.Unlock()
	default:
		s.sendError("", "unknown action")
	}
}

func (s *wsSession) pumpConversations(ctx context.Context, handle *chatservice.ConversationFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-handle.C:
			if !ok {
				return
			}
			s.sendJSON(wsEnvelope{Type: "conversations", Data: dto.MapConversations(snapshot, s.userID)})
		}
	}
}

func (s *wsSession) pumpMessages(ctx context.Context, conversationID string, handle *chatservice.MessageFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-handle.C:
			if !ok {
				return
			}
			s.sendJSON(wsEnvelope{Type: "messages", ConversationID: conversationID, Data: dto.MapMessages(snapshot)})
		}
	}
}

func (s *wsSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			return
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.Close()
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) sendJSON(env wsEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	default:
		// slow consumer, drop; the next snapshot supersedes this one
	}
}

func (s *wsSession) sendError(conversationID, msg string) {
	s.sendJSON(wsEnvelope{Type: "error", ConversationID: conversationID, Error: msg})
}

func (s *wsSession) teardown() {
	s.mu.Lock()
	if s.convHandle != nil {
		s.convHandle.Cancel()
		s.convHandle = nil
	}
	for id, handle := range s.msgHandles {
		handle.Cancel()
		delete(s.msgHandles, id)
	}
	s.mu.Unlock()
	s.cancel()
	_ = s.conn.Close()
}
