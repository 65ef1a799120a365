package ws

import (
	"context"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Queries are the reads a client can subscribe to.
type Queries interface {
	ListConversations(ctx context.Context, userID string) ([]domain.ConversationView, error)
	OpenConversation(ctx context.Context, conversationID, userID string) (*domain.ConversationView, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]*domain.Message, error)
	ListTypingUsers(ctx context.Context, conversationID, viewerID string) ([]string, error)
	OnlineStatus(ctx context.Context, viewerID string, userIDs []string) ([]domain.OnlineStatus, error)
}

type Server struct {
	Hub     *Hub
	queries Queries
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewServer(q Queries, log *zap.Logger, m *metrics.Metrics) *Server {
	return &Server{
		Hub:     NewHub(),
		queries: q,
		log:     log,
		metrics: m,
	}
}

// HandleWS is the websocket.Handler used with websocket.New(). The upgrade
// middleware stores the authenticated user id in Locals.
func (s *Server) HandleWS(wsConn *websocket.Conn) {
	userID, _ := wsConn.Locals("user_id").(string)
	if userID == "" {
		_ = wsConn.Close()
		return
	}

	s.serve(wsConn, userID)
}

// serve runs both pumps and returns only after the write pump has stopped,
// since the websocket handler releases the conn on return.
func (s *Server) serve(ws wsConn, userID string) {
	conn := newConnection(s, ws, userID)
	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}
	s.log.Debug("ws connected", zap.String("user_id", userID))

	go conn.writePump()
	conn.readPump()
	<-conn.done
	s.log.Debug("ws disconnected", zap.String("user_id", userID))
}

// HandleEvent feeds a committed change into the hub.
func (s *Server) HandleEvent(ev events.Event) {
	s.Hub.Dispatch(ev)
}
