package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	queryTimeout   = 5 * time.Second
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// wsConn is the part of *websocket.Conn the pumps use.
type wsConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection is one websocket client and its live subscriptions.
type Connection struct {
	ws     wsConn
	send   chan serverMessage
	done   chan struct{}
	userID string
	srv    *Server

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func newConnection(srv *Server, conn wsConn, userID string) *Connection {
	return &Connection{
		ws:     conn,
		send:   make(chan serverMessage, 256),
		done:   make(chan struct{}),
		userID: userID,
		srv:    srv,
		subs:   map[string]*Subscription{},
	}
}

func (c *Connection) readPump() {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		c.handle(msg)
	}
}

// writePump owns every write to the socket. done is closed when it returns.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.srv.log.Debug("ws write", zap.String("user_id", c.userID), zap.Error(err))
				return
			}
			if msg.Type == typeResult && c.srv.metrics != nil {
				c.srv.metrics.WSPushes.WithLabelValues(c.queryOf(msg.ID)).Inc()
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Connection) queryOf(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[id]; ok {
		return sub.Query
	}
	return "unknown"
}

func (c *Connection) handle(msg clientMessage) {
	switch msg.Op {
	case opSubscribe:
		c.subscribe(msg)
	case opUnsubscribe:
		c.unsubscribe(msg.ID)
	default:
		c.push(serverMessage{Type: typeError, ID: msg.ID, Error: fmt.Sprintf("unknown op %q", msg.Op)})
	}
}

func (c *Connection) subscribe(msg clientMessage) {
	if msg.ID == "" {
		c.push(serverMessage{Type: typeError, Error: "subscription id required"})
		return
	}
	run, topics, err := c.plan(msg)
	if err != nil {
		c.push(serverMessage{Type: typeError, ID: msg.ID, Error: err.Error()})
		return
	}

	sub := &Subscription{ID: msg.ID, Query: msg.Query, Topics: topics}
	sub.Notify = func() { c.deliver(sub.ID, run) }

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	old := c.subs[msg.ID]
	c.subs[msg.ID] = sub
	c.mu.Unlock()
	if old != nil {
		c.srv.Hub.Remove(old)
	}

	c.srv.Hub.Add(sub)
	c.deliver(sub.ID, run)
}

func (c *Connection) unsubscribe(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		c.srv.Hub.Remove(sub)
	}
}

type queryFunc func(ctx context.Context) (interface{}, error)

// plan resolves a subscribe request into the query to run and the topics
// whose events invalidate its result.
func (c *Connection) plan(msg clientMessage) (queryFunc, []string, error) {
	q := c.srv.queries
	me := c.userID
	conv := msg.ConversationID
	needConv := func() error {
		if conv == "" {
			return errors.New("conversation_id required")
		}
		return nil
	}

	switch msg.Query {
	case QueryListConversations:
		return func(ctx context.Context) (interface{}, error) {
			return q.ListConversations(ctx, me)
		}, []string{events.UserTopic(me)}, nil
	case QueryOpenConversation:
		if err := needConv(); err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (interface{}, error) {
			return q.OpenConversation(ctx, conv, me)
		}, []string{events.UserTopic(me)}, nil
	case QueryListMessages:
		if err := needConv(); err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (interface{}, error) {
			return q.ListMessages(ctx, conv, me)
		}, []string{events.MessagesTopic(conv)}, nil
	case QueryListTypingUsers:
		if err := needConv(); err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (interface{}, error) {
			return q.ListTypingUsers(ctx, conv, me)
		}, []string{events.TypingTopic(conv)}, nil
	case QueryOnlineStatus:
		ids := append([]string(nil), msg.UserIDs...)
		topics := make([]string, 0, len(ids))
		for _, id := range ids {
			topics = append(topics, events.PresenceTopic(id))
		}
		return func(ctx context.Context) (interface{}, error) {
			return q.OnlineStatus(ctx, me, ids)
		}, topics, nil
	}
	return nil, nil, fmt.Errorf("unknown query %q", msg.Query)
}

func (c *Connection) deliver(id string, run queryFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	data, err := run(ctx)
	if err != nil {
		c.push(serverMessage{Type: typeError, ID: id, Error: publicError(err)})
		return
	}
	c.push(serverMessage{Type: typeResult, ID: id, Data: data})
}

func publicError(err error) string {
	for _, known := range []error{domain.ErrUnauthorized, domain.ErrForbidden, domain.ErrNotFound, domain.ErrInvalidTarget} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// push never blocks the dispatcher; a client that cannot keep up loses
// updates and gets fresh state on the next event.
func (c *Connection) push(msg serverMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.srv.log.Warn("ws send buffer full", zap.String("user_id", c.userID), zap.String("id", msg.ID))
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = map[string]*Subscription{}
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		c.srv.Hub.Remove(sub)
	}
}
