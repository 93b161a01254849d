package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 64 * 1024
)

var errClosed = errors.New("connection closed")

// RequestHandler processes an incoming request and returns a response
// envelope. A nil envelope sends nothing.
type RequestHandler func(ctx context.Context, env *Envelope) (*Envelope, error)

// client is one browser or tool connected over WebSocket.
type client struct {
	server *Server
	ws     *websocket.Conn
	send   chan []byte
	logger hclog.Logger

	handlers map[MessageType]RequestHandler

	// Lifecycle
	ctx  context.Context
	stop context.CancelFunc
}

func newClient(s *Server, ws *websocket.Conn) *client {
	ctx, stop := context.WithCancel(context.Background())
	c := &client{
		server: s,
		ws:     ws,
		send:   make(chan []byte, 256),
		logger: s.logger.With("remote", ws.RemoteAddr().String()),
		ctx:    ctx,
		stop:   stop,
	}
	c.handlers = map[MessageType]RequestHandler{
		TypeQuery:     c.handleQuery,
		TypeInsights:  c.handleInsights,
		TypeHistory:   c.handleHistory,
		TypeGetQuery:  c.handleGetQuery,
		TypeGetConfig: c.handleGetConfig,
	}
	return c
}

// run starts the pumps and blocks until the connection closes.
func (c *client) run() {
	go c.writePump()
	c.readPump()
}

func (c *client) close() {
	c.stop()
	c.ws.Close()
}

func (c *client) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("invalid message", "error", err)
			errEnv, _ := NewError("", "bad_request", "invalid envelope")
			c.sendEnvelope(errEnv)
			continue
		}

		c.dispatch(&env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) dispatch(env *Envelope) {
	if env.Type == TypeHeartbeat {
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, nil)
		c.sendEnvelope(ack)
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		c.logger.Debug("unhandled message type", "type", env.Type)
		errEnv, _ := NewError(env.RequestID, "unknown_type", "unhandled message type: "+string(env.Type))
		c.sendEnvelope(errEnv)
		return
	}

	resp, err := handler(c.ctx, env)
	if err != nil {
		errEnv, _ := NewError(env.RequestID, "handler_error", err.Error())
		c.sendEnvelope(errEnv)
		return
	}
	if resp != nil {
		c.sendEnvelope(resp)
	}
}

func (c *client) sendEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return errClosed
	}
}
