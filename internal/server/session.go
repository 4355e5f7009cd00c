package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/envelope"
	"github.com/rickgao/mcpbus/internal/hub"
)

// replyQueueSize bounds the reply requests a connection may have waiting
// behind the one being dispatched.
const replyQueueSize = 16

// pendingReply is a reply request waiting for the session's reply worker.
type pendingReply struct {
	env       envelope.Envelope
	frameType int
}

// session is one WebSocket connection. Writes are serialized; reads happen
// only on the serve goroutine. Reply requests are dispatched one at a time
// by a separate worker so the read loop keeps running while a connector is
// busy.
type session struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration
	replies      chan pendingReply

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   []*hub.Subscriber
	closed bool
	done   chan struct{}
}

func newSession(id string, ws *websocket.Conn, writeTimeout time.Duration) *session {
	return &session{
		id:           id,
		ws:           ws,
		writeTimeout: writeTimeout,
		replies:      make(chan pendingReply, replyQueueSize),
		done:         make(chan struct{}),
	}
}

func (c *session) write(frameType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(frameType, data)
}

// reply encodes v for the frame type the request arrived in.
func (c *session) reply(frameType int, v any) error {
	if frameType == websocket.BinaryMessage {
		return c.write(websocket.BinaryMessage, envelope.EncodeBinaryBody(v))
	}
	return c.write(websocket.TextMessage, envelope.EncodeBody(v))
}

func (c *session) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *session) addSubscriber(sub *hub.Subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subs = append(c.subs, sub)
	return true
}

// close tears the socket down and returns the subscribers it held.
func (c *session) close() []*hub.Subscriber {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.done)
	c.mu.Unlock()

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second),
	)
	c.ws.Close()
	return subs
}

// serve runs the read loop for sess until the peer goes away. Leaving the
// loop cancels ctx, which aborts any reply still being dispatched.
func (s *Server) serve(sess *session) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go s.replyLoop(ctx, sess)

	defer func() {
		for _, sub := range sess.close() {
			s.hub.Unsubscribe(sub)
		}
	}()

	sess.ws.SetReadLimit(s.cfg.ReadLimit)
	if s.cfg.PingInterval > 0 {
		pongWait := 2 * s.cfg.PingInterval
		sess.ws.SetReadDeadline(time.Now().Add(pongWait))
		sess.ws.SetPongHandler(func(string) error {
			return sess.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go s.keepalive(sess)
	}

	for {
		frameType, data, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("connection read failed", "conn_id", sess.id, "error", err)
			}
			return
		}
		if s.cfg.PingInterval > 0 {
			sess.ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		}

		s.handleFrame(ctx, sess, frameType, data)
	}
}

// replyLoop dispatches reply requests in arrival order until ctx ends.
func (s *Server) replyLoop(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-sess.replies:
			resp := s.dispatch(ctx, r.env, r.frameType == websocket.BinaryMessage)
			if ctx.Err() != nil {
				s.logger.Debug("reply abandoned", "conn_id", sess.id, "channel", r.env.Channel)
				return
			}
			s.send(sess, r.frameType, resp)
		}
	}
}

func (s *Server) keepalive(sess *session) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			if err := sess.ping(); err != nil {
				s.logger.Debug("ping failed", "conn_id", sess.id, "error", err)
				sess.ws.Close()
				return
			}
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, sess *session, frameType int, data []byte) {
	var (
		env envelope.Envelope
		err error
	)
	if frameType == websocket.BinaryMessage {
		env, err = envelope.DecodeBinary(data)
	} else {
		env, err = envelope.Decode(data)
	}
	if err != nil {
		s.logger.Debug("invalid frame", "conn_id", sess.id, "error", err)
		s.send(sess, frameType, envelope.ErrorBody(msgInvalidPayload))
		return
	}

	switch {
	case env.Subscribe:
		s.subscribe(sess, env.Channel, frameType)
	case env.Reply:
		select {
		case sess.replies <- pendingReply{env: env, frameType: frameType}:
		case <-ctx.Done():
		}
	default:
		n := s.hub.Publish(env.Channel, env.Message)
		s.logger.Debug("published", "conn_id", sess.id, "channel", env.Channel, "subscribers", n)
	}
}

func (s *Server) send(sess *session, frameType int, v any) {
	if err := sess.reply(frameType, v); err != nil {
		s.logger.Debug("write failed", "conn_id", sess.id, "error", err)
	}
}

func (s *Server) subscribe(sess *session, channel string, frameType int) {
	sub := s.hub.Subscribe(channel)
	if !sess.addSubscriber(sub) {
		s.hub.Unsubscribe(sub)
		return
	}

	s.logger.Debug("subscribed", "conn_id", sess.id, "channel", channel)

	go func() {
		for msg := range sub.C() {
			if err := sess.write(frameType, streamFrame(msg.Payload, frameType)); err != nil {
				s.logger.Debug("stream write failed", "conn_id", sess.id, "channel", channel, "error", err)
				// The read loop notices the closed socket and unsubscribes.
				sess.ws.Close()
				return
			}
		}
	}()
}

// streamFrame encodes a published message for a subscriber. Objects are sent
// as bodies. Strings go out as-is on text frames; bytes are wrapped under the
// payload key (base64 in JSON) so a text frame never carries invalid UTF-8.
// Binary frames wrap every non-object under the payload key.
func streamFrame(payload any, frameType int) []byte {
	binary := frameType == websocket.BinaryMessage

	switch p := payload.(type) {
	case map[string]any, envelope.Body:
		if binary {
			return envelope.EncodeBinaryBody(p)
		}
		return envelope.EncodeBody(p)
	case string:
		if !binary {
			return []byte(p)
		}
	case []byte:
		if !binary {
			return envelope.EncodeBody(envelope.Body{envelope.PayloadKey: p})
		}
	}

	if binary {
		return envelope.EncodeBinaryBody(envelope.Body{envelope.PayloadKey: payload})
	}
	return envelope.EncodeBody(payload)
}
