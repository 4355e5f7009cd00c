package bus

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/envelope"
)

// conn is one operation's connection. Only one goroutine writes to it.
type conn struct {
	ws           *websocket.Conn
	binary       bool
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func (c *conn) send(e envelope.Envelope) error {
	frameType := websocket.TextMessage
	var data []byte
	if c.binary {
		frameType = websocket.BinaryMessage
		var err error
		if data, err = envelope.EncodeBinary(e); err != nil {
			return err
		}
	} else {
		data = envelope.Encode(e)
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(frameType, data)
}

// read returns the next frame decoded according to its frame type.
func (c *conn) read() (envelope.Body, error) {
	frameType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if frameType == websocket.BinaryMessage {
		return envelope.DecodeBinaryBody(data), nil
	}
	return envelope.DecodeBody(data), nil
}

// close sends a close frame and tears the socket down. Safe to call from any
// goroutine and more than once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.ws.Close()
	})
}
