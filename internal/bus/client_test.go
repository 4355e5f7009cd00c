package bus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/envelope"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// readEnvelope reads one frame from the client and decodes it.
func readEnvelope(t *testing.T, conn *websocket.Conn) (int, envelope.Envelope) {
	t.Helper()

	frameType, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read: %v", err)
		return 0, envelope.Envelope{}
	}

	var env envelope.Envelope
	if frameType == websocket.BinaryMessage {
		env, err = envelope.DecodeBinary(data)
	} else {
		env, err = envelope.Decode(data)
	}
	if err != nil {
		t.Errorf("server decode: %v", err)
	}
	return frameType, env
}

func TestClient_Publish(t *testing.T) {
	received := make(chan envelope.Envelope, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, env := readEnvelope(t, conn)
		received <- env
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(wsURL(server))
	if err := c.Publish(context.Background(), "market", map[string]any{"symbol": "AAPL", "price": 190.5}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case env := <-received:
		if env.Channel != "market" {
			t.Errorf("Channel = %q, want market", env.Channel)
		}
		if env.Subscribe || env.Reply {
			t.Errorf("flags set on publish: %+v", env)
		}
		if env.Fields().String("symbol") != "AAPL" {
			t.Errorf("Message = %v", env.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive publish")
	}
}

func TestClient_PublishEmptyChannel(t *testing.T) {
	c := New("ws://127.0.0.1:1")
	if err := c.Publish(context.Background(), " ", "x"); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("err = %v, want ErrEmptyChannel", err)
	}
}

func TestClient_Request(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, env := readEnvelope(t, conn)
		if !env.Reply {
			t.Errorf("reply flag not set: %+v", env)
		}
		if env.Fields().String("action") != "history" {
			t.Errorf("action = %v", env.Message)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"AAPL","data":[],"source":"yahoo"}`))
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(wsURL(server))
	body, err := c.Request(context.Background(), "market", map[string]any{"action": "history"}, time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if body.String("symbol") != "AAPL" || body.String("source") != "yahoo" {
		t.Errorf("body = %v", body)
	}
	if !body.Has("data") {
		t.Error("body missing data")
	}
}

func TestClient_RequestNonStructuredBody(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		readEnvelope(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte("plain text"))
		conn.ReadMessage()
	})
	defer server.Close()

	body, err := New(wsURL(server)).Request(context.Background(), "echo", "hi", time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if got := body.String(envelope.PayloadKey); got != "plain text" {
		t.Errorf("payload = %q, want %q", got, "plain text")
	}
}

func TestClient_RequestTimeout(t *testing.T) {
	serverDone := make(chan error, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		readEnvelope(t, conn)
		// Never reply; report when the client goes away.
		_, _, err := conn.ReadMessage()
		serverDone <- err
	})
	defer server.Close()

	c := New(wsURL(server))
	timeout := 100 * time.Millisecond

	start := time.Now()
	_, err := c.Request(context.Background(), "market", map[string]any{"action": "history"}, timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}

	var timeoutErr *RequestTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %T, want *RequestTimeoutError", err)
	}
	if timeoutErr.Channel != "market" || timeoutErr.Timeout != timeout {
		t.Errorf("RequestTimeoutError = %+v", timeoutErr)
	}

	if elapsed < timeout || elapsed > timeout+time.Second {
		t.Errorf("Request returned after %v, want about %v", elapsed, timeout)
	}

	select {
	case err := <-serverDone:
		if err == nil {
			t.Error("server read succeeded, want closed connection")
		}
	case <-time.After(2 * time.Second):
		t.Error("connection not closed after timeout")
	}
}

func TestClient_RequestLateResponseDiscarded(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		readEnvelope(t, conn)
		time.Sleep(200 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"late":true}`))
	})
	defer server.Close()

	body, err := New(wsURL(server)).Request(context.Background(), "market", map[string]any{}, 50*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("err = %v, want ErrRequestTimeout", err)
	}
	if body != nil {
		t.Errorf("body = %v, want nil", body)
	}
}

func TestClient_RequestContextCancelled(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		readEnvelope(t, conn)
		conn.ReadMessage()
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := New(wsURL(server)).Request(ctx, "market", map[string]any{}, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClient_RequestDefaultTimeout(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		readEnvelope(t, conn)
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(wsURL(server), WithDefaultTimeout(50*time.Millisecond))
	_, err := c.Request(context.Background(), "market", map[string]any{}, 0)

	var timeoutErr *RequestTimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Timeout != 50*time.Millisecond {
		t.Errorf("err = %v, want timeout after 50ms", err)
	}
}

func TestClient_RequestBinaryFrames(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		frameType, env := readEnvelope(t, conn)
		if frameType != websocket.BinaryMessage {
			t.Errorf("frame type = %d, want binary", frameType)
		}
		if env.Fields().String("uri") != "https://example.com/a.pdf" {
			t.Errorf("message = %v", env.Message)
		}
		conn.WriteMessage(websocket.BinaryMessage, envelope.EncodeBinaryBody(map[string]any{
			"uri":     "https://example.com/a.pdf",
			"content": []byte{0x25, 0x50, 0x44, 0x46},
		}))
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(wsURL(server), WithBinaryFrames())
	body, err := c.Request(context.Background(), "document", map[string]any{
		"action": "fetch",
		"uri":    "https://example.com/a.pdf",
	}, time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	content, ok := body["content"].([]byte)
	if !ok || string(content) != "%PDF" {
		t.Errorf("content = %#v, want raw bytes", body["content"])
	}
}

func TestClient_WithHeader(t *testing.T) {
	got := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Agent")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	c := New(wsURL(server), WithHeader("X-Agent", "analyst"))
	if err := c.Publish(context.Background(), "market", "hello"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if h := <-got; h != "analyst" {
		t.Errorf("X-Agent = %q, want analyst", h)
	}
}

func TestClient_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	c := New(wsURL(server))
	if err := c.Publish(context.Background(), "market", "x"); err == nil {
		t.Error("expected dial error")
	}
	if _, err := c.Subscribe(context.Background(), "market"); err == nil {
		t.Error("expected dial error")
	}
}
