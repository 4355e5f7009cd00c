package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/bus"
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
	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// replyServer answers every request with the body returned by respond.
func replyServer(t *testing.T, respond func(env envelope.Envelope) envelope.Body) *httptest.Server {
	return mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := envelope.Decode(data)
		if err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		conn.WriteMessage(websocket.TextMessage, envelope.EncodeBody(respond(env)))
		conn.ReadMessage()
	})
}

func TestMarketClient_FetchHistory(t *testing.T) {
	requests := make(chan envelope.Envelope, 1)
	server := replyServer(t, func(env envelope.Envelope) envelope.Body {
		requests <- env
		return envelope.Body{
			"symbol": "AAPL",
			"source": "yahoo",
			"data": []any{
				map[string]any{
					"Datetime": "2024-01-02T00:00:00Z",
					"Open":     187.15, "High": 188.44, "Low": 183.89,
					"Close": 185.64, "Adj Close": 184.73, "Volume": 82488700,
				},
			},
		}
	})

	mc := NewMarketClient(bus.New(wsURL(server)), time.Second, nil)
	result, err := mc.FetchHistory(context.Background(), MarketRequest{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}

	got := <-requests
	if got.Channel != "market" || !got.Reply {
		t.Errorf("request envelope = %+v", got)
	}
	msg := got.Fields()
	if msg.String("action") != "history" {
		t.Errorf("action = %v", msg["action"])
	}
	params := envelope.Body(msg["params"].(map[string]any))
	if params.String("symbol") != "AAPL" || params.String("range") != "1mo" || params.String("interval") != "1h" {
		t.Errorf("params = %v, want defaults applied", params)
	}

	if result.Symbol != "AAPL" || result.Source != "yahoo" || len(result.Data) != 1 {
		t.Fatalf("result = %+v", result)
	}
	row := result.Data[0]
	if row.AdjClose != 184.73 || row.Volume != 82488700 {
		t.Errorf("row = %+v", row)
	}
	if !row.Datetime.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Datetime = %v", row.Datetime)
	}
}

func TestMarketClient_FetchHistoryEmpty(t *testing.T) {
	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.Body{"symbol": "ZZZZ", "data": []any{}, "source": "yahoo"}
	})

	result, err := NewMarketClient(bus.New(wsURL(server)), time.Second, nil).
		FetchHistory(context.Background(), NewMarketRequest("ZZZZ"))
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if result.Data == nil || len(result.Data) != 0 {
		t.Errorf("Data = %#v, want empty slice", result.Data)
	}
}

func TestMarketClient_FetchHistoryRemoteError(t *testing.T) {
	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.ErrorBody("Unsupported market action: history")
	})

	_, err := NewMarketClient(bus.New(wsURL(server)), time.Second, nil).
		FetchHistory(context.Background(), NewMarketRequest("AAPL"))

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if remote.Channel != "market" || remote.Message != "Unsupported market action: history" {
		t.Errorf("RemoteError = %+v", remote)
	}
}

func TestMarketClient_EmptySymbol(t *testing.T) {
	mc := NewMarketClient(bus.New("ws://127.0.0.1:1"), time.Second, nil)

	if _, err := mc.FetchHistory(context.Background(), MarketRequest{Symbol: "  "}); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("FetchHistory err = %v, want ErrEmptySymbol", err)
	}
	if _, _, err := mc.StreamPrices(context.Background(), MarketRequest{}); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("StreamPrices err = %v, want ErrEmptySymbol", err)
	}
}

func TestMarketClient_StreamPricesFilters(t *testing.T) {
	serverDone := make(chan error, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if env, _ := envelope.Decode(data); !env.Subscribe || env.Channel != "market" {
			t.Errorf("subscribe envelope = %s", data)
		}

		ticks := []string{"AAPL", "MSFT", "GOOG", "msft", "AAPL", "MSFT", "GOOG"}
		for i, sym := range ticks {
			conn.WriteMessage(websocket.TextMessage,
				[]byte(fmt.Sprintf(`{"symbol":%q,"price":%d}`, sym, 100+i)))
		}

		_, _, err = conn.ReadMessage()
		serverDone <- err
	})

	mc := NewMarketClient(bus.New(wsURL(server)), 0, nil)
	seq, stop, err := mc.StreamPrices(context.Background(), NewMarketRequest("MSFT"))
	if err != nil {
		t.Fatalf("StreamPrices failed: %v", err)
	}
	defer stop()

	var prices []float64
	for tick, err := range seq {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if !strings.EqualFold(tick.Symbol, "MSFT") {
			t.Errorf("got tick for %s", tick.Symbol)
		}
		prices = append(prices, tick.Price)
		if len(prices) == 3 {
			break
		}
	}

	want := []float64{101, 103, 105}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("prices = %v, want %v", prices, want)
		}
	}

	select {
	case err := <-serverDone:
		if err == nil {
			t.Error("server read succeeded, want closed connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection leaked after break")
	}

	// Not restartable.
	for _, err := range seq {
		if !errors.Is(err, bus.ErrSubscriptionConsumed) {
			t.Errorf("second iteration err = %v", err)
		}
	}
}

func TestMarketClient_StreamPricesStop(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.ReadMessage()
	})

	seq, stop, err := NewMarketClient(bus.New(wsURL(server)), 0, nil).
		StreamPrices(context.Background(), NewMarketRequest("AAPL"))
	if err != nil {
		t.Fatalf("StreamPrices failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range seq {
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := stop(); err != nil {
		t.Errorf("stop: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after stop")
	}
}

func TestDocumentClient_FetchPrefersBase64(t *testing.T) {
	var signedHits atomic.Int32
	signed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signedHits.Add(1)
		w.Write([]byte("from signed url"))
	}))
	defer signed.Close()

	requests := make(chan envelope.Envelope, 1)
	server := replyServer(t, func(env envelope.Envelope) envelope.Body {
		requests <- env
		return envelope.Body{
			"uri":            "https://example.com/a.pdf",
			"content_base64": "JVBERi0xLjc=",
			"signed_url":     signed.URL,
		}
	})

	dc := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil)
	data, err := dc.Fetch(context.Background(), NewDocumentRequest("https://example.com/a.pdf"))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if string(data) != "%PDF-1.7" {
		t.Errorf("data = %q, want decoded base64", data)
	}
	if n := signedHits.Load(); n != 0 {
		t.Errorf("signed url fetched %d times, want 0", n)
	}

	got := <-requests
	msg := got.Fields()
	if got.Channel != "document" || msg.String("action") != "fetch" ||
		msg.String("uri") != "https://example.com/a.pdf" || msg.String("media_type") != "application/pdf" {
		t.Errorf("request envelope = %+v", got)
	}
}

func TestDocumentClient_FetchRawContent(t *testing.T) {
	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.Body{"content": "plain bytes", "signed_url": "http://127.0.0.1:1/never"}
	})

	data, err := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil).
		Fetch(context.Background(), NewDocumentRequest("https://example.com/a.txt"))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "plain bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestDocumentClient_FetchSignedURL(t *testing.T) {
	signed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("signed body"))
	}))
	defer signed.Close()

	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.Body{"signed_url": signed.URL + "/obj?sig=abc"}
	})

	data, err := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil).
		Fetch(context.Background(), NewDocumentRequest("s3://bucket/key"))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "signed body" {
		t.Errorf("data = %q", data)
	}
}

func TestDocumentClient_FetchMissingContent(t *testing.T) {
	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.Body{"uri": "https://example.com/a.pdf"}
	})

	_, err := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil).
		Fetch(context.Background(), NewDocumentRequest("https://example.com/a.pdf"))
	if !errors.Is(err, ErrMissingContent) {
		t.Errorf("err = %v, want ErrMissingContent", err)
	}
}

func TestDocumentClient_FetchCustomChannel(t *testing.T) {
	channels := make(chan string, 1)
	server := replyServer(t, func(env envelope.Envelope) envelope.Body {
		channels <- env.Channel
		return envelope.Body{"content_base64": "aGk="}
	})

	req := NewDocumentRequest("https://example.com/a.png")
	req.Channel = "doc/images"
	req.MediaType = "image/png"

	if _, err := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil).Fetch(context.Background(), req); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if channel := <-channels; channel != "doc/images" {
		t.Errorf("channel = %q, want doc/images", channel)
	}
}

func TestDocumentClient_Text(t *testing.T) {
	server := replyServer(t, func(env envelope.Envelope) envelope.Body {
		switch env.Fields().String("action") {
		case ActionOCR:
			return envelope.Body{"text": "INVOICE #42"}
		case ActionASR:
			return envelope.Body{"transcript": "wrong field"}
		}
		return envelope.ErrorBody("unexpected")
	})

	dc := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil)

	text, err := dc.OCRImage(context.Background(), NewDocumentRequest("https://example.com/scan.png"))
	if err != nil {
		t.Fatalf("OCRImage failed: %v", err)
	}
	if text != "INVOICE #42" {
		t.Errorf("text = %q", text)
	}

	if _, err := dc.SpeechToText(context.Background(), NewDocumentRequest("https://example.com/call.wav")); !errors.Is(err, ErrMissingText) {
		t.Errorf("SpeechToText err = %v, want ErrMissingText", err)
	}
}

func TestDocumentClient_RemoteError(t *testing.T) {
	server := replyServer(t, func(envelope.Envelope) envelope.Body {
		return envelope.ErrorBody("Unsupported document action: ocr")
	})

	_, err := NewDocumentClient(bus.New(wsURL(server)), nil, time.Second, nil).
		OCRImage(context.Background(), NewDocumentRequest("https://example.com/scan.png"))

	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "Unsupported document action: ocr" {
		t.Errorf("err = %v, want RemoteError", err)
	}
}

func TestDocumentClient_EmptyURI(t *testing.T) {
	dc := NewDocumentClient(bus.New("ws://127.0.0.1:1"), nil, time.Second, nil)
	if _, err := dc.Fetch(context.Background(), DocumentRequest{}); !errors.Is(err, ErrEmptyURI) {
		t.Errorf("err = %v, want ErrEmptyURI", err)
	}
}
