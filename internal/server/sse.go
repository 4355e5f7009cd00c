package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tmaxmax/go-sse"
)

// handleSSE relays one hub channel as Server-Sent Events. The first event has
// type "subscribed" and carries the channel name; each publish follows as a
// "message" event with the JSON body.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "channel query parameter is required", http.StatusBadRequest)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Error("failed to upgrade sse session", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	sub := s.hub.Subscribe(channel)
	defer s.hub.Unsubscribe(sub)

	s.logger.Debug("sse client subscribed", "sse_id", id, "channel", channel)

	ready := &sse.Message{Type: sse.Type("subscribed")}
	ready.AppendData(channel)
	if err := send(sess, ready); err != nil {
		s.logger.Debug("sse write failed", "sse_id", id, "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			event := &sse.Message{Type: sse.Type("message")}
			event.AppendData(string(streamFrame(msg.Payload, websocket.TextMessage)))
			if err := send(sess, event); err != nil {
				s.logger.Debug("sse write failed", "sse_id", id, "error", err)
				return
			}
		}
	}
}

func send(sess *sse.Session, msg *sse.Message) error {
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
