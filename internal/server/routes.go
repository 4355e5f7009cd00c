package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rickgao/mcpbus/internal/envelope"
	"github.com/rickgao/mcpbus/internal/market"
)

// Channel families and actions understood by the server.
const (
	ChannelMarket   = "market"
	ChannelDocument = "document"
	ChannelDoc      = "doc"

	ActionHistory = "history"
	ActionFetch   = "fetch"
)

const msgInvalidPayload = "invalid payload"

// channelSeparators may follow a family name in a sub-channel.
const channelSeparators = ".:/"

var (
	errMarketDisabled   = errors.New("market connector not configured")
	errDocumentDisabled = errors.New("document connector not configured")
)

type handlerFunc func(ctx context.Context, msg envelope.Body, binary bool) (any, error)

type route struct {
	prefix string
	handle handlerFunc
}

// matchChannel reports whether channel is family itself or one of its
// separator-delimited sub-channels.
func matchChannel(channel, family string) bool {
	if channel == family {
		return true
	}
	if len(channel) <= len(family) || !strings.HasPrefix(channel, family) {
		return false
	}
	return strings.IndexByte(channelSeparators, channel[len(family)]) >= 0
}

func (s *Server) lookup(channel string) (route, bool) {
	for _, r := range s.routes {
		if r.prefix == channel {
			return r, true
		}
	}
	for _, r := range s.routes {
		if matchChannel(channel, r.prefix) {
			return r, true
		}
	}
	return route{}, false
}

// dispatch routes a reply envelope and always returns a response body.
func (s *Server) dispatch(ctx context.Context, env envelope.Envelope, binary bool) (resp any) {
	r, ok := s.lookup(env.Channel)
	if !ok {
		return envelope.ErrorBody("Unknown channel: " + env.Channel)
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("handler panic",
				"channel", env.Channel,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			resp = envelope.ErrorBody(fmt.Sprintf("internal error: %v", p))
		}
	}()

	result, err := r.handle(ctx, env.Fields(), binary)
	if err != nil {
		s.logger.Warn("handler failed", "channel", env.Channel, "error", err)
		return envelope.ErrorBody(err.Error())
	}
	return result
}

type historyParams struct {
	Symbol   string `json:"symbol"`
	Range    string `json:"range"`
	Interval string `json:"interval"`
}

func (s *Server) handleMarket(ctx context.Context, msg envelope.Body, _ bool) (any, error) {
	action := msg.String("action")
	if action != ActionHistory {
		return envelope.ErrorBody("Unsupported market action: " + action), nil
	}
	if s.market == nil {
		return nil, errMarketDisabled
	}

	params := historyParams{
		Symbol:   market.DefaultSymbol,
		Range:    market.DefaultRange,
		Interval: market.DefaultInterval,
	}
	if raw, ok := msg["params"].(map[string]any); ok {
		if err := envelope.Body(raw).Decode(&params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}

	return s.market.History(ctx, params.Symbol, params.Range, params.Interval)
}

func (s *Server) handleDocument(ctx context.Context, msg envelope.Body, binary bool) (any, error) {
	action := msg.String("action")
	if action != ActionFetch {
		return envelope.ErrorBody("Unsupported document action: " + action), nil
	}
	if s.documents == nil {
		return nil, errDocumentDisabled
	}

	res, err := s.documents.Fetch(ctx, msg.String("uri"), msg.String("media_type"))
	if err != nil {
		return nil, err
	}
	if !binary {
		return res, nil
	}

	content, err := res.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return envelope.Body{
		"uri":        res.URI,
		"media_type": res.MediaType,
		"content":    content,
	}, nil
}
