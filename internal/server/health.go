package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/mcpbus/internal/version"
)

// sourcer is implemented by market connectors that report their provider.
type sourcer interface {
	Source() string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string                 `json:"status"`
		Version    version.Info           `json:"version"`
		Uptime     string                 `json:"uptime"`
		Components map[string]interface{} `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Uptime:     time.Since(s.startedAt).Truncate(time.Second).String(),
		Components: make(map[string]interface{}),
	}

	switch m := s.market.(type) {
	case nil:
		health.Components["market"] = "disabled"
		health.Status = "degraded"
	case sourcer:
		health.Components["market"] = m.Source()
	default:
		health.Components["market"] = "enabled"
	}

	if s.documents == nil {
		health.Components["document"] = "disabled"
		health.Status = "degraded"
	} else {
		health.Components["document"] = "enabled"
	}

	stats := s.hub.Stats()
	health.Components["bus"] = map[string]interface{}{
		"connections": s.Connections(),
		"channels":    stats.Channels,
		"subscribers": stats.Subscribers,
		"published":   stats.Published,
		"dropped":     stats.Dropped,
	}

	if s.ctx.Err() != nil {
		health.Status = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}
