package handler

import (
	"net/http"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
	"github.com/rusel95/interexchangebot/internal/marketstate"
)

// StatusSource reports the market state summary.
type StatusSource interface {
	Status() marketstate.Status
}

// SubscriberCounter counts subscribers per mode.
type SubscriberCounter interface {
	Count() map[domain.Mode]int
}

// StatusHandler serves the bot status for the dashboard and command layer.
type StatusHandler struct {
	state     StatusSource
	subs      SubscriberCounter
	alerts    []string
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. alerts lists the configured alert
// channels.
func NewStatusHandler(state StatusSource, subs SubscriberCounter, alerts []string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{state: state, subs: subs, alerts: alerts, startedAt: startedAt}
}

type statusResponse struct {
	marketstate.Status
	Subscribers   map[string]int `json:"subscribers"`
	AlertChannels []string       `json:"alert_channels"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// GetStatus responds with the last cycle summary, per-exchange cache state and
// subscriber counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        h.state.Status(),
		Subscribers:   make(map[string]int, len(domain.Modes)),
		AlertChannels: h.alerts,
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if resp.AlertChannels == nil {
		resp.AlertChannels = []string{}
	}
	for _, m := range domain.Modes {
		resp.Subscribers[m.String()] = 0
	}
	if h.subs != nil {
		for m, n := range h.subs.Count() {
			resp.Subscribers[m.String()] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
