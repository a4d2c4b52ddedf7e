package server

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"

	"github.com/onnwee/pomodorotteux/presence"
)

// HandleHealthz reports 200 while the chat transport is alive.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.src == nil || !h.src.Alive() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type scoreEntry struct {
	Pseudo    string `json:"pseudo"`
	Connected bool   `json:"connected"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
}

type statusResponse struct {
	SessionID  string       `json:"session_id"`
	Channel    string       `json:"channel"`
	Alive      bool         `json:"alive"`
	Connected  int          `json:"connected"`
	Scoreboard []scoreEntry `json:"scoreboard"`
}

// HandleStatus returns the session state and the ranked scoreboard as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.src == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}

	snap := h.src.Snapshot()
	resp := statusResponse{
		SessionID: h.src.ID(),
		Channel:   h.src.Channel(),
		Alive:     h.src.Alive(),
		Connected: snap.ConnectedCount(),
		Scoreboard: lo.Map(snap.Ranked(), func(p presence.Participant, _ int) scoreEntry {
			return scoreEntry{Pseudo: p.Pseudo, Connected: p.Connected, Total: p.Total(), Pending: p.PendingCount}
		}),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
