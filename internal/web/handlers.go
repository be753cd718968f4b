package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rowView is a result row as rendered to clients.
type rowView struct {
	domain.ResultRow
	PriceDisplay string `json:"price_display"`
}

type snapshotView struct {
	Overbought []rowView  `json:"overbought"`
	Oversold   []rowView  `json:"oversold"`
	LastUpdate *time.Time `json:"last_update"`
	Version    uint64     `json:"version"`
	Ready      bool       `json:"ready"`
}

func priceDisplay(price float64) string {
	return fmt.Sprintf("$%.4f", price)
}

func viewRows(rows []domain.ResultRow) []rowView {
	out := make([]rowView, len(rows))
	for i, r := range rows {
		out[i] = rowView{ResultRow: r, PriceDisplay: priceDisplay(r.Price)}
	}
	return out
}

func viewSnapshot(snap domain.Snapshot) snapshotView {
	return snapshotView{
		Overbought: viewRows(snap.Overbought),
		Oversold:   viewRows(snap.Oversold),
		LastUpdate: snap.LastUpdate,
		Version:    snap.Version,
		Ready:      snap.Ready(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode response", map[string]interface{}{"path": r.URL.Path})
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, viewSnapshot(s.snapshots.GetSnapshot()))
}

// handleLegacyRSIData serves the overbought list keyed by the primary interval.
func (s *Server) handleLegacyRSIData(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.GetSnapshot()
	s.writeJSON(w, r, http.StatusOK, map[string][]rowView{
		domain.Primary.Interval: viewRows(snap.Overbought),
	})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.stream.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := w.Write(ev.SSE()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	sub := s.stream.Subscribe()
	defer sub.Close()

	// The read loop only exists to process pongs and notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "Archive disabled", http.StatusServiceUnavailable)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	cycles, err := s.archive.ListCycles(r.Context(), limit)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to list scan cycles")
		http.Error(w, "Failed to list scan cycles", http.StatusInternalServerError)
		return
	}
	if cycles == nil {
		cycles = []domain.CycleSummary{}
	}
	s.writeJSON(w, r, http.StatusOK, cycles)
}

func (s *Server) handleHistoryCycle(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "Archive disabled", http.StatusServiceUnavailable)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid cycle id", http.StatusBadRequest)
		return
	}

	snap, err := s.archive.CycleSnapshot(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		http.Error(w, "Scan cycle not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to load scan cycle", map[string]interface{}{"cycleID": id})
		http.Error(w, "Failed to load scan cycle", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, http.StatusOK, viewSnapshot(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.GetSnapshot()
	body := map[string]interface{}{
		"status":  "ok",
		"ready":   snap.Ready(),
		"version": snap.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if reporter, ok := s.snapshots.(CycleReporter); ok {
		if last, ok := reporter.LastCycle(); ok {
			body["last_cycle"] = last
		}
	}
	s.writeJSON(w, r, http.StatusOK, body)
}
