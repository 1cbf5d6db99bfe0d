package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/elonfeng/mememarket/pkg/source"
	"github.com/gorilla/websocket"
)

const (
	liveDefaultLimit = 5
	liveWriteWait    = 10 * time.Second
	livePongWait     = 60 * time.Second
	livePingPeriod   = livePongWait * 9 / 10
)

// livePayload is one message of the live predictions stream.
type livePayload struct {
	Type        string        `json:"type"`
	Outcome     string        `json:"outcome"`
	Count       int           `json:"count"`
	Predictions []source.Post `json:"predictions"`
	Timestamp   string        `json:"timestamp"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowAll := slices.Contains(s.opts.CORSOrigins, "*")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || slices.Contains(s.opts.CORSOrigins, origin) {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// handleLive streams the top predictions every LiveInterval until the client
// goes away or the server shuts down.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", liveDefaultLimit, maxLimit)
	if !ok {
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("remote", clientIP(r))
	log.Info("live stream opened", "limit", limit)

	// Reader: only control frames are expected. It ends when the peer closes.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := time.NewTicker(s.opts.LiveInterval)
	ping := time.NewTicker(livePingPeriod)
	defer push.Stop()
	defer ping.Stop()

	send := func() bool {
		res := s.deps.Predictions.Top(s.bgCtx, limit)
		payload := livePayload{
			Type:        "predictions",
			Outcome:     res.Outcome.String(),
			Count:       res.Count(),
			Predictions: res.Posts,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(payload); err != nil {
			log.Debug("live write failed", "error", err)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			log.Info("live stream closed")
			return
		case <-s.bgCtx.Done():
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-push.C:
			if !send() {
				return
			}
		}
	}
}
