package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
)

const (
	defaultLogLines = 50
	streamQueue     = 256
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ViewLogs returns the tail of a service's output buffer.
func ViewLogs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines, ok := queryInt(r, "lines", defaultLogLines)
		if !ok {
			writeError(w, http.StatusBadRequest, "lines must be an integer")
			return
		}

		snap, err := d.Controller.ViewLogs(chi.URLParam(r, "name"), lines)
		if err != nil {
			writeFailure(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// StreamLogs upgrades to a websocket, sends the last ?lines= lines and then
// every new line as one text message. Lines produced faster than the client
// reads are dropped.
func StreamLogs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		backlog, ok := queryInt(r, "lines", defaultLogLines)
		if !ok {
			writeError(w, http.StatusBadRequest, "lines must be an integer")
			return
		}

		lines, live, cancel, err := d.Controller.FollowLogs(name, backlog, streamQueue)
		if err != nil {
			writeFailure(w, d.Logger, err)
			return
		}
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			d.Logger.Debug("log stream upgrade failed", logger.String("service", name), logger.Error(err))
			return
		}
		defer func() { _ = conn.Close() }()

		log := d.Logger.With(logger.String("service", name))
		log.Debug("log stream opened")
		defer log.Debug("log stream closed")

		// The client never sends data; reading only surfaces close frames
		// and pong replies.
		closed := make(chan struct{})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		send := func(line string) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteMessage(websocket.TextMessage, []byte(line))
		}

		for _, line := range lines {
			if err := send(line); err != nil {
				return
			}
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case line, ok := <-live:
				if !ok {
					return
				}
				if err := send(line); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}
