// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lvshenfx/liaotian/internal/chat"
	"github.com/lvshenfx/liaotian/internal/services/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// maxMessageSize bounds inbound frames; chat bodies are short.
	maxMessageSize = 4096
)

// ChatHandler upgrades authenticated clients to the live channel.
type ChatHandler struct {
	svc      *chat.Service
	sessions *session.Manager
	upgrader websocket.Upgrader
}

// NewChat creates a new ChatHandler.
func NewChat(svc *chat.Service, sessions *session.Manager) *ChatHandler {
	return &ChatHandler{
		svc:      svc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve handles a live channel connection. The session check happens
// before the upgrade: without a valid session the handshake is refused
// outright, and that is the only authorization gate for the channel.
func (h *ChatHandler) Serve(c echo.Context) error {
	sess := h.sessions.Read(c.Request())
	if sess == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no valid session")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()

	// History replay goes to this client only, before it joins the
	// broadcast set, so it always precedes any live message.
	history, err := chat.EncodeEvent("history", h.svc.History(ctx))
	if err != nil {
		slog.Error("encoding history", "error", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, history); err != nil {
		return nil
	}

	ch := h.svc.Hub().Register(sess.ID)
	defer h.svc.Hub().Unregister(ch)

	// Writer pump: the sole writer after the history frame.
	done := make(chan struct{})
	go h.writePump(conn, ch, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live channel closed", "session_id", sess.ID, "error", err)
			}
			break
		}

		var ev chat.Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Event != "chat" {
			continue
		}
		var inbound chat.InboundChat
		if err := json.Unmarshal(ev.Data, &inbound); err != nil {
			continue
		}

		h.svc.Post(ctx, sess.UserID, inbound.Msg)
	}

	close(done)
	return nil
}

// writePump forwards broadcasts to the client and keeps the connection
// alive through proxies with periodic pings.
func (h *ChatHandler) writePump(conn *websocket.Conn, ch chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
