// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lvshenfx/liaotian/internal/repository"
)

// HistoryLimit is the number of messages replayed to a newly connected
// client.
const HistoryLimit = 50

// broadcastTimeLayout matches the wall-clock format the room has always
// used for live messages; history entries carry the full ISO form.
const broadcastTimeLayout = "2006-01-02 15:04:05"

// Event is a frame on the live channel.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MessagePayload is a chat message as delivered to clients.
type MessagePayload struct {
	Name      string `json:"name"`
	Msg       string `json:"msg"`
	Timestamp string `json:"timestamp"`
}

// InboundChat is the client→server chat frame body.
type InboundChat struct {
	Msg string `json:"msg"`
}

// Service owns the room semantics: history replay and the
// persist-then-broadcast pipeline. The postMu mutex serializes the
// persist+publish critical section so broadcast order always matches
// commit order, even with concurrent senders.
type Service struct {
	repo   *repository.Repository
	hub    *Hub
	loc    *time.Location
	postMu sync.Mutex
}

// NewService creates the chat service. Timestamps are always rendered
// in a fixed civil timezone, independent of the server locale.
func NewService(repo *repository.Repository, hub *Hub) (*Service, error) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, hub: hub, loc: loc}, nil
}

// Hub returns the broadcast registry.
func (s *Service) Hub() *Hub {
	return s.hub
}

// History returns the most recent messages, oldest first, rendered for
// the wire. History is best effort: a storage failure yields an empty
// replay rather than a refused connection.
func (s *Service) History(ctx context.Context) []MessagePayload {
	msgs, err := s.repo.RecentMessages(ctx, HistoryLimit)
	if err != nil {
		slog.Error("loading chat history", "error", err)
		return []MessagePayload{}
	}

	history := make([]MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, MessagePayload{
			Name:      m.Username,
			Msg:       m.Body,
			Timestamp: m.Timestamp.In(s.loc).Format(time.RFC3339),
		})
	}
	return history
}

// Post handles one inbound chat message: resolve the author, persist,
// then broadcast to every open channel. Empty bodies and vanished
// authors are silently dropped, as is a message that fails to persist;
// nothing is ever broadcast before it is committed.
func (s *Service) Post(ctx context.Context, userID int64, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}

	s.postMu.Lock()
	defer s.postMu.Unlock()

	// Re-resolve the author rather than trusting session data; the
	// account may have been deleted while the channel was open.
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("resolving message author", "user_id", userID, "error", err)
		}
		return
	}

	msg, err := s.repo.CreateMessage(ctx, user.ID, body)
	if err != nil {
		slog.Error("persisting chat message", "user_id", userID, "error", err)
		return
	}

	payload, err := EncodeEvent("chat", MessagePayload{
		Name:      user.Username,
		Msg:       msg.Body,
		Timestamp: msg.Timestamp.In(s.loc).Format(broadcastTimeLayout),
	})
	if err != nil {
		slog.Error("encoding chat event", "error", err)
		return
	}
	s.hub.Broadcast(payload)
}

// EncodeEvent marshals a named event frame for the live channel.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: raw})
}
