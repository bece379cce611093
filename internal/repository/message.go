// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/lvshenfx/liaotian/internal/models"
)

// CreateMessage inserts a new message with a server-assigned timestamp
// and returns the stored row.
func (r *Repository) CreateMessage(ctx context.Context, userID int64, body string) (*models.Message, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, body, timestamp) VALUES (?, ?, ?)`,
		userID, body, now)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Message{
		ID:        id,
		UserID:    userID,
		Body:      body,
		Timestamp: now,
	}, nil
}

// RecentMessages returns the most recent limit messages joined with their
// author's username, ordered oldest first.
func (r *Repository) RecentMessages(ctx context.Context, limit int) ([]models.MessageWithAuthor, error) {
	var msgs []models.MessageWithAuthor
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.user_id, m.body, m.timestamp, u.username
		 FROM messages m
		 JOIN users u ON u.id = m.user_id
		 ORDER BY m.timestamp DESC, m.id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	// The query returns newest first; reverse so the oldest message leads.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountMessages returns the total number of stored messages.
func (r *Repository) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM messages`); err != nil {
		return 0, err
	}
	return count, nil
}
