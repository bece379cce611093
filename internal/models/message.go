// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Message is a single chat message. Messages are immutable once created
// and ordered by insertion.
type Message struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Body      string    `db:"body" json:"body"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// MessageWithAuthor is a message joined with its author's username,
// used for history replay and broadcasts.
type MessageWithAuthor struct {
	Message
	Username string `db:"username" json:"username"`
}
