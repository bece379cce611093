// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/lvshenfx/liaotian/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessage(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")

	msg, err := repo.CreateMessage(ctx, user.ID, "hello")

	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, user.ID, msg.UserID)
	assert.Equal(t, "hello", msg.Body)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestRecentMessages_OldestFirst(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	for i := 1; i <= 3; i++ {
		testutil.NewTestMessage(t, repo, user.ID, fmt.Sprintf("message %d", i))
	}

	msgs, err := repo.RecentMessages(ctx, 50)

	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "message 1", msgs[0].Body)
	assert.Equal(t, "message 3", msgs[2].Body)
	assert.Equal(t, "alice", msgs[0].Username)
}

func TestRecentMessages_LimitKeepsNewest(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	for i := 1; i <= 60; i++ {
		testutil.NewTestMessage(t, repo, user.ID, fmt.Sprintf("message %d", i))
	}

	msgs, err := repo.RecentMessages(ctx, 50)

	require.NoError(t, err)
	require.Len(t, msgs, 50)
	// The oldest 10 messages fall off; replay starts at message 11.
	assert.Equal(t, "message 11", msgs[0].Body)
	assert.Equal(t, "message 60", msgs[49].Body)
}

func TestRecentMessages_Empty(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	msgs, err := repo.RecentMessages(ctx, 50)

	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCountMessages(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	testutil.NewTestMessage(t, repo, user.ID, "one")
	testutil.NewTestMessage(t, repo, user.ID, "two")

	count, err := repo.CountMessages(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
