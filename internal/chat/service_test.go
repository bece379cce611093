// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lvshenfx/liaotian/internal/chat"
	"github.com/lvshenfx/liaotian/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvent(t *testing.T, payload []byte) (string, chat.MessagePayload) {
	t.Helper()
	var ev chat.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	var msg chat.MessagePayload
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	return ev.Event, msg
}

func TestPost_PersistsAndBroadcasts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	ch := svc.Hub().Register("session1")
	defer svc.Hub().Unregister(ch)

	svc.Post(ctx, user.ID, "hello room")

	select {
	case payload := <-ch:
		event, msg := decodeEvent(t, payload)
		assert.Equal(t, "chat", event)
		assert.Equal(t, "alice", msg.Name)
		assert.Equal(t, "hello room", msg.Msg)
		_, err := time.Parse("2006-01-02 15:04:05", msg.Timestamp)
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast")
	}

	count, err := repo.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPost_SenderReceivesOwnBroadcast(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	sender := svc.Hub().Register("sender")
	other := svc.Hub().Register("other")
	defer svc.Hub().Unregister(sender)
	defer svc.Hub().Unregister(other)

	svc.Post(ctx, user.ID, "hi")

	for _, ch := range []chan []byte{sender, other} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("every open channel gets the broadcast, sender included")
		}
	}
}

func TestPost_EmptyBodyIgnored(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	ch := svc.Hub().Register("session1")
	defer svc.Hub().Unregister(ch)

	svc.Post(ctx, user.ID, "")
	svc.Post(ctx, user.ID, "   \t\n")

	select {
	case <-ch:
		t.Fatal("blank bodies must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	count, err := repo.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPost_VanishedAuthorDropped(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	ch := svc.Hub().Register("session1")
	defer svc.Hub().Unregister(ch)

	svc.Post(ctx, 999, "ghost message")

	select {
	case <-ch:
		t.Fatal("messages from deleted accounts must be dropped")
	case <-time.After(50 * time.Millisecond):
	}

	count, err := repo.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistory_OldestFirstCappedAtLimit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	for i := 1; i <= chat.HistoryLimit+5; i++ {
		testutil.NewTestMessage(t, repo, user.ID, fmt.Sprintf("m%d", i))
	}

	history := svc.History(ctx)

	require.Len(t, history, chat.HistoryLimit)
	assert.Equal(t, "m6", history[0].Msg)
	assert.Equal(t, fmt.Sprintf("m%d", chat.HistoryLimit+5), history[len(history)-1].Msg)

	// Timestamps are ISO-8601 in a fixed civil timezone and ascending.
	prev := ""
	for _, h := range history {
		ts, err := time.Parse(time.RFC3339, h.Timestamp)
		require.NoError(t, err)
		if prev != "" {
			prevTS, _ := time.Parse(time.RFC3339, prev)
			assert.False(t, ts.Before(prevTS))
		}
		prev = h.Timestamp
	}
}

func TestHistory_StorageFailure(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)

	// A dead store degrades to an empty replay, never a failure.
	require.NoError(t, db.Close())

	history := svc.History(context.Background())

	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestHistory_EmptyRoom(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)

	history := svc.History(context.Background())

	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestPost_ConcurrentSendersMatchCommitOrder(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc, err := chat.NewService(repo, chat.NewHub())
	require.NoError(t, err)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice", "alice@example.com")
	ch := svc.Hub().Register("observer")
	defer svc.Hub().Unregister(ch)

	const n = 10
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Post(ctx, user.ID, fmt.Sprintf("msg %d", i))
		}()
	}
	wg.Wait()

	// Drain the broadcasts in arrival order.
	var broadcastOrder []string
	for range n {
		select {
		case payload := <-ch:
			_, msg := decodeEvent(t, payload)
			broadcastOrder = append(broadcastOrder, msg.Msg)
		case <-time.After(time.Second):
			t.Fatal("missing broadcast")
		}
	}

	// Broadcast order must match persisted order.
	history := svc.History(ctx)
	require.Len(t, history, n)
	for i, h := range history {
		assert.Equal(t, h.Msg, broadcastOrder[i])
	}
}

func TestEncodeEvent(t *testing.T) {
	payload, err := chat.EncodeEvent("chat", chat.MessagePayload{Name: "alice", Msg: "hi", Timestamp: "2026-01-01 12:00:00"})

	require.NoError(t, err)
	event, msg := decodeEvent(t, payload)
	assert.Equal(t, "chat", event)
	assert.Equal(t, "alice", msg.Name)
}
