package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "  Planning trip  ")
	require.NoError(t, err)
	assert.Equal(t, "Planning trip", session.Title)
	assert.NotZero(t, session.ID)
	assert.WithinDuration(t, time.Now(), session.CreatedAt, 5*time.Second)

	untitled, err := s.CreateSession(ctx, "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, untitled.Title)
	assert.NotEqual(t, session.ID, untitled.ID)
}

func TestSQLiteStore_MessagesInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "chat")
	require.NoError(t, err)

	contents := []string{"first", "second", "third", "fourth"}
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		_, err := s.AppendMessage(ctx, session.ID, role, "  "+c+"\n")
		require.NoError(t, err)
	}

	messages, err := s.GetMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content)
		assert.Equal(t, session.ID, m.SessionID)
	}
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestSQLiteStore_AppendValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "chat")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, session.ID, "user", "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = s.AppendMessage(ctx, session.ID, "robot", "hello")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = s.AppendMessage(ctx, session.ID+100, "user", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSQLiteStore_ListSessionsByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older, err := s.CreateSession(ctx, "older")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := s.CreateSession(ctx, "newer")
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, sessions[0].CreatedAt, sessions[0].LastMessageAt)

	time.Sleep(5 * time.Millisecond)
	msg, err := s.AppendMessage(ctx, older.ID, "user", "bump")
	require.NoError(t, err)

	sessions, err = s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, older.ID, sessions[0].ID)
	assert.Equal(t, msg.CreatedAt, sessions[0].LastMessageAt)
	assert.Equal(t, newer.ID, sessions[1].ID)
}

func TestSQLiteStore_DeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "doomed")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, session.ID, "user", "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, session.ID))

	messages, err := s.GetMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.NoError(t, s.DeleteSession(ctx, session.ID))
}

func TestParseSessionID(t *testing.T) {
	id, err := ParseSessionID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "-1", "4 2", "1.5", "99999999999999999999"} {
		_, err := ParseSessionID(raw)
		assert.ErrorIs(t, err, ErrInvalidSessionID, raw)
	}
}

func TestOpen_SelectsSQLiteForPaths(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}
