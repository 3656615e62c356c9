package store

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/localchat/ragchat/internal/core"
)

const DefaultTitle = "New chat"

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidMessage   = errors.New("role and content are required")
)

// SessionStore persists chat sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (*Session, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	GetMessages(ctx context.Context, sessionID int64) ([]Message, error)
	AppendMessage(ctx context.Context, sessionID int64, role, content string) (*Message, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	Close() error
}

var sessionIDPattern = regexp.MustCompile(`^\d+$`)

// ParseSessionID accepts decimal digits only.
func ParseSessionID(raw string) (int64, error) {
	if !sessionIDPattern.MatchString(raw) {
		return 0, ErrInvalidSessionID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidSessionID
	}
	return id, nil
}

func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// NormalizeMessage trims content and checks the role.
func NormalizeMessage(role, content string) (string, error) {
	content = strings.TrimSpace(content)
	if !core.ValidRole(role) || content == "" {
		return "", ErrInvalidMessage
	}
	return content, nil
}

// Open picks the backend from the URL scheme: postgres:// and postgresql://
// go to Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, databaseURL string) (SessionStore, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := NewSQLiteStore(databaseURL)
	if err != nil {
		return nil, err
	}
	return lite, nil
}
