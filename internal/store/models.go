package store

import "time"

type Session struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionSummary is a session with the time of its latest message, or its
// creation time when it has none.
type SessionSummary struct {
	Session
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
