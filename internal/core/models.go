package core

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatTurn is one message of a conversation, in the shape the chat
// completion endpoint expects.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one the language model accepts.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Chunk is a window of normalized document text. Index is its position in
// the document's chunk sequence.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
