package core

import (
	"fmt"
	"strings"
)

const ragSystemInstruction = "You are a helpful assistant. Use the provided context to answer. " +
	"If the answer is not in the context, say you don't know."

// AssembleContext renders the ranked chunks as "Source N: text" entries
// separated by a blank line. N is the 1-based rank, not the chunk index.
func AssembleContext(scored []ScoredChunk) string {
	sources := make([]string, len(scored))
	for i, sc := range scored {
		sources[i] = fmt.Sprintf("Source %d: %s", i+1, sc.Chunk.Text)
	}
	return strings.Join(sources, "\n\n")
}

// ComposeMessages puts the instruction turn and the context turn ahead of
// the full conversation.
func ComposeMessages(scored []ScoredChunk, conversation []ChatTurn) []ChatTurn {
	messages := make([]ChatTurn, 0, len(conversation)+2)
	messages = append(messages,
		ChatTurn{Role: RoleSystem, Content: ragSystemInstruction},
		ChatTurn{Role: RoleSystem, Content: "Context:\n" + AssembleContext(scored)},
	)
	return append(messages, conversation...)
}
