package services

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"chat-backend/internal/models"
)

// AssemblePrompt renders every prior turn as "role: content", one per line
// and in transcript order, followed by the new user message. The whole
// history is always included.
func AssemblePrompt(transcript []models.Turn, newMessage string) string {
	var b strings.Builder
	for _, turn := range transcript {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString(string(models.RoleUser))
	b.WriteString(": ")
	b.WriteString(newMessage)
	return b.String()
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountPromptTokens estimates the size of a prompt in cl100k_base tokens.
// Falls back to a whitespace word count if the codec is unavailable.
func CountPromptTokens(prompt string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return len(strings.Fields(prompt))
	}
	ids, _, err := codec.Encode(prompt)
	if err != nil {
		return len(strings.Fields(prompt))
	}
	return len(ids)
}
