package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Conversation limits.
const (
	MaxMessages       = 50
	MaxMessageContent = 5000
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn of a caller-supplied conversation. The gateway keeps
// no conversation state; the whole history arrives on every request.
type ChatMessage struct {
	Role    Role   `json:"role"    example:"user"`
	Content string `json:"content" example:"Como posso dormir melhor?"`
}

var (
	ErrNoMessages      = errors.New("messages missing")
	ErrTooManyMessages = fmt.Errorf("more than %d messages", MaxMessages)
	ErrInvalidRole     = errors.New("invalid role")
	ErrEmptyContent    = errors.New("empty message content")
	ErrContentTooLong  = fmt.Errorf("message content longer than %d characters", MaxMessageContent)
)

// ValidateConversation checks the conversation invariants and returns the
// first violation, annotated with the offending message index.
func ValidateConversation(msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return ErrNoMessages
	}
	if len(msgs) > MaxMessages {
		return ErrTooManyMessages
	}
	for i, m := range msgs {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("messages[%d]: %w", i, ErrInvalidRole)
		}
		n := utf8.RuneCountInString(m.Content)
		if n == 0 {
			return fmt.Errorf("messages[%d]: %w", i, ErrEmptyContent)
		}
		if n > MaxMessageContent {
			return fmt.Errorf("messages[%d]: %w", i, ErrContentTooLong)
		}
	}
	return nil
}
