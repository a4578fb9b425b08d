package groq

import (
	"github.com/emberchat/ember-core/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions string, history []llms.Exchange) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}
	for _, exchange := range history {
		if exchange.Content == "" {
			continue
		}

		role := messageRoleUser
		if exchange.Role == llms.ExchangeRoleAssistant {
			role = messageRoleAssistant
		}
		messages = append(messages, message{
			Role:    role,
			Content: exchange.Content,
		})
	}
	return messages
}
