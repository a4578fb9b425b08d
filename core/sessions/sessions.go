// Package sessions holds the durable conversation model: messages, sessions,
// settings, and the storage contracts around them.
package sessions

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Message is a single chat message. Messages are immutable after creation
// except for reaction toggles.
type Message struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	IsUser    bool             `json:"is_user"`
	Timestamp time.Time        `json:"timestamp"`
	Reactions []string         `json:"reactions,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries optional generation metadata attached on turn
// completion.
type MessageMetadata struct {
	// ProcessingTime is the wall-clock generation time in seconds.
	ProcessingTime *float64 `json:"processing_time,omitempty"`
	TokenCount     *int     `json:"token_count,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

func NewMessage(content string, isUser bool) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: time.Now(),
	}
}

// ToggleReaction adds reaction if absent and removes it if present, keeping
// the remaining reactions in their original order. Toggling twice restores
// the original set.
func (m *Message) ToggleReaction(reaction string) {
	for i, existing := range m.Reactions {
		if existing == reaction {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return
		}
	}
	m.Reactions = append(m.Reactions, reaction)
}

// Session is one saved conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	// LastModified changes only on a completed store write, never on
	// in-memory mutation alone.
	LastModified time.Time `json:"last_modified"`
	Messages     []Message `json:"messages"`
	Persona      string    `json:"persona"`

	// TitleGenerated marks that the fallback title has been replaced by an
	// AI-generated one; title generation never re-runs once set.
	TitleGenerated bool `json:"title_generated,omitempty"`
}

// DefaultTitle is the title of a session before its first user message.
const DefaultTitle = "New Conversation"

func NewSession(persona string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		Persona:   persona,
	}
}

// FirstUserMessage returns the earliest user-authored message, if any.
func (s *Session) FirstUserMessage() *Message {
	for i := range s.Messages {
		if s.Messages[i].IsUser {
			return &s.Messages[i]
		}
	}
	return nil
}

// MessageByID returns the message with the given id, if present.
func (s *Session) MessageByID(id string) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// UserMessageCount reports how many messages were authored by the user.
func (s *Session) UserMessageCount() int {
	count := 0
	for i := range s.Messages {
		if s.Messages[i].IsUser {
			count++
		}
	}
	return count
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"i": {}, "you": {}, "me": {}, "my": {}, "your": {}, "we": {}, "it": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "and": {},
	"or": {}, "but": {}, "what": {}, "how": {}, "why": {}, "when": {},
	"where": {}, "can": {}, "could": {}, "would": {}, "should": {}, "do": {},
	"does": {}, "did": {}, "please": {}, "hello": {}, "hi": {}, "hey": {},
	"about": {}, "tell": {}, "that": {}, "this": {},
}

const keywordTitleLimit = 4

// KeywordTitle derives a short title from the first significant words of
// input: stop words dropped, at most four words kept, title-cased. Used both
// as the initial fallback title and as the recovery path when AI title
// generation fails.
func KeywordTitle(input string) string {
	words := strings.Fields(input)
	kept := []string{}
	for _, word := range words {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if cleaned == "" {
			continue
		}
		if _, skip := stopWords[strings.ToLower(cleaned)]; skip {
			continue
		}

		kept = append(kept, titleCase(cleaned))
		if len(kept) == keywordTitleLimit {
			break
		}
	}

	if len(kept) == 0 {
		return DefaultTitle
	}
	return strings.Join(kept, " ")
}

func titleCase(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// TruncateTitle caps title at limit runes, marking the cut with an ellipsis.
func TruncateTitle(title string, limit int) string {
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit-1]) + "…"
}
