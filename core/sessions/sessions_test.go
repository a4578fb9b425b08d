package sessions

import (
	"reflect"
	"testing"
)

func TestToggleReactionTwiceRestoresOriginalSet(t *testing.T) {
	message := NewMessage("nice one", false)
	message.Reactions = []string{"👍", "🎉"}
	original := append([]string(nil), message.Reactions...)

	message.ToggleReaction("❤️")
	if !reflect.DeepEqual(message.Reactions, []string{"👍", "🎉", "❤️"}) {
		t.Fatalf("expected reaction appended, got %v", message.Reactions)
	}

	message.ToggleReaction("❤️")
	if !reflect.DeepEqual(message.Reactions, original) {
		t.Fatalf("expected original reaction set restored, got %v", message.Reactions)
	}
}

func TestToggleReactionPreservesOrderOnRemoval(t *testing.T) {
	message := NewMessage("ok", false)
	message.Reactions = []string{"a", "b", "c"}

	message.ToggleReaction("b")
	if !reflect.DeepEqual(message.Reactions, []string{"a", "c"}) {
		t.Fatalf("expected order preserved after removal, got %v", message.Reactions)
	}
}

func TestKeywordTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"what is the weather like in berlin today", "Weather Like Berlin Today"},
		{"Tell me about quantum computing", "Quantum Computing"},
		{"hi", DefaultTitle},
		{"", DefaultTitle},
		{"HELP me plan a trip to norway, please!", "Help Plan Trip Norway"},
	}

	for _, test := range tests {
		if got := KeywordTitle(test.input); got != test.want {
			t.Fatalf("KeywordTitle(%q): expected %q, got %q", test.input, test.want, got)
		}
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := TruncateTitle("short", 50); got != "short" {
		t.Fatalf("expected short title untouched, got %q", got)
	}

	long := "a title that keeps going well past the fifty character limit"
	got := TruncateTitle(long, 50)
	if len([]rune(got)) != 50 {
		t.Fatalf("expected 50 runes, got %d (%q)", len([]rune(got)), got)
	}
	if got[len(got)-len("…"):] != "…" {
		t.Fatalf("expected ellipsis marker, got %q", got)
	}
}

func TestFirstUserMessageAndCount(t *testing.T) {
	session := NewSession("companion")
	session.Messages = append(session.Messages,
		NewMessage("welcome", false),
		NewMessage("hello", true),
		NewMessage("hi there", false),
		NewMessage("how are you", true),
	)

	first := session.FirstUserMessage()
	if first == nil || first.Content != "hello" {
		t.Fatalf("expected first user message %q, got %+v", "hello", first)
	}
	if count := session.UserMessageCount(); count != 2 {
		t.Fatalf("expected 2 user messages, got %d", count)
	}
}
