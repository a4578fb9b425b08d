package deepgram

import (
	"context"
	"testing"

	"github.com/emberchat/ember-core/core/speechtotext"
)

func resultsMessage(transcript string, isFinal, speechFinal bool) []byte {
	msg := `{"type":"Results","is_final":` + boolJSON(isFinal) +
		`,"speech_final":` + boolJSON(speechFinal) +
		`,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`
	return []byte(msg)
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestProcessMessageAccumulatesFinalSegments(t *testing.T) {
	client := &TranscriptionClient{apiKey: "test"}

	transcripts := []string{}
	partials := []string{}
	options := speechtotext.TranscriptionOptions{
		TranscriptionCallback:        func(transcript string) { transcripts = append(transcripts, transcript) },
		PartialTranscriptionCallback: func(transcript string) { partials = append(partials, transcript) },
	}

	client.processMessage(context.Background(), resultsMessage("hello", true, false), options)
	client.processMessage(context.Background(), resultsMessage("world", true, true), options)

	if len(partials) != 2 || partials[0] != "hello" || partials[1] != "world" {
		t.Fatalf("expected per-segment partials [hello world], got %v", partials)
	}
	if len(transcripts) != 1 || transcripts[0] != "hello world" {
		t.Fatalf("expected one accumulated transcript %q, got %v", "hello world", transcripts)
	}
	if client.accumulatedTranscript != "" {
		t.Fatalf("expected accumulator reset after speech end, got %q", client.accumulatedTranscript)
	}
}

func TestProcessMessageInterimIncludesAccumulated(t *testing.T) {
	client := &TranscriptionClient{apiKey: "test"}

	interims := []string{}
	options := speechtotext.TranscriptionOptions{
		TranscriptionCallback:        func(string) {},
		InterimTranscriptionCallback: func(transcript string) { interims = append(interims, transcript) },
	}

	client.processMessage(context.Background(), resultsMessage("tell me", true, false), options)
	client.processMessage(context.Background(), resultsMessage("a story", false, false), options)

	if len(interims) != 1 || interims[0] != "tell me a story" {
		t.Fatalf("expected interim with accumulated prefix, got %v", interims)
	}
}

func TestProcessMessageSpeechLifecycleCallbacks(t *testing.T) {
	client := &TranscriptionClient{apiKey: "test"}

	started := 0
	ended := 0
	options := speechtotext.TranscriptionOptions{
		SpeechStartedCallback: func() { started++ },
		SpeechEndedCallback:   func() { ended++ },
	}

	client.processMessage(context.Background(), []byte(`{"type":"SpeechStarted"}`), options)
	if started != 1 {
		t.Fatalf("expected speech-started callback once, got %d", started)
	}
	if !client.unendedSegment {
		t.Fatal("expected an open speech segment after SpeechStarted")
	}

	client.processMessage(context.Background(), []byte(`{"type":"UtteranceEnd"}`), options)
	if ended != 1 {
		t.Fatalf("expected speech-ended callback once, got %d", ended)
	}
	if client.unendedSegment {
		t.Fatal("expected segment closed after UtteranceEnd")
	}

	// A second utterance end without new speech is ignored.
	client.processMessage(context.Background(), []byte(`{"type":"UtteranceEnd"}`), options)
	if ended != 1 {
		t.Fatalf("expected no duplicate speech-ended callback, got %d", ended)
	}
}

func TestNewTranscriptionClientRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := NewTranscriptionClient(); err == nil {
		t.Fatal("expected an error without an api key")
	}

	client, err := NewTranscriptionClient(WithAPIKey("key"))
	if err != nil {
		t.Fatalf("expected client with explicit key, got %v", err)
	}
	if client.apiKey != "key" {
		t.Fatalf("expected explicit key kept, got %q", client.apiKey)
	}
}
