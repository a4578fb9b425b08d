package orchestration

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberchat/ember-core/internal/utils"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/sessions"
)

type backendStub struct {
	mu           sync.Mutex
	respondCalls int
	analyzeCalls int

	respondFunc func(call int, prompt string) (*llms.Response, error)
	analyzeFunc func(ctx context.Context, call int, prompt string) (*llms.Analysis, error)
}

func (b *backendStub) Respond(_ context.Context, prompt string, _ ...llms.PromptOption) (*llms.Response, error) {
	b.mu.Lock()
	b.respondCalls++
	call := b.respondCalls
	b.mu.Unlock()

	if b.respondFunc != nil {
		return b.respondFunc(call, prompt)
	}
	return &llms.Response{Content: "ok"}, nil
}

func (b *backendStub) RespondWithStream(context.Context, string, ...llms.PromptOption) llms.Stream {
	return emptyStream{}
}

func (b *backendStub) Analyze(ctx context.Context, prompt string, _ ...llms.PromptOption) (*llms.Analysis, error) {
	b.mu.Lock()
	b.analyzeCalls++
	call := b.analyzeCalls
	b.mu.Unlock()

	if b.analyzeFunc != nil {
		return b.analyzeFunc(ctx, call, prompt)
	}
	return &llms.Analysis{Reply: "untrusted title", Confidence: 0.1}, nil
}

type emptyStream struct{}

func (emptyStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(func(llms.StreamChunk, error) bool) {}
}

type countingStore struct {
	*sessions.MemoryStore

	mu    sync.Mutex
	saves int
	saved chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: sessions.NewMemoryStore(),
		saved:       make(chan struct{}, 16),
	}
}

func (s *countingStore) SaveSession(ctx context.Context, session *sessions.Session) error {
	err := s.MemoryStore.SaveSession(ctx, session)

	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	select {
	case s.saved <- struct{}{}:
	default:
	}
	return err
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type testHarness struct {
	orchestrator *Orchestrator
	backend      *backendStub
	store        *countingStore
	states       chan ChatState
}

func newTestHarness(t *testing.T, backend *backendStub, opts ...OrchestratorOption) *testHarness {
	t.Helper()

	store := newCountingStore()
	states := make(chan ChatState, 32)
	opts = append(opts, WithStateChangedCallback(func(state ChatState) {
		select {
		case states <- state:
		default:
		}
	}))

	orchestrator, err := NewOrchestrator(backend, store, opts...)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}
	t.Cleanup(orchestrator.Close)

	return &testHarness{orchestrator: orchestrator, backend: backend, store: store, states: states}
}

func (h *testHarness) awaitState(t *testing.T, kind StateKind) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-h.states:
			if state.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", kind)
		}
	}
}

func (h *testHarness) awaitSave(t *testing.T) {
	t.Helper()
	select {
	case <-h.store.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a persistence write")
	}
}

func TestCompleteTurnFinalizesMessageAndSaves(t *testing.T) {
	backend := &backendStub{
		respondFunc: func(_ int, _ string) (*llms.Response, error) {
			return &llms.Response{Content: "Hi!", Confidence: utils.Ptr(0.8)}, nil
		},
	}
	harness := newTestHarness(t, backend)

	harness.orchestrator.Submit("Hello")
	harness.awaitState(t, StateThinking)
	harness.awaitState(t, StateIdle)
	harness.awaitSave(t)
	// Drain the save goroutine so the LastModified stamp has landed.
	harness.orchestrator.Close()

	snapshot := harness.orchestrator.Snapshot()
	messages := snapshot.Session.Messages
	if len(messages) < 2 {
		t.Fatalf("expected at least user and assistant messages, got %d", len(messages))
	}

	user := messages[len(messages)-2]
	assistant := messages[len(messages)-1]
	if !user.IsUser || user.Content != "Hello" {
		t.Fatalf("expected trailing user message %q, got %+v", "Hello", user)
	}
	if assistant.IsUser || assistant.Content != "Hi!" {
		t.Fatalf("expected assistant reply %q, got %+v", "Hi!", assistant)
	}
	if assistant.Metadata == nil || assistant.Metadata.Confidence == nil || *assistant.Metadata.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8 carried through, got %+v", assistant.Metadata)
	}
	if assistant.Metadata.ProcessingTime == nil {
		t.Fatal("expected processing time recorded")
	}
	if assistant.Metadata.TokenCount == nil || *assistant.Metadata.TokenCount != 1 {
		t.Fatalf("expected token estimate 1 for %q, got %+v", "Hi!", assistant.Metadata.TokenCount)
	}

	if snapshot.State.Kind != StateIdle {
		t.Fatalf("expected state Idle, got %q", snapshot.State.Kind)
	}
	if snapshot.Session.LastModified.IsZero() {
		t.Fatal("expected LastModified stamped by the save")
	}
	if count := harness.store.saveCount(); count != 1 {
		t.Fatalf("expected exactly one persistence write, got %d", count)
	}
}

func TestSubmissionWhileBusyIsRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	backend := &backendStub{
		respondFunc: func(_ int, _ string) (*llms.Response, error) {
			entered <- struct{}{}
			<-release
			return &llms.Response{Content: "done"}, nil
		},
	}
	harness := newTestHarness(t, backend)

	harness.orchestrator.Submit("first message that stays in flight")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never reached the backend")
	}

	before := len(harness.orchestrator.Snapshot().Session.Messages)
	harness.orchestrator.Submit("second message while busy")
	if after := len(harness.orchestrator.Snapshot().Session.Messages); after != before {
		t.Fatalf("rejected submission changed the message list: %d -> %d", before, after)
	}

	close(release)
	harness.awaitState(t, StateIdle)
}

func TestStructuredIntentRoutesToAnalyzer(t *testing.T) {
	analyzed := make(chan string, 1)
	backend := &backendStub{
		analyzeFunc: func(_ context.Context, _ int, prompt string) (*llms.Analysis, error) {
			select {
			case analyzed <- prompt:
			default:
			}
			return &llms.Analysis{Reply: "analysis reply", Intent: "analyze", Confidence: 0.7}, nil
		},
	}
	harness := newTestHarness(t, backend)

	harness.orchestrator.Submit("analyze this data")
	select {
	case prompt := <-analyzed:
		if !strings.Contains(prompt, "analyze this data") {
			t.Fatalf("expected analyzer to receive the input, got %q", prompt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("structured-intent input never reached the analyzer")
	}
	harness.awaitState(t, StateIdle)
}

func TestGuardrailFailureFallsBackToStaticMessage(t *testing.T) {
	backend := &backendStub{
		respondFunc: func(call int, _ string) (*llms.Response, error) {
			if call == 1 {
				return nil, llms.Errorf(llms.ErrorKindGuardrailViolation, "content flagged")
			}
			// The friendly rewrite call fails too.
			return nil, llms.Errorf(llms.ErrorKindAssetsUnavailable, "backend down")
		},
	}
	harness := newTestHarness(t, backend)

	before := len(harness.orchestrator.Snapshot().Session.Messages)
	harness.orchestrator.Submit("something disallowed")
	harness.awaitState(t, StateIdle)
	harness.awaitSave(t)

	snapshot := harness.orchestrator.Snapshot()
	messages := snapshot.Session.Messages
	if len(messages) != before+2 {
		t.Fatalf("expected user message plus exactly one fallback message, got %d new", len(messages)-before)
	}

	last := messages[len(messages)-1]
	if last.IsUser || last.Content != fallbackMessages[llms.ErrorKindGuardrailViolation] {
		t.Fatalf("expected static guardrail fallback, got %+v", last)
	}
	if snapshot.State.Kind != StateIdle {
		t.Fatalf("expected state Idle, not Error, got %q", snapshot.State.Kind)
	}
}

func TestContextWindowRecoveryTruncatesAndNotices(t *testing.T) {
	backend := &backendStub{
		respondFunc: func(_ int, _ string) (*llms.Response, error) {
			return nil, llms.Errorf(llms.ErrorKindContextWindowExceeded, "too long")
		},
	}
	harness := newTestHarness(t, backend)

	session := sessions.NewSession("companion")
	session.TitleGenerated = true
	for i := 0; i < 8; i++ {
		session.Messages = append(session.Messages, sessions.NewMessage("earlier message", i%2 == 0))
	}
	data, err := sessions.ExportSession(session)
	if err != nil {
		t.Fatalf("failed to export fixture session: %v", err)
	}
	if err := harness.orchestrator.ImportSession(data); err != nil {
		t.Fatalf("failed to import fixture session: %v", err)
	}

	harness.orchestrator.Submit("one more message")
	harness.awaitState(t, StateIdle)

	snapshot := harness.orchestrator.Snapshot()
	messages := snapshot.Session.Messages
	if len(messages) != contextRecoveryKeep+1 {
		t.Fatalf("expected %d messages after truncation plus notice, got %d", contextRecoveryKeep+1, len(messages))
	}
	if last := messages[len(messages)-1]; last.Content != contextTrimmedNotice {
		t.Fatalf("expected the trimmed notice appended, got %q", last.Content)
	}
	if snapshot.State.Kind != StateIdle {
		t.Fatalf("expected state Idle, got %q", snapshot.State.Kind)
	}
}

func TestFreshSessionStartsWithGreeting(t *testing.T) {
	harness := newTestHarness(t, &backendStub{})

	snapshot := harness.orchestrator.Snapshot()
	if len(snapshot.Session.Messages) != 1 {
		t.Fatalf("expected only the greeting, got %d messages", len(snapshot.Session.Messages))
	}
	if greeting := snapshot.Session.Messages[0]; greeting.IsUser {
		t.Fatal("expected the greeting to be assistant-authored")
	}
}

func TestDeleteLastMessageReinsertsGreeting(t *testing.T) {
	harness := newTestHarness(t, &backendStub{})

	snapshot := harness.orchestrator.Snapshot()
	greeting := snapshot.Session.Messages[0]
	harness.orchestrator.DeleteMessage(greeting.ID)

	snapshot = harness.orchestrator.Snapshot()
	if len(snapshot.Session.Messages) != 1 {
		t.Fatalf("expected the greeting re-inserted, got %d messages", len(snapshot.Session.Messages))
	}
	if snapshot.Session.Messages[0].ID == greeting.ID {
		t.Fatal("expected a fresh greeting message, got the deleted one")
	}
}

func TestToggleReactionPersistsThroughOrchestrator(t *testing.T) {
	harness := newTestHarness(t, &backendStub{})

	greeting := harness.orchestrator.Snapshot().Session.Messages[0]
	harness.orchestrator.ToggleReaction(greeting.ID, "👍")
	harness.awaitSave(t)

	reactions := harness.orchestrator.Snapshot().Session.Messages[0].Reactions
	if len(reactions) != 1 || reactions[0] != "👍" {
		t.Fatalf("expected one reaction, got %v", reactions)
	}
}

func TestDismissErrorReturnsToIdle(t *testing.T) {
	harness := newTestHarness(t, &backendStub{})

	harness.orchestrator.mu.Lock()
	harness.orchestrator.setStateLocked(errorState("initialization failed"))
	harness.orchestrator.mu.Unlock()

	harness.orchestrator.DismissError()
	if state := harness.orchestrator.Snapshot().State; state.Kind != StateIdle {
		t.Fatalf("expected Idle after dismissal, got %q", state.Kind)
	}
}

// recordingStore blocks its first write until gate closes and records the
// greeting reactions every write carried.
type recordingStore struct {
	*sessions.MemoryStore

	entered chan struct{}
	gate    chan struct{}
	first   sync.Once

	mu     sync.Mutex
	writes [][]string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: sessions.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		gate:        make(chan struct{}),
	}
}

func (s *recordingStore) SaveSession(ctx context.Context, session *sessions.Session) error {
	gated := false
	s.first.Do(func() { gated = true })
	if gated {
		s.entered <- struct{}{}
		<-s.gate
	}

	s.mu.Lock()
	s.writes = append(s.writes, append([]string{}, session.Messages[0].Reactions...))
	s.mu.Unlock()
	return s.MemoryStore.SaveSession(ctx, session)
}

func TestSaveWritesSnapshotTakenAtScheduleTime(t *testing.T) {
	store := newRecordingStore()
	orchestrator, err := NewOrchestrator(&backendStub{}, store)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	greeting := orchestrator.Snapshot().Session.Messages[0]
	orchestrator.ToggleReaction(greeting.ID, "👍")
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		close(store.gate)
		t.Fatal("first save never reached the store")
	}

	// Mutate the live session while the first write is still in flight.
	orchestrator.ToggleReaction(greeting.ID, "🎉")
	close(store.gate)
	orchestrator.Close()

	store.mu.Lock()
	firstWrite := store.writes[0]
	store.mu.Unlock()
	if len(firstWrite) != 1 || firstWrite[0] != "👍" {
		t.Fatalf("expected the first write to carry the session as scheduled, got %v", firstWrite)
	}

	reactions := orchestrator.Snapshot().Session.Messages[0].Reactions
	if len(reactions) != 2 {
		t.Fatalf("expected both reactions on the live session, got %v", reactions)
	}
}

func TestConcurrentSavesDoNotDisturbReactionToggles(t *testing.T) {
	harness := newTestHarness(t, &backendStub{})

	greeting := harness.orchestrator.Snapshot().Session.Messages[0]
	for i := 0; i < 200; i++ {
		harness.orchestrator.ToggleReaction(greeting.ID, "👍")
		harness.orchestrator.Snapshot()
	}
	harness.orchestrator.Close()

	reactions := harness.orchestrator.Snapshot().Session.Messages[0].Reactions
	if len(reactions) != 0 {
		t.Fatalf("expected an even toggle count to clear the reaction, got %v", reactions)
	}
}

// slowStore honors context cancellation mid-write, the way the sqlite store
// does.
type slowStore struct {
	*sessions.MemoryStore
	delay time.Duration
}

func (s *slowStore) SaveSession(ctx context.Context, session *sessions.Session) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStore.SaveSession(ctx, session)
}

func TestCloseFlushesInFlightSave(t *testing.T) {
	store := &slowStore{MemoryStore: sessions.NewMemoryStore(), delay: 50 * time.Millisecond}
	orchestrator, err := NewOrchestrator(&backendStub{}, store)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	session := orchestrator.Snapshot().Session
	orchestrator.ToggleReaction(session.Messages[0].ID, "👍")
	orchestrator.Close()

	stored, err := store.LoadSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("expected the pending write to land before close returned, got %v", err)
	}
	if reactions := stored.Messages[0].Reactions; len(reactions) != 1 || reactions[0] != "👍" {
		t.Fatalf("expected the last write durable, got %v", reactions)
	}
}

func TestDeleteCurrentSessionStartsFresh(t *testing.T) {
	backend := &backendStub{}
	harness := newTestHarness(t, backend)

	harness.orchestrator.Submit("remember me")
	harness.awaitState(t, StateIdle)
	harness.awaitSave(t)

	current := harness.orchestrator.Snapshot().Session
	if err := harness.orchestrator.DeleteSession(current.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	fresh := harness.orchestrator.Snapshot().Session
	if fresh.ID == current.ID {
		t.Fatal("expected a fresh session after deleting the current one")
	}
	if len(fresh.Messages) != 1 {
		t.Fatalf("expected only the greeting in the fresh session, got %d", len(fresh.Messages))
	}
}
