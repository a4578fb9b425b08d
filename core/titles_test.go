package orchestration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/sessions"
)

func importUntitledSession(t *testing.T, harness *testHarness) *sessions.Session {
	t.Helper()

	session := sessions.NewSession("companion")
	session.Title = sessions.KeywordTitle("planning a norway trip")
	session.Messages = append(session.Messages,
		sessions.NewMessage("planning a norway trip", true),
		sessions.NewMessage("Sounds great, when are you going?", false),
	)

	data, err := sessions.ExportSession(session)
	if err != nil {
		t.Fatalf("failed to export fixture: %v", err)
	}
	if err := harness.orchestrator.ImportSession(data); err != nil {
		t.Fatalf("failed to import fixture: %v", err)
	}
	return session
}

func TestTitleTaskCancelsPredecessor(t *testing.T) {
	firstEntered := make(chan struct{}, 1)
	backend := &backendStub{
		analyzeFunc: func(ctx context.Context, call int, _ string) (*llms.Analysis, error) {
			if call == 1 {
				firstEntered <- struct{}{}
				<-ctx.Done()
				return &llms.Analysis{Reply: "First Title", Confidence: 0.9}, nil
			}
			return &llms.Analysis{Reply: "Second Title", Confidence: 0.9}, nil
		},
	}
	titles := make(chan string, 4)
	harness := newTestHarness(t, backend, WithTitleChangedCallback(func(_, title string) {
		titles <- title
	}))
	importUntitledSession(t, harness)

	harness.orchestrator.scheduleTitleTask()
	select {
	case <-firstEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("first title task never started")
	}
	harness.orchestrator.scheduleTitleTask()

	select {
	case title := <-titles:
		if title != "Second Title" {
			t.Fatalf("expected the second task's title applied, got %q", title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no title was ever applied")
	}

	// Let the cancelled first task run to completion before checking it never
	// wrote.
	harness.orchestrator.Close()

	snapshot := harness.orchestrator.Snapshot()
	if snapshot.Session.Title != "Second Title" {
		t.Fatalf("expected title %q to survive, got %q", "Second Title", snapshot.Session.Title)
	}
	if !snapshot.Session.TitleGenerated {
		t.Fatal("expected the session marked as title-generated")
	}
	select {
	case extra := <-titles:
		t.Fatalf("cancelled task applied a title anyway: %q", extra)
	default:
	}
}

func TestCloseDrainsPendingTitleTask(t *testing.T) {
	backend := &backendStub{
		analyzeFunc: func(_ context.Context, _ int, _ string) (*llms.Analysis, error) {
			time.Sleep(20 * time.Millisecond)
			return &llms.Analysis{Reply: "Slow But Earned", Confidence: 0.9}, nil
		},
	}
	harness := newTestHarness(t, backend)
	importUntitledSession(t, harness)

	harness.orchestrator.scheduleTitleTask()
	harness.orchestrator.Close()

	snapshot := harness.orchestrator.Snapshot()
	if snapshot.Session.Title != "Slow But Earned" {
		t.Fatalf("expected the in-flight title applied before close returned, got %q", snapshot.Session.Title)
	}
	if !snapshot.Session.TitleGenerated {
		t.Fatal("expected the session marked as title-generated")
	}
}

func TestTitleReplacesKeywordFallbackOnce(t *testing.T) {
	backend := &backendStub{
		analyzeFunc: func(_ context.Context, _ int, _ string) (*llms.Analysis, error) {
			return &llms.Analysis{Reply: "Norway Trip Planning", Confidence: 0.8}, nil
		},
	}
	titles := make(chan string, 1)
	harness := newTestHarness(t, backend, WithTitleChangedCallback(func(_, title string) {
		select {
		case titles <- title:
		default:
		}
	}))
	importUntitledSession(t, harness)

	harness.orchestrator.scheduleTitleTask()
	select {
	case title := <-titles:
		if title != "Norway Trip Planning" {
			t.Fatalf("expected AI title applied, got %q", title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("title was never applied")
	}

	// A session whose title has left the fallback never re-runs the task.
	harness.orchestrator.scheduleTitleTask()
	harness.orchestrator.Close()
	harness.backend.mu.Lock()
	calls := harness.backend.analyzeCalls
	harness.backend.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single title generation, got %d", calls)
	}
}

func TestLowConfidenceTitleKeepsKeywordFallback(t *testing.T) {
	backend := &backendStub{
		analyzeFunc: func(_ context.Context, _ int, _ string) (*llms.Analysis, error) {
			return &llms.Analysis{Reply: "Unsure Title", Confidence: 0.2}, nil
		},
	}
	harness := newTestHarness(t, backend)
	fixture := importUntitledSession(t, harness)

	harness.orchestrator.scheduleTitleTask()
	harness.orchestrator.Close()

	snapshot := harness.orchestrator.Snapshot()
	if snapshot.Session.Title != fixture.Title {
		t.Fatalf("expected keyword fallback %q kept, got %q", fixture.Title, snapshot.Session.Title)
	}
	if snapshot.Session.TitleGenerated {
		t.Fatal("expected the session still eligible for title generation")
	}
}

func TestLongTitleTruncatedWithEllipsis(t *testing.T) {
	long := strings.Repeat("word ", 20)
	backend := &backendStub{
		analyzeFunc: func(_ context.Context, _ int, _ string) (*llms.Analysis, error) {
			return &llms.Analysis{Reply: long, Confidence: 0.9}, nil
		},
	}
	harness := newTestHarness(t, backend)
	importUntitledSession(t, harness)

	harness.orchestrator.scheduleTitleTask()
	harness.orchestrator.Close()

	title := harness.orchestrator.Snapshot().Session.Title
	if runes := []rune(title); len(runes) != titleRuneLimit {
		t.Fatalf("expected title capped at %d runes, got %d (%q)", titleRuneLimit, len(runes), title)
	}
	if !strings.HasSuffix(title, "…") {
		t.Fatalf("expected ellipsis marker, got %q", title)
	}
}
