// Package orchestration manages a chat session's lifecycle: it owns the
// current session and chat state, dispatches user turns to the generation
// backend through interchangeable response strategies, persists sessions
// safely under concurrent background writes, and converts backend failures
// into a recoverable, user-facing experience.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/emberchat/ember-core/core/llms"
	"github.com/emberchat/ember-core/core/personas"
	"github.com/emberchat/ember-core/core/sessions"
	"github.com/emberchat/ember-core/core/strategies"
)

// Orchestrator is the public face of the conversation core. All session and
// state mutations go through its mutex; generation, persistence and title
// tasks run as goroutines that commit results back through owner methods.
type Orchestrator struct {
	mu        sync.Mutex
	state     ChatState
	session   *sessions.Session
	settings  sessions.Settings
	lastError error

	backend   Backend
	manager   *sessions.Manager
	recorder  *voiceRecorder
	selection strategies.SelectionConfig

	titleCancel     context.CancelFunc
	titleGeneration uint64

	callbacks callbacks

	baseContext context.Context
	cancelBase  context.CancelFunc
	background  sync.WaitGroup
	closeOnce   sync.Once
}

// NewOrchestrator wires the orchestrator over its collaborators. A failure to
// load settings or the session index from the store is a pre-turn
// initialization failure and leaves the orchestrator in the blocking Error
// state; everything after construction degrades conversationally instead.
func NewOrchestrator(backend Backend, store sessions.Store, opts ...OrchestratorOption) (*Orchestrator, error) {
	if backend == nil {
		return nil, errors.New("orchestrator requires a generation backend")
	}
	if store == nil {
		return nil, errors.New("orchestrator requires a session store")
	}

	baseContext, cancelBase := context.WithCancel(context.Background())
	o := &Orchestrator{
		state:       idleState(),
		backend:     backend,
		manager:     sessions.NewManager(store),
		recorder:    newVoiceRecorder(nil),
		selection:   strategies.DefaultSelectionConfig(),
		callbacks:   noopCallbacks(),
		baseContext: baseContext,
		cancelBase:  cancelBase,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.settings = sessions.DefaultSettings()
	settings, err := o.manager.LoadSettings(baseContext)
	if err != nil {
		o.state = errorState(fmt.Sprintf("failed to load settings: %v", err))
		o.lastError = err
	} else {
		o.settings = settings
	}

	if err := o.manager.Refresh(baseContext); err != nil {
		o.state = errorState(fmt.Sprintf("failed to load sessions: %v", err))
		o.lastError = err
	}

	o.session = o.freshSession()
	return o, nil
}

// Close stops the recording, cancels in-flight turns, and waits for
// background work to finish. Persistence writes and title tasks are drained
// rather than cancelled so the last write lands.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if _, err := o.recorder.stop(); err != nil {
			log.Println("Warning: failed to stop recording on close:", err)
		}

		o.cancelBase()
		o.background.Wait()
	})
}

// Submit starts a turn for non-empty user text or a finished voice
// transcription. Submissions while a turn or recording is in flight are
// rejected no-ops; a submission from the Error state is the recovery path
// back to Idle.
func (o *Orchestrator) Submit(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	o.mu.Lock()
	if !o.state.acceptsSubmission() {
		o.mu.Unlock()
		log.Println("Warning: submission while busy, ignoring")
		return
	}

	userMessage := sessions.NewMessage(input, true)
	o.session.Messages = append(o.session.Messages, userMessage)

	firstTurn := o.session.UserMessageCount() == 1
	if firstTurn && o.session.Title == sessions.DefaultTitle {
		o.session.Title = sessions.KeywordTitle(input)
	}

	persona := personas.Get(o.session.Persona)
	genCtx := strategies.GenerationContext{
		Input:            input,
		Persona:          persona,
		MessageCount:     len(o.session.Messages),
		StreamingEnabled: o.settings.StreamingEnabled,
	}
	req := strategies.Request{
		Input:             input,
		Instructions:      persona.Instructions,
		History:           o.historyLocked(userMessage.ID),
		Temperature:       persona.Temperature,
		MaxResponseTokens: 1024,
	}

	o.setStateLocked(thinkingState())
	o.mu.Unlock()

	o.callbacks.onMessageAppended(userMessage)

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.generateTurn(o.baseContext, genCtx, req, firstTurn)
	}()
}

// historyLocked builds the backend history from the current message list,
// excluding the message with excludeID and capped to the configured context
// length. Callers hold o.mu.
func (o *Orchestrator) historyLocked(excludeID string) []llms.Exchange {
	history := []llms.Exchange{}
	for _, message := range o.session.Messages {
		if message.ID == excludeID || strings.TrimSpace(message.Content) == "" {
			continue
		}

		role := llms.ExchangeRoleAssistant
		if message.IsUser {
			role = llms.ExchangeRoleUser
		}
		history = append(history, llms.Exchange{Role: role, Content: message.Content})
	}

	if max := o.settings.MaxContextLength; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// StartRecording begins a voice recording session. A start while not Idle is
// a logged no-op; a transcription-source failure to open surfaces as
// ErrPermissionDenied.
func (o *Orchestrator) StartRecording() error {
	o.mu.Lock()
	if o.state.Kind == StateVoiceListening {
		o.mu.Unlock()
		log.Println("Warning: recording already active, ignoring start")
		return nil
	}
	if o.state.Kind != StateIdle {
		o.mu.Unlock()
		log.Println("Warning: cannot start recording while busy, ignoring start")
		return nil
	}
	if !o.recorder.isConfigured() {
		o.mu.Unlock()
		return errors.New("no transcription source configured")
	}
	o.mu.Unlock()

	err := o.recorder.start(o.baseContext, voiceObservers{
		onTranscript: o.callbacks.onInterimTranscript,
		onTimeout:    func() { o.autoStopRecording("inactivity timeout") },
		onFailure:    func(err error) { o.autoStopRecording(fmt.Sprintf("recognition failure: %v", err)) },
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.setStateLocked(ChatState{Kind: StateVoiceListening})
	o.mu.Unlock()
	return nil
}

// StopRecording ends the active recording and returns the final transcript.
// Stopping while not recording is a no-op.
func (o *Orchestrator) StopRecording() (string, error) {
	o.mu.Lock()
	if o.state.Kind != StateVoiceListening {
		o.mu.Unlock()
		return "", nil
	}
	o.mu.Unlock()

	transcript, err := o.recorder.stop()

	o.mu.Lock()
	if o.state.Kind == StateVoiceListening {
		o.setStateLocked(idleState())
	}
	o.mu.Unlock()
	return transcript, err
}

// autoStopRecording handles the watchdog and recognition-failure paths, which
// release resources exactly like an explicit stop and publish the final
// transcript to the observer instead of a caller.
func (o *Orchestrator) autoStopRecording(reason string) {
	transcript, err := o.recorder.stop()
	if err != nil {
		log.Println("Warning: failed to stop recording:", err)
	}
	logger.Info("recording stopped", "reason", reason)

	o.mu.Lock()
	if o.state.Kind == StateVoiceListening {
		o.setStateLocked(idleState())
	}
	o.mu.Unlock()

	if transcript != "" {
		o.callbacks.onFinalTranscript(transcript)
	}
}

// SwitchPersona changes the active persona for the current session and
// remembers it in settings.
func (o *Orchestrator) SwitchPersona(id string) error {
	persona := personas.Get(id)

	o.mu.Lock()
	if !o.state.acceptsSubmission() {
		o.mu.Unlock()
		log.Println("Warning: cannot switch persona while busy, ignoring")
		return nil
	}
	o.session.Persona = persona.ID
	o.settings.SelectedPersona = persona.ID
	o.mu.Unlock()

	o.persistSettings()
	o.scheduleSave()
	return nil
}

// SwitchSession makes the stored session with the given id current. A loaded
// session with no messages is seeded with the persona greeting.
func (o *Orchestrator) SwitchSession(id string) error {
	o.mu.Lock()
	if !o.state.acceptsSubmission() {
		o.mu.Unlock()
		log.Println("Warning: cannot switch session while busy, ignoring")
		return nil
	}
	o.mu.Unlock()

	loaded, err := o.manager.Load(o.baseContext, id)
	if err != nil {
		o.recordError(err)
		return err
	}

	o.mu.Lock()
	o.cancelTitleTaskLocked()
	if len(loaded.Messages) == 0 {
		persona := personas.Get(loaded.Persona)
		if persona.Greeting != "" {
			loaded.Messages = append(loaded.Messages, sessions.NewMessage(persona.Greeting, false))
		}
	}
	o.session = loaded
	o.mu.Unlock()
	return nil
}

// StartNewSession abandons the current session (already persisted by its last
// save) and begins a fresh greeted one.
func (o *Orchestrator) StartNewSession() {
	o.mu.Lock()
	if !o.state.acceptsSubmission() {
		o.mu.Unlock()
		log.Println("Warning: cannot start a session while busy, ignoring")
		return
	}
	o.cancelTitleTaskLocked()
	o.session = o.freshSessionLocked()
	o.mu.Unlock()
}

// DeleteSession removes a stored session. Deleting the current session starts
// a fresh one.
func (o *Orchestrator) DeleteSession(id string) error {
	if err := o.manager.Delete(o.baseContext, id); err != nil {
		o.recordError(err)
		return err
	}

	o.mu.Lock()
	if o.session.ID == id {
		o.cancelTitleTaskLocked()
		o.session = o.freshSessionLocked()
	}
	o.mu.Unlock()
	return nil
}

// DeleteMessage removes one message from the current session. If the list
// becomes empty the persona greeting is re-inserted.
func (o *Orchestrator) DeleteMessage(id string) {
	o.mu.Lock()
	messages := o.session.Messages
	for i := range messages {
		if messages[i].ID == id {
			o.session.Messages = append(messages[:i], messages[i+1:]...)
			break
		}
	}
	if len(o.session.Messages) == 0 {
		persona := personas.Get(o.session.Persona)
		if persona.Greeting != "" {
			o.session.Messages = append(o.session.Messages, sessions.NewMessage(persona.Greeting, false))
		}
	}
	o.mu.Unlock()

	o.scheduleSave()
}

// ToggleReaction toggles a reaction on the message with the given id.
func (o *Orchestrator) ToggleReaction(messageID, reaction string) {
	o.mu.Lock()
	message := o.session.MessageByID(messageID)
	if message == nil {
		o.mu.Unlock()
		return
	}
	message.ToggleReaction(reaction)
	o.mu.Unlock()

	o.scheduleSave()
}

// ClearAllData deletes every stored session and resets settings to defaults.
func (o *Orchestrator) ClearAllData() error {
	o.mu.Lock()
	if !o.state.acceptsSubmission() {
		o.mu.Unlock()
		log.Println("Warning: cannot clear data while busy, ignoring")
		return nil
	}
	o.mu.Unlock()

	if err := o.manager.DeleteAll(o.baseContext); err != nil {
		o.recordError(err)
		return err
	}

	o.mu.Lock()
	o.cancelTitleTaskLocked()
	o.settings = sessions.DefaultSettings()
	o.session = o.freshSessionLocked()
	o.mu.Unlock()

	o.persistSettings()
	return nil
}

// ExportSession serializes the current session.
func (o *Orchestrator) ExportSession() ([]byte, error) {
	o.mu.Lock()
	session := o.copySessionLocked()
	o.mu.Unlock()
	return sessions.ExportSession(session)
}

// ImportSession restores a serialized session, persists it, and makes it
// current.
func (o *Orchestrator) ImportSession(data []byte) error {
	imported, err := sessions.ImportSession(data)
	if err != nil {
		return err
	}
	if err := o.manager.Save(o.baseContext, imported); err != nil {
		o.recordError(err)
		return err
	}

	o.mu.Lock()
	if o.state.acceptsSubmission() {
		o.cancelTitleTaskLocked()
		o.session = imported
	}
	o.mu.Unlock()
	return nil
}

// ExportAll serializes every stored session plus settings as one bundle.
func (o *Orchestrator) ExportAll() ([]byte, error) {
	if err := o.manager.Refresh(o.baseContext); err != nil {
		o.recordError(err)
		return nil, err
	}

	o.mu.Lock()
	settings := o.settings
	o.mu.Unlock()
	return sessions.ExportBundle(o.manager.Recent(), &settings)
}

// ImportAll restores a bundle produced by ExportAll.
func (o *Orchestrator) ImportAll(data []byte) error {
	bundle, err := sessions.ImportBundle(data)
	if err != nil {
		return err
	}

	var importErr error
	for i := range bundle.Sessions {
		session := bundle.Sessions[i]
		if err := o.manager.Save(o.baseContext, &session); err != nil {
			importErr = errors.Join(importErr, err)
		}
	}
	if bundle.Settings != nil {
		o.mu.Lock()
		o.settings = *bundle.Settings
		o.mu.Unlock()
		o.persistSettings()
	}
	if importErr != nil {
		o.recordError(importErr)
	}
	return importErr
}

// DismissError acknowledges the blocking error state and returns to Idle.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Kind == StateError {
		o.lastError = nil
		o.setStateLocked(idleState())
	}
}

// UpdateSettings replaces the settings and persists them.
func (o *Orchestrator) UpdateSettings(settings sessions.Settings) {
	o.mu.Lock()
	o.settings = settings
	o.mu.Unlock()
	o.persistSettings()
}

// RecentSessions returns the known sessions, most recent first.
func (o *Orchestrator) RecentSessions() []*sessions.Session {
	return o.manager.Recent()
}

// Snapshot is a point-in-time copy of the externally observable state.
type Snapshot struct {
	State    ChatState
	Session  sessions.Session
	Settings sessions.Settings
	// LastError holds the most recent recorded failure, set for blocking
	// initialization errors and background persistence failures.
	LastError error
}

// Snapshot returns a deep copy of the current state; mutating it cannot
// affect the orchestrator.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Snapshot{
		State:     o.state,
		Session:   *o.copySessionLocked(),
		Settings:  o.settings,
		LastError: o.lastError,
	}
}

// copySessionLocked deep-copies the current session so it can leave the
// mutex's protection. Callers hold o.mu.
func (o *Orchestrator) copySessionLocked() *sessions.Session {
	session := &sessions.Session{}
	if err := copier.CopyWithOption(session, o.session, copier.Option{DeepCopy: true}); err != nil {
		log.Println("Warning: failed to copy session:", err)
		clone := *o.session
		return &clone
	}
	return session
}

// setStateLocked transitions the chat state and notifies the observer.
// Callers hold o.mu; the callback must not call back into the orchestrator.
func (o *Orchestrator) setStateLocked(next ChatState) {
	if o.state == next {
		return
	}
	o.state = next
	o.callbacks.onStateChanged(next)
}

func (o *Orchestrator) freshSession() *sessions.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.freshSessionLocked()
}

// freshSessionLocked creates a new session seeded with the persona greeting.
// A fresh session has empty in-memory and stored message lists, the only case
// that greets.
func (o *Orchestrator) freshSessionLocked() *sessions.Session {
	persona := personas.Get(o.settings.SelectedPersona)
	session := sessions.NewSession(persona.ID)
	if persona.Greeting != "" {
		session.Messages = append(session.Messages, sessions.NewMessage(persona.Greeting, false))
	}
	return session
}

// scheduleSave requests a background persistence write for the current
// session. The snapshot is taken under the mutex so the write never touches
// the live session; the stamped LastModified is committed back through
// commitSaved. A write already in flight for the id makes this a no-op; the
// next completed turn will reconcile.
func (o *Orchestrator) scheduleSave() {
	o.mu.Lock()
	if !o.settings.AutoSaveConversations {
		o.mu.Unlock()
		return
	}
	snapshot := o.copySessionLocked()
	o.mu.Unlock()

	o.background.Add(1)
	go func() {
		defer o.background.Done()

		// Saves run on a detached context so a shutdown cannot abort the
		// last write mid-flight; Close waits for them instead.
		err := o.manager.Save(context.Background(), snapshot)
		if errors.Is(err, sessions.ErrSaveInFlight) {
			logger.Debug("save dropped, write already in flight", "session", snapshot.ID)
			return
		}
		if err != nil {
			// Persistence failures are recorded, never rolled back: the
			// in-memory messages stay visible and the next save reconciles.
			logger.Warn("failed to save session", "session", snapshot.ID, "error", err)
			o.recordError(err)
			return
		}
		o.commitSaved(snapshot.ID, snapshot.LastModified)
	}()
}

// commitSaved reflects a completed write's LastModified stamp onto the live
// session, provided it is still the current one.
func (o *Orchestrator) commitSaved(sessionID string, stamped time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.ID == sessionID {
		o.session.LastModified = stamped
	}
}

func (o *Orchestrator) persistSettings() {
	o.mu.Lock()
	settings := o.settings
	o.mu.Unlock()

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		if err := o.manager.SaveSettings(context.Background(), settings); err != nil {
			logger.Warn("failed to save settings", "error", err)
			o.recordError(err)
		}
	}()
}

// recordError notes a failure without changing state. Only pre-turn
// initialization failures enter the blocking Error state.
func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastError = err
}

func (o *Orchestrator) cancelTitleTaskLocked() {
	if o.titleCancel != nil {
		o.titleCancel()
		o.titleCancel = nil
	}
	o.titleGeneration++
}

func estimateTokens(content string) int {
	return (len(content) + 3) / 4
}
