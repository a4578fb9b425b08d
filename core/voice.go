package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emberchat/ember-core/core/speechtotext"
)

// ErrPermissionDenied is returned when the transcription source cannot be
// acquired (missing permissions, credentials, or connectivity).
var ErrPermissionDenied = errors.New("voice permission denied")

// DefaultVoiceInactivityTimeout is how long a recording may sit without a new
// transcript segment before the watchdog stops it.
const DefaultVoiceInactivityTimeout = 30 * time.Second

// defaultTranscriptFlushWindow is how long stop waits after closing the
// stream for the recognizer to flush its buffered final segments.
const defaultTranscriptFlushWindow = 250 * time.Millisecond

// Transcriber is the transcription source contract the voice subsystem
// consumes.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	StopStream() error
}

// voiceObservers carries the callbacks the orchestrator registers for the
// lifetime of one recording session.
type voiceObservers struct {
	onTranscript func(transcript string)
	onTimeout    func()
	onFailure    func(err error)
}

// voiceRecorder owns one recording session at a time: the transcription
// stream, the accumulated transcript, and the inactivity watchdog. Every exit
// path goes through stop, which releases all acquired resources.
type voiceRecorder struct {
	client            Transcriber
	inactivityTimeout time.Duration
	flushWindow       time.Duration

	mu        sync.Mutex
	recording bool
	stopping  bool
	segments  []string
	watchdog  *time.Timer
	cancel    context.CancelFunc
}

func newVoiceRecorder(client Transcriber) *voiceRecorder {
	return &voiceRecorder{
		client:            client,
		inactivityTimeout: DefaultVoiceInactivityTimeout,
		flushWindow:       defaultTranscriptFlushWindow,
	}
}

func (r *voiceRecorder) isConfigured() bool {
	return r != nil && r.client != nil
}

// start acquires the transcription stream. A start while already recording is
// a logged no-op; an acquisition failure surfaces as ErrPermissionDenied.
func (r *voiceRecorder) start(ctx context.Context, observers voiceObservers) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		log.Println("Warning: recording already in progress, ignoring start")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.recording = true
	r.segments = nil
	r.cancel = cancel
	r.watchdog = time.AfterFunc(r.inactivityTimeout, observers.onTimeout)
	r.mu.Unlock()

	err := r.client.Transcribe(ctx,
		speechtotext.WithPartialTranscriptionCallback(func(transcript string) {
			r.appendSegment(transcript)
		}),
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			r.touchWatchdog()
			if observers.onTranscript != nil {
				observers.onTranscript(transcript)
			}
		}),
		speechtotext.WithErrorCallback(func(err error) {
			if observers.onFailure != nil {
				observers.onFailure(err)
			}
		}),
	)
	if err != nil {
		// Release everything acquired so far; acquisition failures clean up
		// exactly like a stop.
		r.release()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	return nil
}

// stop ends the recording and returns the accumulated transcript. The stream
// is closed before the transcript is assembled: closing makes the recognizer
// flush its buffered final segments, and those still count. It releases the
// watchdog, the stream and the cancellation scope on every path, and is a
// no-op when nothing is recording.
func (r *voiceRecorder) stop() (string, error) {
	r.mu.Lock()
	if !r.recording || r.stopping {
		r.mu.Unlock()
		return "", nil
	}
	r.stopping = true
	client := r.client
	flushWindow := r.flushWindow
	r.mu.Unlock()

	var stopErr error
	if client != nil {
		if err := client.StopStream(); err != nil {
			stopErr = fmt.Errorf("failed to stop transcription stream: %w", err)
		} else if flushWindow > 0 {
			time.Sleep(flushWindow)
		}
	}

	r.mu.Lock()
	transcript := strings.TrimSpace(strings.Join(r.segments, " "))
	r.releaseLocked()
	r.mu.Unlock()

	return transcript, stopErr
}

func (r *voiceRecorder) appendSegment(transcript string) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}

	r.mu.Lock()
	if r.recording {
		r.segments = append(r.segments, transcript)
	}
	r.mu.Unlock()

	r.touchWatchdog()
}

// touchWatchdog pushes the inactivity deadline out on every sign of life from
// the transcription stream.
func (r *voiceRecorder) touchWatchdog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchdog != nil {
		r.watchdog.Reset(r.inactivityTimeout)
	}
}

func (r *voiceRecorder) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
}

func (r *voiceRecorder) releaseLocked() {
	r.recording = false
	r.stopping = false
	r.segments = nil
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
