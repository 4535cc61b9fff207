// Package panel sequences the voice interaction: recording, processing,
// response or error, with conversation memory held for the panel's lifetime.
package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/client/recorder"
	"github.com/paul-bouzian/saycal/internal/model"
)

var (
	ErrBusy         = errors.New("panel busy")
	ErrNotRecording = errors.New("not recording")
	ErrClosed       = errors.New("panel closed")
)

const (
	DefaultAutoClose  = 1500 * time.Millisecond
	DefaultMaxHistory = 20

	// ReasonMicrophoneUnavailable is the client-side failure of Start.
	ReasonMicrophoneUnavailable model.Reason = "microphone_unavailable"
)

var microphoneMessages = map[respond.Lang]string{
	respond.LangEN: "Microphone unavailable",
	respond.LangFR: "Microphone indisponible",
}

type Kind string

const (
	KindIdle       Kind = "idle"
	KindRecording  Kind = "recording"
	KindProcessing Kind = "processing"
	KindResponse   Kind = "response"
	KindError      Kind = "error"
)

// State is exactly one of the panel states; only the fields of Kind are set.
type State struct {
	Kind       Kind
	Elapsed    int                 // recording
	Stage      model.Stage         // processing
	Message    model.VoiceResponse // response
	Transcript string              // response
	Error      string              // error
	Reason     model.Reason        // error
}

type Recorder interface {
	Start(ctx context.Context) error
	Stop() recorder.Blob
	OnLimit(func())
	Elapsed() int
}

// Submitter performs one voice round-trip. onStage may be called from the
// submitting goroutine while the request is in flight.
type Submitter interface {
	Submit(ctx context.Context, clip recorder.Blob, history []model.ConversationTurn, onStage func(model.Stage)) (*model.VoiceResult, error)
}

type Option func(*Panel)

func WithAutoClose(d time.Duration) Option { return func(p *Panel) { p.autoClose = d } }
func WithMaxHistory(n int) Option         { return func(p *Panel) { p.maxHistory = n } }

// WithEventsChanged registers the hook run after a round-trip that mutated
// the calendar (cache invalidation).
func WithEventsChanged(f func()) Option { return func(p *Panel) { p.onEventsChanged = f } }

// WithOnChange observes state transitions in order; a state overtaken by a
// newer one before delivery is skipped. f must not call back into the Panel.
func WithOnChange(f func(State)) Option { return func(p *Panel) { p.onChange = f } }

// WithLanguage picks the language of client-side error messages from an
// Accept-Language style value.
func WithLanguage(lang string) Option { return func(p *Panel) { p.lang = respond.Language(lang) } }

// WithOnClose runs after Close, including the automatic close.
func WithOnClose(f func()) Option { return func(p *Panel) { p.onClose = f } }

type Panel struct {
	rec        Recorder
	sub        Submitter
	autoClose  time.Duration
	maxHistory int
	lang       respond.Lang

	onEventsChanged func()
	onChange        func(State)
	onClose         func()

	mu       sync.Mutex
	state    State
	history  []model.ConversationTurn
	gen      uint64
	cancel   context.CancelFunc
	inflight chan struct{}
	timer    *time.Timer
	starting bool   // a Start is waiting on the microphone
	seq      uint64 // state version

	notifyMu sync.Mutex
	notified uint64
}

func New(rec Recorder, sub Submitter, opts ...Option) *Panel {
	p := &Panel{
		rec:        rec,
		sub:        sub,
		autoClose:  DefaultAutoClose,
		maxHistory: DefaultMaxHistory,
		lang:       respond.LangEN,
		state:      State{Kind: KindIdle},
	}
	for _, o := range opts {
		o(p)
	}
	rec.OnLimit(p.limitReached)
	return p
}

// State returns the current state; Elapsed is live while recording.
func (p *Panel) State() State {
	p.mu.Lock()
	s := p.state
	p.mu.Unlock()
	if s.Kind == KindRecording {
		s.Elapsed = p.rec.Elapsed()
	}
	return s
}

// History returns a copy of the conversation memory.
func (p *Panel) History() []model.ConversationTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ConversationTurn(nil), p.history...)
}

// setLocked must be called with p.mu held; the returned func notifies the
// observer and must be called after unlocking.
func (p *Panel) setLocked(s State) func() {
	p.state = s
	p.seq++
	seq, cb := p.seq, p.onChange
	return func() {
		if cb == nil {
			return
		}
		p.notifyMu.Lock()
		defer p.notifyMu.Unlock()
		if seq < p.notified {
			return
		}
		p.notified = seq
		cb(s)
	}
}

// Start begins recording. It is only valid from idle. If Close runs while
// the microphone is opening, the capture is released and ErrClosed returned.
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Kind != KindIdle || p.starting {
		p.mu.Unlock()
		return ErrBusy
	}
	// Claim the transition so a concurrent Start sees a non-idle state.
	p.starting = true
	p.state = State{Kind: KindRecording}
	gen := p.gen
	p.mu.Unlock()

	err := p.rec.Start(ctx)

	p.mu.Lock()
	if gen != p.gen || p.state.Kind != KindRecording {
		p.mu.Unlock()
		if err == nil {
			p.rec.Stop()
		}
		// Released only now so a new Start cannot open a session this Stop
		// would tear down.
		p.mu.Lock()
		p.starting = false
		p.mu.Unlock()
		return ErrClosed
	}
	p.starting = false
	var notify func()
	if err != nil {
		notify = p.setLocked(State{Kind: KindError, Error: p.message(ReasonMicrophoneUnavailable), Reason: ReasonMicrophoneUnavailable})
	} else {
		notify = p.setLocked(State{Kind: KindRecording})
	}
	p.mu.Unlock()
	notify()
	return err
}

// Stop ends the recording and submits the clip with the conversation history.
// The round-trip runs in the background; Wait blocks until it settles.
// While the microphone is still opening it returns ErrBusy.
func (p *Panel) Stop() error {
	p.mu.Lock()
	if p.state.Kind != KindRecording {
		p.mu.Unlock()
		return ErrNotRecording
	}
	if p.starting {
		p.mu.Unlock()
		return ErrBusy
	}
	clip := p.rec.Stop()
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	done := make(chan struct{})
	p.inflight = done
	history := append([]model.ConversationTurn(nil), p.history...)
	notify := p.setLocked(State{Kind: KindProcessing, Stage: model.StageTranscribing})
	p.mu.Unlock()
	notify()

	go func() {
		defer close(done)
		defer cancel()
		res, err := p.sub.Submit(ctx, clip, history, func(s model.Stage) { p.stage(gen, s) })
		p.finish(gen, res, err)
	}()
	return nil
}

// Wait blocks until the in-flight round-trip, if any, has settled.
func (p *Panel) Wait() {
	p.mu.Lock()
	done := p.inflight
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Panel) stage(gen uint64, s model.Stage) {
	p.mu.Lock()
	if gen != p.gen || p.state.Kind != KindProcessing {
		p.mu.Unlock()
		return
	}
	notify := p.setLocked(State{Kind: KindProcessing, Stage: s})
	p.mu.Unlock()
	notify()
}

func (p *Panel) finish(gen uint64, res *model.VoiceResult, err error) {
	p.mu.Lock()
	if gen != p.gen || p.state.Kind != KindProcessing {
		// Closed or superseded while in flight.
		p.mu.Unlock()
		return
	}
	p.cancel = nil
	if err != nil {
		msg, reason := p.describe(err)
		notify := p.setLocked(State{Kind: KindError, Error: msg, Reason: reason})
		p.mu.Unlock()
		notify()
		return
	}

	p.history = append(p.history,
		model.ConversationTurn{Role: model.RoleUser, Content: res.Transcript},
		model.ConversationTurn{Role: model.RoleAssistant, Content: res.Result.Text},
	)
	if p.maxHistory > 0 && len(p.history) > p.maxHistory {
		p.history = append([]model.ConversationTurn(nil), p.history[len(p.history)-p.maxHistory:]...)
	}
	notify := p.setLocked(State{Kind: KindResponse, Message: res.Result, Transcript: res.Transcript})
	mutated := res.Result.Action != "" && res.Result.Action != model.ActionListed
	if mutated {
		p.timer = time.AfterFunc(p.autoClose, func() { p.autoCloseFired(gen) })
	}
	hook := p.onEventsChanged
	p.mu.Unlock()

	notify()
	if mutated && hook != nil {
		hook()
	}
}

func (p *Panel) autoCloseFired(gen uint64) {
	p.mu.Lock()
	stale := gen != p.gen || p.state.Kind != KindResponse
	p.mu.Unlock()
	if !stale {
		p.Close()
	}
}

// limitReached submits the clip when the recorder hits its hard stop.
func (p *Panel) limitReached() { _ = p.Stop() }

// NewCommand leaves response or error for idle, optionally re-arming the
// recorder at once.
func (p *Panel) NewCommand(ctx context.Context, rearm bool) error {
	p.mu.Lock()
	if p.state.Kind != KindResponse && p.state.Kind != KindError {
		p.mu.Unlock()
		return ErrBusy
	}
	p.stopTimerLocked()
	notify := p.setLocked(State{Kind: KindIdle})
	p.mu.Unlock()
	notify()
	if rearm {
		return p.Start(ctx)
	}
	return nil
}

// Close returns to idle from any state: it cancels the auto-close timer and
// any in-flight round-trip, stops the recorder and forgets the conversation.
func (p *Panel) Close() {
	p.mu.Lock()
	p.stopTimerLocked()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.history = nil
	notify := p.setLocked(State{Kind: KindIdle})
	hook := p.onClose
	p.mu.Unlock()

	p.rec.Stop()
	notify()
	if hook != nil {
		hook()
	}
}

func (p *Panel) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// describe extracts the user-facing message of a failed round-trip. The
// server's own message wins; otherwise the reason is looked up locally.
func (p *Panel) describe(err error) (string, model.Reason) {
	reason := model.ReasonInternal
	var ve *model.VoiceError
	if errors.As(err, &ve) {
		if ve.Err != nil && ve.Err.Error() != "" {
			return ve.Err.Error(), ve.Reason
		}
		reason = ve.Reason
	}
	return p.message(reason), reason
}

func (p *Panel) message(reason model.Reason) string {
	if reason == ReasonMicrophoneUnavailable {
		if m, ok := microphoneMessages[p.lang]; ok {
			return m
		}
		return microphoneMessages[respond.LangEN]
	}
	return respond.Message(reason, p.lang)
}
