package panel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul-bouzian/saycal/internal/client/recorder"
	"github.com/paul-bouzian/saycal/internal/model"
)

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	limit    func()
}

func (f *fakeRecorder) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeRecorder) Stop() recorder.Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return recorder.Blob{Data: []byte("RIFFdata"), MimeType: recorder.MimeTypeWAV}
}

func (f *fakeRecorder) OnLimit(fn func()) { f.limit = fn }
func (f *fakeRecorder) Elapsed() int      { return 3 }

type fakeSubmitter struct {
	mu        sync.Mutex
	res       *model.VoiceResult
	err       error
	stages    []model.Stage
	block     bool
	calls     int
	ctxErr    error
	histories [][]model.ConversationTurn
}

func (f *fakeSubmitter) Submit(ctx context.Context, _ recorder.Blob, history []model.ConversationTurn, onStage func(model.Stage)) (*model.VoiceResult, error) {
	f.mu.Lock()
	f.calls++
	f.histories = append(f.histories, history)
	stages, block, res, err := f.stages, f.block, f.res, f.err
	f.mu.Unlock()

	for _, s := range stages {
		onStage(s)
	}
	if block {
		<-ctx.Done()
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
		return nil, ctx.Err()
	}
	return res, err
}

// gatedDevice blocks Open until gate is closed.
type gatedDevice struct {
	entered chan struct{}
	gate    chan struct{}
	opens   atomic.Int32
	closes  atomic.Int32
}

func newGatedDevice() *gatedDevice {
	return &gatedDevice{entered: make(chan struct{}, 8), gate: make(chan struct{})}
}

func (d *gatedDevice) Open(recorder.Format, func([]byte)) (recorder.Stream, error) {
	d.opens.Add(1)
	d.entered <- struct{}{}
	<-d.gate
	return gatedStream{d}, nil
}

type gatedStream struct{ dev *gatedDevice }

func (s gatedStream) Close() error {
	s.dev.closes.Add(1)
	return nil
}

func created(text string) *model.VoiceResult {
	return &model.VoiceResult{
		Transcript: "ajoute " + text,
		Result:     model.VoiceResponse{Type: "response", Text: text, Action: model.ActionCreated},
	}
}

func TestPanel_HappyPathAutoCloses(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{res: created("C'est noté"), stages: []model.Stage{model.StageThinking, model.StageExecuting}}
	var changed, closed atomic.Int32
	var seen []Kind
	var seenMu sync.Mutex
	p := New(rec, sub,
		WithAutoClose(20*time.Millisecond),
		WithEventsChanged(func() { changed.Add(1) }),
		WithOnClose(func() { closed.Add(1) }),
		WithOnChange(func(s State) { seenMu.Lock(); seen = append(seen, s.Kind); seenMu.Unlock() }),
	)

	require.NoError(t, p.Start(context.Background()))
	st := p.State()
	assert.Equal(t, KindRecording, st.Kind)
	assert.Equal(t, 3, st.Elapsed)
	assert.ErrorIs(t, p.Start(context.Background()), ErrBusy)

	require.NoError(t, p.Stop())
	p.Wait()
	st = p.State()
	require.Equal(t, KindResponse, st.Kind)
	assert.Equal(t, "C'est noté", st.Message.Text)
	assert.Equal(t, int32(1), changed.Load())
	assert.Len(t, p.History(), 2)

	require.Eventually(t, func() bool { return closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindIdle, p.State().Kind)
	assert.Empty(t, p.History())

	seenMu.Lock()
	defer seenMu.Unlock()
	assert.Equal(t, []Kind{KindRecording, KindProcessing, KindProcessing, KindProcessing, KindResponse, KindIdle}, seen)
}

func TestPanel_ListingDoesNotAutoClose(t *testing.T) {
	sub := &fakeSubmitter{res: &model.VoiceResult{
		Transcript: "qu'ai-je demain",
		Result:     model.VoiceResponse{Type: "response", Text: "Rien", Action: model.ActionListed},
	}}
	var changed atomic.Int32
	p := New(&fakeRecorder{}, sub, WithAutoClose(10*time.Millisecond), WithEventsChanged(func() { changed.Add(1) }))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, KindResponse, p.State().Kind)
	assert.Zero(t, changed.Load())
}

func TestPanel_ErrorThenRetryRearms(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{err: model.NewVoiceError(model.ReasonQuotaExhausted, errors.New("Voice quota reached. Upgrade to Premium to continue."))}
	p := New(rec, sub)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()
	st := p.State()
	require.Equal(t, KindError, st.Kind)
	assert.Equal(t, model.ReasonQuotaExhausted, st.Reason)
	assert.Equal(t, "Voice quota reached. Upgrade to Premium to continue.", st.Error)
	assert.Empty(t, p.History())

	require.NoError(t, p.NewCommand(context.Background(), true))
	assert.Equal(t, KindRecording, p.State().Kind)
	assert.Equal(t, 2, rec.starts)
	assert.ErrorIs(t, p.NewCommand(context.Background(), false), ErrBusy)
}

func TestPanel_GenericErrorMessage(t *testing.T) {
	p := New(&fakeRecorder{}, &fakeSubmitter{err: errors.New("dial tcp: refused")})
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()
	st := p.State()
	assert.Equal(t, "Processing error", st.Error)
	assert.Equal(t, model.ReasonInternal, st.Reason)
}

func TestPanel_MicrophoneUnavailable(t *testing.T) {
	p := New(&fakeRecorder{startErr: recorder.ErrMicrophoneUnavailable}, &fakeSubmitter{})
	err := p.Start(context.Background())
	assert.ErrorIs(t, err, recorder.ErrMicrophoneUnavailable)
	st := p.State()
	assert.Equal(t, KindError, st.Kind)
	assert.Equal(t, ReasonMicrophoneUnavailable, st.Reason)
	assert.Equal(t, "Microphone unavailable", st.Error)
	assert.ErrorIs(t, p.Stop(), ErrNotRecording)
}

func TestPanel_LocalizedFallbackMessages(t *testing.T) {
	p := New(&fakeRecorder{}, &fakeSubmitter{err: errors.New("dial tcp: refused")}, WithLanguage("fr-FR"))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()
	st := p.State()
	assert.Equal(t, "Erreur de traitement", st.Error)
	assert.Equal(t, model.ReasonInternal, st.Reason)

	// A reason without server text is looked up in the same table.
	p = New(&fakeRecorder{}, &fakeSubmitter{err: model.NewVoiceError(model.ReasonQuotaExhausted, nil)}, WithLanguage("fr"))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()
	st = p.State()
	assert.Equal(t, "Quota vocal atteint. Passez à Premium pour continuer.", st.Error)
	assert.Equal(t, model.ReasonQuotaExhausted, st.Reason)

	p = New(&fakeRecorder{startErr: recorder.ErrMicrophoneUnavailable}, &fakeSubmitter{}, WithLanguage("fr"))
	assert.Error(t, p.Start(context.Background()))
	assert.Equal(t, "Microphone indisponible", p.State().Error)
}

func TestPanel_CloseWhileMicrophoneOpensReleasesIt(t *testing.T) {
	dev := newGatedDevice()
	rec := recorder.New(dev)
	var seenMu sync.Mutex
	var seen []Kind
	p := New(rec, &fakeSubmitter{res: created("ok")},
		WithOnChange(func(s State) { seenMu.Lock(); seen = append(seen, s.Kind); seenMu.Unlock() }))

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() { errc <- p.Start(ctx) }()
	<-dev.entered

	assert.ErrorIs(t, p.Stop(), ErrBusy, "no clip is taken before the microphone is open")
	assert.ErrorIs(t, p.Start(ctx), ErrBusy)

	p.Close()
	close(dev.gate)
	assert.ErrorIs(t, <-errc, ErrClosed)

	assert.False(t, rec.Recording())
	assert.Equal(t, int32(1), dev.opens.Load())
	assert.Equal(t, int32(1), dev.closes.Load(), "the stream opened after Close is released")
	assert.Equal(t, KindIdle, p.State().Kind)
	seenMu.Lock()
	assert.Equal(t, []Kind{KindIdle}, seen)
	seenMu.Unlock()

	// The panel is usable again afterwards.
	require.NoError(t, p.Start(ctx))
	assert.True(t, rec.Recording())
	p.Close()
	assert.False(t, rec.Recording())
	assert.Equal(t, int32(2), dev.closes.Load())
}

func TestPanel_StopAfterMicrophoneOpens(t *testing.T) {
	dev := newGatedDevice()
	rec := recorder.New(dev)
	sub := &fakeSubmitter{res: created("ok")}
	p := New(rec, sub, WithAutoClose(time.Hour))

	errc := make(chan error, 1)
	go func() { errc <- p.Start(context.Background()) }()
	<-dev.entered
	close(dev.gate)
	require.NoError(t, <-errc)

	require.NoError(t, p.Stop())
	p.Wait()
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, int32(1), dev.closes.Load())
	assert.Equal(t, KindResponse, p.State().Kind)
}

func TestPanel_CloseCancelsInFlight(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{block: true}
	p := New(rec, sub)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())

	p.Close()
	p.Wait()
	assert.ErrorIs(t, sub.ctxErr, context.Canceled)
	assert.Equal(t, KindIdle, p.State().Kind, "late failure must not resurface")
	assert.Equal(t, 2, rec.stops, "close stops the recorder")
}

func TestPanel_CloseCancelsAutoClose(t *testing.T) {
	var closed atomic.Int32
	p := New(&fakeRecorder{}, &fakeSubmitter{res: created("ok")},
		WithAutoClose(30*time.Millisecond), WithOnClose(func() { closed.Add(1) }))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()

	p.Close()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
}

func TestPanel_NewCommandCancelsAutoClose(t *testing.T) {
	var closed atomic.Int32
	p := New(&fakeRecorder{}, &fakeSubmitter{res: created("ok")},
		WithAutoClose(30*time.Millisecond), WithOnClose(func() { closed.Add(1) }))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	p.Wait()

	require.NoError(t, p.NewCommand(context.Background(), false))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, closed.Load())
	assert.Len(t, p.History(), 2, "memory survives a new command")
}

func TestPanel_HardStopSubmits(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{res: created("ok")}
	p := New(rec, sub, WithAutoClose(time.Hour))
	require.NoError(t, p.Start(context.Background()))

	rec.limit()
	p.Wait()
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, KindResponse, p.State().Kind)

	// A limit firing outside recording is ignored.
	rec.limit()
	assert.Equal(t, 1, sub.calls)
}

func TestPanel_HistoryReplayedAndBounded(t *testing.T) {
	sub := &fakeSubmitter{res: &model.VoiceResult{Transcript: "t", Result: model.VoiceResponse{Text: "r"}}}
	p := New(&fakeRecorder{}, sub, WithMaxHistory(4))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Start(ctx))
		require.NoError(t, p.Stop())
		p.Wait()
		require.NoError(t, p.NewCommand(ctx, false))
	}
	require.Len(t, sub.histories, 3)
	assert.Empty(t, sub.histories[0])
	assert.Len(t, sub.histories[1], 2)
	assert.Len(t, sub.histories[2], 4)
	assert.Len(t, p.History(), 4)
	assert.Equal(t, model.RoleUser, p.History()[0].Role)
}
