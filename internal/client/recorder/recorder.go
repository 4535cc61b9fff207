// Package recorder owns a microphone capture session: buffered PCM slices,
// a live level meter, and a hard stop at the maximum clip length.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

const (
	MimeTypeWAV        = "audio/wav"
	DefaultMaxDuration = 30 * time.Second
	DefaultSlice       = 100 * time.Millisecond
)

// Format describes the S16LE PCM stream a Device delivers.
type Format struct {
	SampleRate int
	Channels   int
}

var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

func (f Format) bytesPer(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.Channels * bitsPerSample / 8
}

// Device opens an input stream. onData may be called from any goroutine
// until the returned Stream is closed.
type Device interface {
	Open(f Format, onData func(pcm []byte)) (Stream, error)
}

type Stream interface {
	Close() error
}

// Blob is one finished recording.
type Blob struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Empty reports whether no audio was captured.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

type Option func(*Recorder)

func WithMaxDuration(d time.Duration) Option { return func(r *Recorder) { r.maxDur = d } }
func WithFormat(f Format) Option             { return func(r *Recorder) { r.format = f } }
func WithSlice(d time.Duration) Option       { return func(r *Recorder) { r.slice = d } }

type Recorder struct {
	dev    Device
	format Format
	maxDur time.Duration
	slice  time.Duration

	mu      sync.Mutex
	sess    *session
	onLimit func()
	elapsed atomic.Int32
}

// session holds the resources of one Start. Each resource is released at
// most once; released fields are set to nil.
type session struct {
	stream    Stream
	analyser  *Analyser
	capturing bool
	pending   []byte
	slices    [][]byte
	frames    int
	done      chan struct{}
	limit     *time.Timer
}

func New(dev Device, opts ...Option) *Recorder {
	r := &Recorder{dev: dev, format: DefaultFormat, maxDur: DefaultMaxDuration, slice: DefaultSlice}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnLimit registers f to run when the hard-stop timer ends a capture.
func (r *Recorder) OnLimit(f func()) {
	r.mu.Lock()
	r.onLimit = f
	r.mu.Unlock()
}

// Start releases any previous session and begins a new capture.
func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	var closePrev func()
	if r.sess != nil {
		closePrev = r.endCapture(r.sess)
		r.sess = nil
	}
	r.elapsed.Store(0)
	r.mu.Unlock()
	if closePrev != nil {
		closePrev()
	}

	s := &session{analyser: newAnalyser(), capturing: true, done: make(chan struct{})}
	stream, err := r.dev.Open(r.format, func(pcm []byte) { r.onData(s, pcm) })
	if err != nil {
		s.analyser.Close()
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	r.mu.Lock()
	if r.sess != nil {
		// A concurrent Start won; keep the newer session.
		r.mu.Unlock()
		_ = stream.Close()
		s.analyser.Close()
		return fmt.Errorf("%w: superseded", ErrMicrophoneUnavailable)
	}
	s.stream = stream
	r.sess = s
	s.limit = time.AfterFunc(r.maxDur, func() { r.hitLimit(s) })
	r.mu.Unlock()

	go r.tick(s)
	return nil
}

func (r *Recorder) tick(s *session) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			r.advance(s)
		}
	}
}

// advance counts one second of s while it is still the capturing session.
func (r *Recorder) advance(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != s || !s.capturing {
		return
	}
	if r.elapsed.Load() < int32(r.maxDur/time.Second) {
		r.elapsed.Add(1)
	}
}

func (r *Recorder) onData(s *session, pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != s || !s.capturing {
		return
	}
	s.analyser.Write(pcm)
	s.pending = append(s.pending, pcm...)
	size := r.format.bytesPer(r.slice)
	for size > 0 && len(s.pending) >= size {
		s.slices = append(s.slices, append([]byte(nil), s.pending[:size]...))
		s.pending = s.pending[size:]
	}
}

func (r *Recorder) hitLimit(s *session) {
	r.mu.Lock()
	if r.sess != s || !s.capturing {
		r.mu.Unlock()
		return
	}
	closeRes := r.endCapture(s)
	cb := r.onLimit
	r.mu.Unlock()
	closeRes()
	if cb != nil {
		cb()
	}
}

// endCapture marks s stopped and flushes the last partial slice; buffered
// audio stays available to Stop. It detaches the stream and analyser and
// returns a func closing them, to be run without r.mu held since a device may
// wait for an in-flight onData on Close.
func (r *Recorder) endCapture(s *session) func() {
	if s.capturing {
		s.capturing = false
		close(s.done)
		if s.limit != nil {
			s.limit.Stop()
		}
		if len(s.pending) > 0 {
			s.slices = append(s.slices, s.pending)
			s.pending = nil
		}
	}
	stream, an := s.stream, s.analyser
	s.stream, s.analyser = nil, nil
	return func() {
		if stream != nil {
			_ = stream.Close()
		}
		if an != nil {
			an.Close()
		}
	}
}

// Stop ends the capture and returns the concatenated clip. It is safe to
// call from any state and any number of times; with no session it returns an
// empty Blob.
func (r *Recorder) Stop() Blob {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	r.elapsed.Store(0)
	if s == nil {
		r.mu.Unlock()
		return Blob{MimeType: MimeTypeWAV}
	}
	closeRes := r.endCapture(s)
	slices := s.slices
	s.slices = nil
	r.mu.Unlock()
	closeRes()

	var n int
	for _, b := range slices {
		n += len(b)
	}
	if n == 0 {
		return Blob{MimeType: MimeTypeWAV}
	}
	pcm := make([]byte, 0, n)
	for _, b := range slices {
		pcm = append(pcm, b...)
	}

	var dur time.Duration
	if bytesPerSec := r.format.bytesPer(time.Second); bytesPerSec > 0 {
		dur = time.Duration(int64(n) * int64(time.Second) / int64(bytesPerSec))
	}
	return Blob{Data: encodeWAV(pcm, r.format.SampleRate, r.format.Channels), MimeType: MimeTypeWAV, Duration: dur}
}

// Recording reports whether input is being captured.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil && r.sess.capturing
}

// Elapsed is the whole seconds of the current capture, capped at the maximum
// duration. It reads 0 once the clip has been taken by Stop.
func (r *Recorder) Elapsed() int { return int(r.elapsed.Load()) }

// Level is the live input level, 0 when not capturing.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil || r.sess.analyser == nil {
		return 0
	}
	return r.sess.analyser.Level()
}
