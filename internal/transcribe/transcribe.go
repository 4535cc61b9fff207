// Package transcribe converts recorded audio to text through a speech-to-text provider.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/model"
)

// Audio is one recorded clip.
type Audio struct {
	Data     []byte
	MimeType string
}

// Provider is a speech-to-text backend.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Recorder observes provider latency (metrics).
type Recorder interface {
	TranscriptionObserved(provider string, d time.Duration, err error)
}

type Adapter struct {
	provider Provider
	maxBytes int
	rec      Recorder
	log      zerolog.Logger
}

func NewAdapter(p Provider, maxBytes int, log zerolog.Logger, rec Recorder) *Adapter {
	return &Adapter{provider: p, maxBytes: maxBytes, rec: rec, log: log}
}

// Validate rejects clips the provider must never see.
func (a *Adapter) Validate(audio Audio) error {
	if len(audio.Data) == 0 {
		return model.NewVoiceError(model.ReasonEmptyAudio, errors.New("audio clip has no bytes"))
	}
	if a.maxBytes > 0 && len(audio.Data) > a.maxBytes {
		return model.NewVoiceError(model.ReasonFileTooLarge,
			fmt.Errorf("audio clip is %d bytes, limit is %d", len(audio.Data), a.maxBytes))
	}
	return nil
}

// Transcribe validates the clip before calling out and returns the trimmed
// transcript, which may be empty.
func (a *Adapter) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if err := a.Validate(audio); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := a.provider.Transcribe(ctx, audio)
	elapsed := time.Since(start)
	if a.rec != nil {
		a.rec.TranscriptionObserved(a.provider.Name(), elapsed, err)
	}
	if err != nil {
		a.log.Error().Stack().Err(err).
			Str("stage", "transcribe").
			Str("provider", a.provider.Name()).
			Int("bytes", len(audio.Data)).
			Dur("elapsed", elapsed).
			Msg("transcription failed")
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", model.NewVoiceError(model.ReasonTranscriptionFailed, err)
	}
	a.log.Debug().
		Str("stage", "transcribe").
		Str("provider", a.provider.Name()).
		Int("bytes", len(audio.Data)).
		Dur("elapsed", elapsed).
		Msg("transcribed")
	return strings.TrimSpace(text), nil
}
