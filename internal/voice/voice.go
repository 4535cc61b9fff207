// Package voice runs one voice command round-trip: quota, transcription,
// assistant.
package voice

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/assistant"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/quota"
	"github.com/paul-bouzian/saycal/internal/transcribe"
)

type Gate interface {
	CheckAndIncrement(ctx context.Context, userID string) (quota.Decision, error)
}

type Transcriber interface {
	Validate(audio transcribe.Audio) error
	Transcribe(ctx context.Context, audio transcribe.Audio) (string, error)
}

type Assistant interface {
	Run(ctx context.Context, in assistant.Input) (model.VoiceResponse, error)
}

// Recorder observes round-trip outcomes (metrics). reason is "ok" on success.
type Recorder interface {
	VoiceOutcome(reason string)
}

type Service struct {
	gate        Gate
	transcriber Transcriber
	assistant   Assistant
	rec         Recorder
	log         zerolog.Logger
}

func NewService(g Gate, t Transcriber, a Assistant, rec Recorder, log zerolog.Logger) *Service {
	return &Service{gate: g, transcriber: t, assistant: a, rec: rec, log: log}
}

type Command struct {
	// Audio is nil when the request carried no clip.
	Audio    *transcribe.Audio
	History  []model.ConversationTurn
	Location *time.Location
	Progress func(model.Stage)
}

// ProcessVoiceCommand runs the stages strictly in order. Every failure is a
// *model.VoiceError carrying its reason.
func (s *Service) ProcessVoiceCommand(ctx context.Context, userID string, cmd Command) (res *model.VoiceResult, err error) {
	start := time.Now()
	defer func() {
		reason := "ok"
		if err != nil {
			reason = string(model.ReasonOf(err))
		}
		if s.rec != nil {
			s.rec.VoiceOutcome(reason)
		}
		ev := s.log.Info()
		if err != nil && reason == string(model.ReasonInternal) {
			ev = s.log.Error().Stack().Err(err)
		}
		ev.Str("user_id", userID).Str("outcome", reason).Dur("elapsed", time.Since(start)).Msg("voice command")
	}()

	progress := cmd.Progress
	if progress == nil {
		progress = func(model.Stage) {}
	}

	if userID == "" {
		return nil, model.NewVoiceError(model.ReasonUnauthenticated, model.ErrUnauthenticated)
	}
	if cmd.Audio == nil {
		return nil, model.NewVoiceError(model.ReasonAudioMissing, errors.New("audio file missing"))
	}
	if err := s.transcriber.Validate(*cmd.Audio); err != nil {
		return nil, err
	}

	decision, err := s.gate.CheckAndIncrement(ctx, userID)
	if err != nil {
		var ve *model.VoiceError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, model.NewVoiceError(model.ReasonInternal, err)
	}

	progress(model.StageTranscribing)
	transcript, err := s.transcriber.Transcribe(ctx, *cmd.Audio)
	if err != nil {
		return nil, err
	}
	if transcript == "" {
		return nil, model.NewVoiceError(model.ReasonCouldNotUnderstand, errors.New("empty transcript"))
	}

	answer, err := s.assistant.Run(ctx, assistant.Input{
		UserID:    userID,
		Utterance: transcript,
		History:   cmd.History,
		Location:  cmd.Location,
		Progress:  progress,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewVoiceError(model.ReasonAssistantFailed, err)
	}

	return &model.VoiceResult{
		Transcript: transcript,
		Result:     answer,
		Remaining:  decision.Remaining,
	}, nil
}
