package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paul-bouzian/saycal/internal/assistant"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/quota"
	"github.com/paul-bouzian/saycal/internal/transcribe"
)

type trace struct{ steps []string }

type fakeGate struct {
	tr  *trace
	d   quota.Decision
	err error
}

func (g *fakeGate) CheckAndIncrement(context.Context, string) (quota.Decision, error) {
	g.tr.steps = append(g.tr.steps, "quota")
	return g.d, g.err
}

type fakeTranscriber struct {
	tr   *trace
	text string
	err  error
}

func (f *fakeTranscriber) Validate(a transcribe.Audio) error {
	if len(a.Data) == 0 {
		return model.NewVoiceError(model.ReasonEmptyAudio, errors.New("empty"))
	}
	return nil
}

func (f *fakeTranscriber) Transcribe(context.Context, transcribe.Audio) (string, error) {
	f.tr.steps = append(f.tr.steps, "transcribe")
	return f.text, f.err
}

type fakeAssistant struct {
	tr   *trace
	resp model.VoiceResponse
	err  error
	in   assistant.Input
}

func (f *fakeAssistant) Run(_ context.Context, in assistant.Input) (model.VoiceResponse, error) {
	f.tr.steps = append(f.tr.steps, "assistant")
	f.in = in
	if in.Progress != nil {
		in.Progress(model.StageThinking)
	}
	return f.resp, f.err
}

type outcomes struct{ got []string }

func (o *outcomes) VoiceOutcome(reason string) { o.got = append(o.got, reason) }

func newFixture() (*trace, *fakeGate, *fakeTranscriber, *fakeAssistant) {
	tr := &trace{}
	return tr,
		&fakeGate{tr: tr, d: quota.Decision{Allowed: true, Remaining: 41, Limit: 100, Plan: model.PlanFree}},
		&fakeTranscriber{tr: tr, text: "lunch tomorrow at noon"},
		&fakeAssistant{tr: tr, resp: model.VoiceResponse{Type: "success", Text: "Done", Action: model.ActionCreated}}
}

func clip() *transcribe.Audio { return &transcribe.Audio{Data: []byte("RIFF"), MimeType: "audio/wav"} }

func TestProcessVoiceCommand_HappyPathInOrder(t *testing.T) {
	tr, g, tx, as := newFixture()
	rec := &outcomes{}
	svc := NewService(g, tx, as, rec, zerolog.Nop())
	var stages []model.Stage
	history := []model.ConversationTurn{{Role: model.RoleUser, Content: "hi"}}

	res, err := svc.ProcessVoiceCommand(context.Background(), "u1", Command{
		Audio: clip(), History: history,
		Progress: func(s model.Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"quota", "transcribe", "assistant"}, tr.steps)
	assert.Equal(t, &model.VoiceResult{
		Transcript: "lunch tomorrow at noon",
		Result:     model.VoiceResponse{Type: "success", Text: "Done", Action: model.ActionCreated},
		Remaining:  41,
	}, res)
	assert.Equal(t, history, as.in.History)
	assert.Equal(t, []model.Stage{model.StageTranscribing, model.StageThinking}, stages)
	assert.Equal(t, []string{"ok"}, rec.got)
}

func TestProcessVoiceCommand_Failures(t *testing.T) {
	cases := []struct {
		name   string
		user   string
		audio  *transcribe.Audio
		mutate func(*fakeGate, *fakeTranscriber, *fakeAssistant)
		reason model.Reason
		steps  []string
	}{
		{name: "unauthenticated", user: "", audio: clip(), reason: model.ReasonUnauthenticated},
		{name: "missing audio", user: "u1", audio: nil, reason: model.ReasonAudioMissing},
		{name: "empty audio never charges quota", user: "u1", audio: &transcribe.Audio{}, reason: model.ReasonEmptyAudio},
		{name: "quota exhausted", user: "u1", audio: clip(),
			mutate: func(g *fakeGate, _ *fakeTranscriber, _ *fakeAssistant) {
				g.d = quota.Decision{Allowed: false}
				g.err = model.NewVoiceError(model.ReasonQuotaExhausted, errors.New("spent"))
			},
			reason: model.ReasonQuotaExhausted, steps: []string{"quota"}},
		{name: "store failure", user: "u1", audio: clip(),
			mutate: func(g *fakeGate, _ *fakeTranscriber, _ *fakeAssistant) { g.err = errors.New("db down") },
			reason: model.ReasonInternal, steps: []string{"quota"}},
		{name: "transcription failed", user: "u1", audio: clip(),
			mutate: func(_ *fakeGate, tx *fakeTranscriber, _ *fakeAssistant) {
				tx.err = model.NewVoiceError(model.ReasonTranscriptionFailed, errors.New("401"))
			},
			reason: model.ReasonTranscriptionFailed, steps: []string{"quota", "transcribe"}},
		{name: "empty transcript", user: "u1", audio: clip(),
			mutate: func(_ *fakeGate, tx *fakeTranscriber, _ *fakeAssistant) { tx.text = "" },
			reason: model.ReasonCouldNotUnderstand, steps: []string{"quota", "transcribe"}},
		{name: "assistant failed", user: "u1", audio: clip(),
			mutate: func(_ *fakeGate, _ *fakeTranscriber, as *fakeAssistant) { as.err = assistant.ErrStepLimit },
			reason: model.ReasonAssistantFailed, steps: []string{"quota", "transcribe", "assistant"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, g, tx, as := newFixture()
			if tc.mutate != nil {
				tc.mutate(g, tx, as)
			}
			rec := &outcomes{}
			svc := NewService(g, tx, as, rec, zerolog.Nop())

			res, err := svc.ProcessVoiceCommand(context.Background(), tc.user, Command{Audio: tc.audio})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tc.reason, model.ReasonOf(err))
			assert.Equal(t, tc.steps, tr.steps)
			assert.Equal(t, []string{string(tc.reason)}, rec.got)
		})
	}
}
