package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/api/respond"
	"github.com/paul-bouzian/saycal/internal/api/validate"
	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/quota"
	"github.com/paul-bouzian/saycal/internal/transcribe"
	"github.com/paul-bouzian/saycal/internal/voice"
)

// NDJSON is the media type of streamed voice responses.
const NDJSON = "application/x-ndjson"

// maxHistoryPayload bounds the replayed conversation a client may send.
const maxHistoryPayload = 100

type VoiceProcessor interface {
	ProcessVoiceCommand(ctx context.Context, userID string, cmd voice.Command) (*model.VoiceResult, error)
}

type QuotaPeeker interface {
	Peek(ctx context.Context, userID string) (quota.Quota, error)
}

// VoiceHandler is the HTTP transport of voice round-trips.
type VoiceHandler struct {
	svc        VoiceProcessor
	quota      QuotaPeeker
	maxBytes   int64
	defaultLoc *time.Location
	log        zerolog.Logger
}

func NewVoiceHandler(svc VoiceProcessor, q QuotaPeeker, maxBytes int64, loc *time.Location, log zerolog.Logger) *VoiceHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &VoiceHandler{svc: svc, quota: q, maxBytes: maxBytes, defaultLoc: loc, log: log}
}

// StageLine and the result/error lines make up an NDJSON voice stream.
type StageLine struct {
	Stage model.Stage `json:"stage"`
}

type ResultLine struct {
	Result *model.VoiceResult `json:"result"`
}

type ErrorLine struct {
	Error respond.ErrorResponse `json:"error"`
}

// SubmitCommand POST /api/voice/commands
//
// Multipart form: audio (file), history (JSON array of turns), tz (IANA zone).
func (h *VoiceHandler) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	// Leave room for the other form fields; the adapter enforces maxBytes on the clip.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.WriteErr(w, r, model.NewVoiceError(model.ReasonFileTooLarge, err))
			return
		}
		respond.WriteBadRequest(w, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	cmd := voice.Command{Location: h.defaultLoc}
	if tz := r.FormValue("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			respond.WriteBadRequest(w, "Invalid tz")
			return
		}
		cmd.Location = loc
	}
	if raw := r.FormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cmd.History); err != nil {
			respond.WriteBadRequest(w, "Invalid history")
			return
		}
		if err := validate.HistoryTurns(len(cmd.History), maxHistoryPayload); err != nil {
			respond.WriteBadRequest(w, err.Error())
			return
		}
	}
	audio, err := readAudio(r, h.maxBytes)
	if err != nil {
		respond.WriteInternalError(w, "Failed to read audio")
		return
	}
	cmd.Audio = audio

	if !strings.Contains(r.Header.Get("Accept"), NDJSON) {
		res, err := h.svc.ProcessVoiceCommand(r.Context(), userID, cmd)
		if err != nil {
			respond.WriteErr(w, r, err)
			return
		}
		respond.WriteJSON(w, http.StatusOK, res)
		return
	}
	h.stream(w, r, userID, cmd)
}

// stream writes one line per stage. Failures before the first line keep their
// HTTP status; later ones become an error line.
func (h *VoiceHandler) stream(w http.ResponseWriter, r *http.Request, userID string, cmd voice.Command) {
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	writeLine := func(v any) {
		if !started {
			w.Header().Set("Content-Type", NDJSON)
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(v); err != nil {
			h.log.Debug().Err(err).Msg("voice stream write")
			return
		}
		_ = rc.Flush()
	}
	cmd.Progress = func(s model.Stage) { writeLine(StageLine{Stage: s}) }

	res, err := h.svc.ProcessVoiceCommand(r.Context(), userID, cmd)
	switch {
	case err != nil && !started:
		respond.WriteErr(w, r, err)
	case err != nil:
		status := respond.StatusFor(err)
		lang := respond.Language(r.Header.Get("Accept-Language"))
		reason := model.ReasonOf(err)
		writeLine(ErrorLine{Error: respond.ErrorResponse{
			Error:   http.StatusText(status),
			Code:    status,
			Message: respond.Message(reason, lang),
			Reason:  reason,
		}})
	default:
		writeLine(ResultLine{Result: res})
	}
}

// readAudio returns nil when the form has no audio part. At most maxBytes+1
// bytes are read so oversize clips are still detected downstream.
func readAudio(r *http.Request, maxBytes int64) (*transcribe.Audio, error) {
	f, hdr, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	mime := hdr.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/wav"
	}
	return &transcribe.Audio{Data: data, MimeType: mime}, nil
}

// GetQuota GET /api/voice/quota
func (h *VoiceHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	q, err := h.quota.Peek(r.Context(), userID)
	if err != nil {
		respond.WriteErr(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, q)
}
