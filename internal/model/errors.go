package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("not authenticated")
)

// Reason is a machine-readable failure cause the client routes on
// (upgrade prompt, retry, "try again later").
type Reason string

const (
	ReasonAudioMissing        Reason = "audio_missing"
	ReasonEmptyAudio          Reason = "empty_audio"
	ReasonFileTooLarge        Reason = "file_too_large"
	ReasonQuotaExhausted      Reason = "quota_exhausted"
	ReasonPremiumRequired     Reason = "premium_required"
	ReasonCouldNotUnderstand  Reason = "could_not_understand"
	ReasonTranscriptionFailed Reason = "transcription_failed"
	ReasonAssistantFailed     Reason = "assistant_failed"
	ReasonUnauthenticated     Reason = "unauthenticated"
	ReasonInternal            Reason = "internal"
)

// VoiceError is returned by every failing stage of a voice round-trip.
type VoiceError struct {
	Reason Reason
	Err    error
}

func (e *VoiceError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *VoiceError) Unwrap() error { return e.Err }

// NewVoiceError wraps err with a reason.
func NewVoiceError(reason Reason, err error) *VoiceError {
	return &VoiceError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason of err, or ReasonInternal.
func ReasonOf(err error) Reason {
	var ve *VoiceError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	if errors.Is(err, ErrUnauthenticated) {
		return ReasonUnauthenticated
	}
	return ReasonInternal
}
