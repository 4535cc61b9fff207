package respond

import (
	"strings"

	"github.com/paul-bouzian/saycal/internal/model"
)

// Lang is a supported UI language.
type Lang string

const (
	LangEN Lang = "en"
	LangFR Lang = "fr"
)

var messages = map[model.Reason]map[Lang]string{
	model.ReasonAudioMissing: {
		LangEN: "Audio file missing",
		LangFR: "Fichier audio manquant",
	},
	model.ReasonEmptyAudio: {
		LangEN: "Empty audio file",
		LangFR: "Fichier audio vide",
	},
	model.ReasonFileTooLarge: {
		LangEN: "Recording is too long",
		LangFR: "L'enregistrement est trop long",
	},
	model.ReasonQuotaExhausted: {
		LangEN: "Voice quota reached. Upgrade to Premium to continue.",
		LangFR: "Quota vocal atteint. Passez à Premium pour continuer.",
	},
	model.ReasonPremiumRequired: {
		LangEN: "This feature requires Premium.",
		LangFR: "Cette fonctionnalité nécessite Premium.",
	},
	model.ReasonCouldNotUnderstand: {
		LangEN: "I didn't understand. Could you repeat?",
		LangFR: "Je n'ai pas compris. Pouvez-vous répéter ?",
	},
	model.ReasonTranscriptionFailed: {
		LangEN: "Transcription failed. Please try again later.",
		LangFR: "La transcription a échoué. Réessayez plus tard.",
	},
	model.ReasonAssistantFailed: {
		LangEN: "The assistant is unavailable. Please try again later.",
		LangFR: "L'assistant est indisponible. Réessayez plus tard.",
	},
	model.ReasonUnauthenticated: {
		LangEN: "Not authenticated",
		LangFR: "Non authentifié",
	},
	model.ReasonInternal: {
		LangEN: "Processing error",
		LangFR: "Erreur de traitement",
	},
}

// Message returns the user-facing text for reason in lang, falling back to English.
func Message(reason model.Reason, lang Lang) string {
	m, ok := messages[reason]
	if !ok {
		m = messages[model.ReasonInternal]
	}
	if s, ok := m[lang]; ok {
		return s
	}
	return m[LangEN]
}

// Language picks the first supported language of an Accept-Language header.
// Quality values are ignored; order is taken as preference.
func Language(header string) Lang {
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		switch {
		case strings.HasPrefix(tag, "fr"):
			return LangFR
		case strings.HasPrefix(tag, "en"):
			return LangEN
		}
	}
	return LangEN
}
