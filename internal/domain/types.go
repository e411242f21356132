package domain

import (
	"errors"
	"strings"
)

// ErrUnsupportedLanguage is returned for target languages the server cannot produce.
var ErrUnsupportedLanguage = errors.New("unsupported target language")

// TargetLanguage is the language captions are translated into.
type TargetLanguage string

const (
	TargetLanguageEnglish   TargetLanguage = "en"
	TargetLanguageNorwegian TargetLanguage = "no"
	TargetLanguagePolish    TargetLanguage = "pl"
)

// TargetLanguages lists the selectable languages in display order.
var TargetLanguages = []TargetLanguage{
	TargetLanguageEnglish,
	TargetLanguageNorwegian,
	TargetLanguagePolish,
}

// ParseTargetLanguage normalizes regional and Norwegian variants to a supported code.
// An empty value selects English.
func ParseTargetLanguage(value string) (TargetLanguage, error) {
	code := strings.ToLower(strings.TrimSpace(value))
	switch {
	case code == "":
		return TargetLanguageEnglish, nil
	case code == "no" || code == "nb" || code == "nn" || code == "nb-no" || code == "nn-no":
		return TargetLanguageNorwegian, nil
	case code == "en" || strings.HasPrefix(code, "en-"):
		return TargetLanguageEnglish, nil
	case code == "pl" || strings.HasPrefix(code, "pl-"):
		return TargetLanguagePolish, nil
	default:
		return "", ErrUnsupportedLanguage
	}
}

// ConnectionState mirrors the peer connection state enumeration.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

// Terminal reports whether the state ends the session.
func (s ConnectionState) Terminal() bool {
	return s == ConnectionStateFailed || s == ConnectionStateClosed
}

// ErrorCode identifies user-facing failure classes.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeLanguage    ErrorCode = "language"
	ErrorCodeMedia       ErrorCode = "media"
	ErrorCodeSignaling   ErrorCode = "signaling"
	ErrorCodeNegotiation ErrorCode = "negotiation"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
)

// Caption is one translated utterance pushed by the server.
type Caption struct {
	SourceLanguage string `json:"src_lang"`
	TargetLanguage string `json:"tgt_lang"`
	Text           string `json:"text"`
}

// SessionMetadata is surfaced by the server's hello message.
type SessionMetadata struct {
	LogPath string `json:"logPath,omitempty"`
}

// Offer is the signaling request body.
type Offer struct {
	SDP        string         `json:"sdp"`
	TargetLang TargetLanguage `json:"target_lang"`
}

// Status summarizes the state exposed to the UI.
type Status struct {
	Connected bool   `json:"connected"`
	LogPath   string `json:"logPath,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Diagnostics counts side-channel frames that never reached the caption log.
type Diagnostics struct {
	DroppedMessages  uint64 `json:"droppedMessages"`
	IgnoredMessages  uint64 `json:"ignoredMessages"`
	CaptionsReceived uint64 `json:"captionsReceived"`
}
