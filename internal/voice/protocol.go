package voice

import (
	"strings"

	"iris/internal/visitor"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types exchanged with the voice server.
const (
	TypeInit           = "init"
	TypeInitCall       = "init_call"
	TypeUserSpeech     = "user_speech"
	TypeEndCall        = "end_call"
	TypeAssistantAudio = "assistant_audio"
	TypeStatus         = "status"

	StatusProcessing = "processing"
)

type initData struct {
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	visitor.Profile
}

type initMessage struct {
	Type string   `json:"type"`
	Data initData `json:"data"`
}

type typeOnly struct {
	Type string `json:"type"`
}

type userSpeech struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	Transcription string `json:"transcription"`
}

// inbound covers every server message; unused fields stay empty.
type inbound struct {
	Type   string `json:"type"`
	Audio  string `json:"audio"`
	Status string `json:"status"`
}

func newInit(p visitor.Profile) initMessage {
	return initMessage{Type: TypeInit, Data: initData{Origin: "phone", Channel: "voice", Profile: p}}
}

func newUserSpeech(text string) userSpeech {
	return userSpeech{Type: TypeUserSpeech, Message: text, Transcription: text}
}

// Instruction keys shown when microphone access is denied.
const (
	KeyMicDeniedChrome  = "voice.mic-denied-instructions-chrome"
	KeyMicDeniedSafari  = "voice.mic-denied-instructions-safari"
	KeyMicDeniedGeneric = "voice.mic-denied-instructions-generic"
)

// DeniedInstructionsKey picks remediation instructions by user agent.
func DeniedInstructionsKey(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "edge"):
		return KeyMicDeniedChrome
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return KeyMicDeniedSafari
	default:
		return KeyMicDeniedGeneric
	}
}
