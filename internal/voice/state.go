package voice

// State is the phase of a call.
type State int

const (
	Idle State = iota
	RequestingMic
	Ringing
	Connecting
	Greeting
	Listening
	Processing
	Speaking
	Ended
)

var stateNames = [...]string{
	Idle:          "idle",
	RequestingMic: "requesting-mic",
	Ringing:       "ringing",
	Connecting:    "connecting",
	Greeting:      "greeting",
	Listening:     "listening",
	Processing:    "processing",
	Speaking:      "speaking",
	Ended:         "ended",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status keys shown while a call progresses.
const (
	KeyInitializing = "voice.status-initializing"
	KeyCalling      = "voice.status-calling"
	KeyConnecting   = "voice.status-connecting"
	KeyListening    = "voice.status-listening"
	KeyProcessing   = "voice.status-processing"
	KeySpeaking     = "voice.status-speaking"
	KeyEnded        = "voice.status-ended"
	KeyError        = "voice.status-error"
	KeyMicDenied    = "voice.status-mic-denied"
)

// Update is published whenever the state or the status line changes.
type Update struct {
	State           State
	StatusKey       string
	InstructionsKey string
	PanelOpen       bool
	// Err is the failure behind a mic-denied or error status.
	Err error
}

// Snapshot is a consistent view of the session fields.
type Snapshot struct {
	State           State
	CallActive      bool
	Playing         bool
	InitialGreeting bool
	Listening       bool
	Connected       bool
	Queued          int
	PanelOpen       bool
}
