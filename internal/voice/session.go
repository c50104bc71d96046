// Package voice runs a phone-style call with the remote voice assistant:
// ring, connect, greet, then alternate listening and speaking until either
// side hangs up.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"iris/internal/asr"
	"iris/internal/audio"
	"iris/internal/metrics"
	"iris/internal/visitor"

	"github.com/sirupsen/logrus"
)

// ErrMicDenied wraps the microphone error reported in Update.Err.
var ErrMicDenied = errors.New("voice: microphone access denied")

// DefaultEndDelay keeps the closing status readable after a user hang-up.
const DefaultEndDelay = 1500 * time.Millisecond

// ProfileSource supplies the metadata sent in the init message.
type ProfileSource interface {
	Profile() (visitor.Profile, error)
}

// Deps are the collaborators a session drives.
type Deps struct {
	Mic        asr.Microphone
	Recognizer asr.Recognizer
	Player     audio.Player
	Dialer     Dialer
	Profiles   ProfileSource
	Logger     *logrus.Logger
}

// Options configures a session.
type Options struct {
	URL       string
	UserAgent string
	Ringtone  audio.Clip
	EndDelay  time.Duration
	// OnUpdate is called from the session goroutine; it must not block.
	OnUpdate func(Update)
}

// Session is a single call widget. All fields below the channel are owned
// by the goroutine running Run; other goroutines talk to it through events.
type Session struct {
	deps Deps
	opts Options

	events chan event
	done   chan struct{}

	ctx             context.Context
	epoch           uint64
	state           State
	callActive      bool
	isPlaying       bool
	initialGreeting bool
	queue           []audio.Clip
	conn            Conn
	panelOpen       bool
	statusKey       string
	instructionsKey string
	lastErr         error
	startedAt       time.Time

	listenGen    uint64
	listenCancel context.CancelFunc
	listenDone   chan struct{}

	playGen    uint64
	playCancel context.CancelFunc
	playDone   chan struct{}

	ringCancel context.CancelFunc
	ringDone   chan struct{}
	dialCancel context.CancelFunc

	mu   sync.Mutex
	snap Snapshot
}

func New(deps Deps, opts Options) *Session {
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(Update) {}
	}
	return &Session{
		deps:   deps,
		opts:   opts,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
}

type event interface{}

type (
	evStart     struct{}
	evEnd       struct{ user bool }
	evMicResult struct {
		epoch uint64
		err   error
	}
	evRingtoneDone struct {
		epoch uint64
		err   error
	}
	evDialed struct {
		epoch uint64
		conn  Conn
		err   error
	}
	evMessage struct {
		epoch uint64
		data  []byte
	}
	evClosed struct {
		epoch uint64
		err   error
	}
	evPlaybackDone struct {
		epoch, gen uint64
		err        error
	}
	evSpeech struct {
		epoch, gen uint64
		text       string
	}
	evListenFailed struct {
		epoch, gen uint64
		err        error
	}
	evIdle struct{ epoch uint64 }
)

// Start begins a call. It is a no-op while a call is active.
func (s *Session) Start() { s.post(evStart{}) }

// End hangs up. userInitiated selects the delayed, user-visible ending; on an
// inactive call it only dismisses the panel.
func (s *Session) End(userInitiated bool) { s.post(evEnd{user: userInitiated}) }

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run processes events until ctx is done, then tears down any active call.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.end(false, "shutdown")
			s.publish()
			return nil
		case ev := <-s.events:
			s.handle(ev)
			s.publish()
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case evStart:
		s.start()
	case evEnd:
		s.end(ev.user, "user")
	case evMicResult:
		s.onMicResult(ev)
	case evRingtoneDone:
		s.onRingtoneDone(ev)
	case evDialed:
		s.onDialed(ev)
	case evMessage:
		s.onMessage(ev)
	case evClosed:
		s.onClosed(ev)
	case evPlaybackDone:
		s.onPlaybackDone(ev)
	case evSpeech:
		s.onSpeech(ev)
	case evListenFailed:
		if ev.epoch != s.epoch || ev.gen != s.listenGen {
			return
		}
		s.deps.Logger.WithError(ev.err).Error("speech recognition failed")
		s.lastErr = ev.err
		s.setStatus(KeyError)
		s.end(false, "error")
	case evIdle:
		if ev.epoch == s.epoch && s.state == Ended {
			s.toIdle()
		}
	}
}

func (s *Session) start() {
	if s.callActive {
		return
	}
	s.epoch++
	s.callActive = true
	s.initialGreeting = true
	s.panelOpen = true
	s.instructionsKey = ""
	s.lastErr = nil
	s.startedAt = time.Now()
	metrics.CallsTotal.Inc()
	metrics.CallsActive.Inc()
	s.deps.Logger.Info("voice call starting")

	s.state = RequestingMic
	s.setStatus(KeyInitializing)

	epoch := s.epoch
	go func() {
		err := s.deps.Mic.RequestAccess(s.ctx)
		s.post(evMicResult{epoch: epoch, err: err})
	}()
}

func (s *Session) onMicResult(ev evMicResult) {
	if ev.epoch != s.epoch || s.state != RequestingMic {
		return
	}
	if ev.err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrMicDenied, ev.err)
		s.deps.Logger.WithError(ev.err).Warn("microphone access denied")
		s.callActive = false
		s.initialGreeting = false
		s.epoch++
		metrics.CallsActive.Dec()
		metrics.CallEnds.WithLabelValues("mic_denied").Inc()
		s.instructionsKey = DeniedInstructionsKey(s.opts.UserAgent)
		s.state = Idle
		s.setStatus(KeyMicDenied)
		return
	}

	s.state = Ringing
	s.setStatus(KeyCalling)
	if len(s.opts.Ringtone.Data) == 0 {
		s.connect()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.ringCancel, s.ringDone = cancel, done
	epoch := s.epoch
	go func() {
		err := s.deps.Player.Play(ctx, s.opts.Ringtone)
		close(done)
		s.post(evRingtoneDone{epoch: epoch, err: err})
	}()
}

func (s *Session) onRingtoneDone(ev evRingtoneDone) {
	if ev.epoch != s.epoch || s.state != Ringing {
		return
	}
	s.ringCancel, s.ringDone = nil, nil
	if ev.err != nil {
		s.deps.Logger.WithError(ev.err).Warn("could not play ringtone")
	}
	s.connect()
}

func (s *Session) connect() {
	s.state = Connecting
	s.setStatus(KeyConnecting)

	ctx, cancel := context.WithCancel(s.ctx)
	s.dialCancel = cancel
	epoch := s.epoch
	go func() {
		conn, err := s.deps.Dialer.Dial(ctx, s.opts.URL)
		s.post(evDialed{epoch: epoch, conn: conn, err: err})
	}()
}

func (s *Session) onDialed(ev evDialed) {
	if ev.epoch != s.epoch || s.state != Connecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	s.dialCancel = nil
	if ev.err != nil {
		s.deps.Logger.WithError(ev.err).Error("voice server connection failed")
		s.lastErr = ev.err
		s.setStatus(KeyError)
		s.end(false, "error")
		return
	}
	s.conn = ev.conn
	go s.readLoop(s.epoch, ev.conn)

	profile, err := s.deps.Profiles.Profile()
	if err != nil {
		s.deps.Logger.WithError(err).Error("build session metadata")
		s.lastErr = err
		s.setStatus(KeyError)
		s.end(false, "error")
		return
	}
	if err := s.conn.Send(newInit(profile)); err != nil {
		s.deps.Logger.WithError(err).Error("send init")
		s.lastErr = err
		s.setStatus(KeyError)
		s.end(false, "error")
		return
	}
	if err := s.conn.Send(typeOnly{Type: TypeInitCall}); err != nil {
		s.deps.Logger.WithError(err).Error("send init_call")
		s.lastErr = err
		s.setStatus(KeyError)
		s.end(false, "error")
		return
	}
	s.deps.Logger.WithField("user_id", profile.UserID).Info("voice call connected")
	s.setState(Greeting)
}

func (s *Session) readLoop(epoch uint64, conn Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			s.post(evClosed{epoch: epoch, err: err})
			return
		}
		s.post(evMessage{epoch: epoch, data: data})
	}
}

func (s *Session) onMessage(ev evMessage) {
	if ev.epoch != s.epoch || !s.callActive {
		return
	}
	var msg inbound
	if err := json.Unmarshal(ev.data, &msg); err != nil {
		s.deps.Logger.WithError(err).Warn("bad message from voice server")
		return
	}
	switch msg.Type {
	case TypeAssistantAudio:
		if msg.Audio == "" {
			return
		}
		clip, err := audio.FromBase64(msg.Audio, audio.MIMEMPEG)
		if err != nil {
			s.deps.Logger.WithError(err).Warn("dropping assistant audio")
			return
		}
		s.stopRingtone()
		metrics.AssistantClips.Inc()
		s.queue = append(s.queue, clip)
		s.playNext()
	case TypeStatus:
		if msg.Status == StatusProcessing {
			if !s.isPlaying {
				s.state = Processing
			}
			s.setStatus(KeyProcessing)
		}
	default:
		s.deps.Logger.Debugf("ignoring voice message type %q", msg.Type)
	}
}

func (s *Session) playNext() {
	if s.isPlaying || len(s.queue) == 0 || !s.callActive {
		return
	}
	s.isPlaying = true
	s.stopRecognition()

	clip := s.queue[0]
	s.queue = s.queue[1:]
	if s.initialGreeting {
		s.state = Greeting
	} else {
		s.state = Speaking
	}
	s.setStatus(KeySpeaking)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.playGen++
	s.playCancel, s.playDone = cancel, done
	epoch, gen := s.epoch, s.playGen
	go func() {
		err := s.deps.Player.Play(ctx, clip)
		close(done)
		s.post(evPlaybackDone{epoch: epoch, gen: gen, err: err})
	}()
}

func (s *Session) onPlaybackDone(ev evPlaybackDone) {
	if ev.epoch != s.epoch || ev.gen != s.playGen || !s.isPlaying {
		return
	}
	s.isPlaying = false
	s.playCancel, s.playDone = nil, nil
	if ev.err != nil && !errors.Is(ev.err, context.Canceled) {
		s.deps.Logger.WithError(ev.err).Warn("assistant audio playback failed")
	}
	s.initialGreeting = false
	if len(s.queue) > 0 {
		s.playNext()
		return
	}
	if s.callActive {
		s.startRecognition()
	}
}

func (s *Session) startRecognition() {
	if !s.callActive || s.isPlaying || s.listenCancel != nil || s.conn == nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	segs := make(chan asr.Segment, 4)
	s.listenGen++
	s.listenCancel, s.listenDone = cancel, done
	epoch, gen := s.epoch, s.listenGen

	go func() {
		err := s.deps.Recognizer.Listen(ctx, segs)
		close(done)
		if err != nil && ctx.Err() == nil {
			s.post(evListenFailed{epoch: epoch, gen: gen, err: err})
		}
	}()
	go func() {
		for {
			select {
			case seg := <-segs:
				if !seg.Partial {
					s.post(evSpeech{epoch: epoch, gen: gen, text: seg.Text})
				}
			case <-done:
				return
			}
		}
	}()

	s.state = Listening
	s.setStatus(KeyListening)
}

// stopRecognition returns once the recognizer has stopped capturing.
func (s *Session) stopRecognition() {
	if s.listenCancel == nil {
		return
	}
	s.listenCancel()
	<-s.listenDone
	s.listenCancel, s.listenDone = nil, nil
}

func (s *Session) stopPlayback() {
	if s.playCancel == nil {
		return
	}
	s.playCancel()
	<-s.playDone
	s.playCancel, s.playDone = nil, nil
}

func (s *Session) stopRingtone() {
	if s.ringCancel == nil {
		return
	}
	s.ringCancel()
	<-s.ringDone
	s.ringCancel, s.ringDone = nil, nil
}

func (s *Session) onSpeech(ev evSpeech) {
	if ev.epoch != s.epoch || ev.gen != s.listenGen || s.listenCancel == nil {
		return
	}
	text := strings.TrimSpace(ev.text)
	if text == "" || s.conn == nil {
		return
	}
	if err := s.conn.Send(newUserSpeech(text)); err != nil {
		s.deps.Logger.WithError(err).Warn("send user_speech")
		return
	}
	metrics.UserUtterances.Inc()
	s.state = Processing
	s.setStatus(KeyProcessing)
}

func (s *Session) onClosed(ev evClosed) {
	if ev.epoch != s.epoch || !s.callActive {
		return
	}
	if IsRemoteClose(ev.err) {
		s.deps.Logger.Info("voice server closed the call")
		s.setStatus(KeyEnded)
		s.end(false, "remote")
		return
	}
	s.deps.Logger.WithError(ev.err).Error("voice connection error")
	s.lastErr = ev.err
	s.setStatus(KeyError)
	s.end(false, "error")
}

func (s *Session) end(user bool, reason string) {
	if user && !s.callActive {
		s.panelOpen = false
		s.instructionsKey = ""
		s.emit()
		return
	}
	if !s.callActive {
		return
	}

	if user {
		s.setStatus(KeyEnded)
		if s.conn != nil {
			if err := s.conn.Send(typeOnly{Type: TypeEndCall}); err != nil {
				s.deps.Logger.WithError(err).Debug("send end_call")
			}
		}
	}

	s.stopRecognition()
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	s.stopRingtone()
	s.stopPlayback()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.queue = nil
	s.isPlaying = false
	s.initialGreeting = false
	s.callActive = false
	s.epoch++

	metrics.CallsActive.Dec()
	metrics.CallEnds.WithLabelValues(reason).Inc()
	metrics.CallDuration.Observe(time.Since(s.startedAt).Seconds())
	s.deps.Logger.WithField("reason", reason).Info("voice call ended")

	s.setState(Ended)
	delay := time.Duration(0)
	if user {
		delay = s.opts.EndDelay
	}
	if delay <= 0 {
		s.toIdle()
		return
	}
	epoch := s.epoch
	time.AfterFunc(delay, func() { s.post(evIdle{epoch: epoch}) })
}

func (s *Session) toIdle() {
	s.panelOpen = false
	s.instructionsKey = ""
	s.setState(Idle)
}

func (s *Session) setState(st State) {
	s.state = st
	s.emit()
}

func (s *Session) setStatus(key string) {
	s.statusKey = key
	s.emit()
}

func (s *Session) emit() {
	s.opts.OnUpdate(Update{
		State:           s.state,
		StatusKey:       s.statusKey,
		InstructionsKey: s.instructionsKey,
		PanelOpen:       s.panelOpen,
		Err:             s.lastErr,
	})
	s.publish()
}

func (s *Session) publish() {
	s.mu.Lock()
	s.snap = Snapshot{
		State:           s.state,
		CallActive:      s.callActive,
		Playing:         s.isPlaying,
		InitialGreeting: s.initialGreeting,
		Listening:       s.listenCancel != nil,
		Connected:       s.conn != nil,
		Queued:          len(s.queue),
		PanelOpen:       s.panelOpen,
	}
	s.mu.Unlock()
}
