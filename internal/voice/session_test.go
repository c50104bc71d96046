package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iris/internal/asr"
	"iris/internal/audio"
	"iris/internal/logging"
	"iris/internal/visitor"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

type fakeMic struct{ err error }

func (m fakeMic) RequestAccess(context.Context) error { return m.err }

type fakeRecognizer struct {
	active  atomic.Int32
	listens atomic.Int32
	utter   chan string
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{utter: make(chan string)}
}

func (r *fakeRecognizer) Listen(ctx context.Context, out chan<- asr.Segment) error {
	r.active.Add(1)
	r.listens.Add(1)
	defer r.active.Add(-1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-r.utter:
			select {
			case out <- asr.Segment{Text: u}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *fakeRecognizer) Close() error { return nil }

// fakePlayer records clips and counts overlaps with other playback or with
// active recognition.
type fakePlayer struct {
	rec        *fakeRecognizer
	delay      time.Duration
	playing    atomic.Int32
	violations atomic.Int32

	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(ctx context.Context, c audio.Clip) error {
	if p.playing.Add(1) > 1 {
		p.violations.Add(1)
	}
	defer p.playing.Add(-1)
	if p.rec != nil && p.rec.active.Load() > 0 {
		p.violations.Add(1)
	}
	p.mu.Lock()
	p.played = append(p.played, string(c.Data))
	p.mu.Unlock()

	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePlayer) clips() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type fakeDialer struct {
	err   error
	calls atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type staticProfiles struct{}

func (staticProfiles) Profile() (visitor.Profile, error) {
	return visitor.Profile{
		UserID:      "u-1",
		UserAgent:   "iris-test",
		Lang:        "es-ES",
		ReferrerURL: "https://ailabmind.com/",
	}, nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) add(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *recorder) sawStatus(key string) bool {
	for _, u := range r.all() {
		if u.StatusKey == key {
			return true
		}
	}
	return false
}

type voiceServer struct {
	*httptest.Server
	recv     chan map[string]any
	send     chan string
	closeNow chan struct{}
	drop     chan struct{}
}

func newVoiceServer(t *testing.T) *voiceServer {
	t.Helper()
	vs := &voiceServer{
		recv:     make(chan map[string]any, 32),
		send:     make(chan string, 8),
		closeNow: make(chan struct{}),
		drop:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readErr := make(chan struct{})
		go func() {
			defer close(readErr)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var m map[string]any
				_ = jsoniter.Unmarshal(data, &m)
				vs.recv <- m
			}
		}()
		for {
			select {
			case msg := <-vs.send:
				_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
			case <-vs.closeNow:
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			case <-vs.drop:
				// No close frame: the client sees an abnormal closure.
				_ = conn.NetConn().Close()
				return
			case <-readErr:
				return
			}
		}
	}))
	t.Cleanup(vs.Close)
	return vs
}

func (vs *voiceServer) wsURL() string { return "ws" + strings.TrimPrefix(vs.URL, "http") }

func (vs *voiceServer) sendAudio(payload string) {
	vs.send <- `{"type":"assistant_audio","audio":"` + base64.StdEncoding.EncodeToString([]byte(payload)) + `"}`
}

func expectMsg(t *testing.T, ch <-chan map[string]any, typ string) map[string]any {
	t.Helper()
	select {
	case m := <-ch:
		if m["type"] != typ {
			t.Fatalf("expected %s message, got %v", typ, m)
		}
		return m
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", typ)
	}
	return nil
}

func waitFor(t *testing.T, s *Session, what string, cond func(Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond(s.Snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot %+v", what, s.Snapshot())
}

func runSession(t *testing.T, deps Deps, opts Options) *Session {
	t.Helper()
	if deps.Mic == nil {
		deps.Mic = fakeMic{}
	}
	if deps.Profiles == nil {
		deps.Profiles = staticProfiles{}
	}
	deps.Logger = logging.NewTestLogger()
	s := New(deps, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestCallLifecycle(t *testing.T) {
	srv := newVoiceServer(t)
	rec := newFakeRecognizer()
	player := &fakePlayer{rec: rec, delay: 20 * time.Millisecond}
	updates := &recorder{}
	s := runSession(t, Deps{Recognizer: rec, Player: player, Dialer: WSDialer{}}, Options{
		URL:      srv.wsURL(),
		Ringtone: audio.Clip{MIME: audio.MIMEWAV, Data: []byte("ring")},
		EndDelay: 50 * time.Millisecond,
		OnUpdate: updates.add,
	})

	s.Start()
	init := expectMsg(t, srv.recv, TypeInit)
	data, _ := init["data"].(map[string]any)
	if data["origin"] != "phone" || data["channel"] != "voice" || data["user_id"] != "u-1" ||
		data["lang"] != "es-ES" || data["referrer_url"] != "https://ailabmind.com/" || data["user_agent"] != "iris-test" {
		t.Fatalf("unexpected init payload: %v", init)
	}
	if _, ok := data["cookies_consent"]; !ok {
		t.Fatalf("cookies_consent missing: %v", data)
	}
	expectMsg(t, srv.recv, TypeInitCall)

	srv.sendAudio("greeting")
	waitFor(t, s, "listening after greeting", func(sn Snapshot) bool {
		return sn.State == Listening && !sn.Playing && !sn.InitialGreeting && sn.Listening
	})

	rec.utter <- "quiero una cita"
	speech := expectMsg(t, srv.recv, TypeUserSpeech)
	if speech["message"] != "quiero una cita" || speech["transcription"] != "quiero una cita" {
		t.Fatalf("unexpected user_speech: %v", speech)
	}
	waitFor(t, s, "processing", func(sn Snapshot) bool { return sn.State == Processing })

	srv.send <- `{"type":"status","status":"processing"}`
	srv.sendAudio("a1")
	srv.sendAudio("a2")
	waitFor(t, s, "listening after reply", func(sn Snapshot) bool {
		return sn.State == Listening && !sn.Playing && sn.Queued == 0 && len(player.clips()) == 4
	})
	if got := strings.Join(player.clips(), ","); got != "ring,greeting,a1,a2" {
		t.Fatalf("played=%s", got)
	}

	s.End(true)
	expectMsg(t, srv.recv, TypeEndCall)
	waitFor(t, s, "idle", func(sn Snapshot) bool {
		return sn.State == Idle && !sn.PanelOpen
	})
	sn := s.Snapshot()
	if sn.CallActive || sn.Connected || sn.Listening || sn.Playing || sn.Queued != 0 {
		t.Fatalf("call not torn down: %+v", sn)
	}
	if rec.active.Load() != 0 {
		t.Fatalf("recognition still running")
	}
	if v := player.violations.Load(); v != 0 {
		t.Fatalf("%d playback/recognition overlaps", v)
	}

	var sawEnded bool
	for _, u := range updates.all() {
		if u.State == Ended && u.StatusKey == KeyEnded {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Fatalf("ended status not shown before idle")
	}
}

func TestMicDeniedNeverRings(t *testing.T) {
	dialer := &fakeDialer{}
	player := &fakePlayer{}
	updates := &recorder{}
	s := runSession(t, Deps{
		Mic:        fakeMic{err: errors.New("permission denied")},
		Recognizer: newFakeRecognizer(),
		Player:     player,
		Dialer:     dialer,
	}, Options{
		UserAgent: "Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		Ringtone:  audio.Clip{MIME: audio.MIMEWAV, Data: []byte("ring")},
		OnUpdate:  updates.add,
	})

	s.Start()
	waitFor(t, s, "denied panel", func(sn Snapshot) bool { return sn.PanelOpen && !sn.CallActive })

	all := updates.all()
	last := all[len(all)-1]
	if last.StatusKey != KeyMicDenied || last.InstructionsKey != KeyMicDeniedSafari || last.State != Idle {
		t.Fatalf("unexpected final update: %+v", last)
	}
	if !errors.Is(last.Err, ErrMicDenied) {
		t.Fatalf("expected ErrMicDenied, got %v", last.Err)
	}
	for _, u := range all {
		if u.State >= Ringing && u.State != Ended {
			t.Fatalf("reached %s after denial", u.State)
		}
	}
	if dialer.calls.Load() != 0 || len(player.clips()) != 0 {
		t.Fatalf("denied call must not ring or dial")
	}

	s.End(true)
	waitFor(t, s, "panel dismissed", func(sn Snapshot) bool { return !sn.PanelOpen })
}

func TestRemoteCloseEndsImmediately(t *testing.T) {
	srv := newVoiceServer(t)
	rec := newFakeRecognizer()
	updates := &recorder{}
	s := runSession(t, Deps{
		Recognizer: rec,
		Player:     &fakePlayer{rec: rec, delay: 10 * time.Millisecond},
		Dialer:     WSDialer{},
	}, Options{URL: srv.wsURL(), EndDelay: time.Hour, OnUpdate: updates.add})

	s.Start()
	expectMsg(t, srv.recv, TypeInit)
	expectMsg(t, srv.recv, TypeInitCall)
	srv.sendAudio("greeting")
	waitFor(t, s, "listening", func(sn Snapshot) bool { return sn.State == Listening })

	close(srv.closeNow)
	// EndDelay only applies to user hang-ups, so idle follows at once.
	waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle && !sn.CallActive })
	if rec.active.Load() != 0 {
		t.Fatalf("recognition still running")
	}
	if !updates.sawStatus(KeyEnded) || updates.sawStatus(KeyError) {
		t.Fatalf("expected ended status, got %+v", updates.all())
	}
}

func TestTransportDropMidCallShowsError(t *testing.T) {
	srv := newVoiceServer(t)
	rec := newFakeRecognizer()
	player := &fakePlayer{rec: rec, delay: time.Hour}
	updates := &recorder{}
	s := runSession(t, Deps{Recognizer: rec, Player: player, Dialer: WSDialer{}},
		Options{URL: srv.wsURL(), EndDelay: time.Hour, OnUpdate: updates.add})

	s.Start()
	expectMsg(t, srv.recv, TypeInit)
	expectMsg(t, srv.recv, TypeInitCall)
	srv.sendAudio("a1")
	srv.sendAudio("a2")
	waitFor(t, s, "greeting playing with a queued clip", func(sn Snapshot) bool {
		return sn.State == Greeting && sn.Playing && sn.Queued == 1
	})

	close(srv.drop)
	waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle && !sn.CallActive })
	sn := s.Snapshot()
	if sn.Connected || sn.Listening || sn.Playing || sn.Queued != 0 {
		t.Fatalf("call not torn down: %+v", sn)
	}
	if rec.active.Load() != 0 {
		t.Fatalf("recognition still running")
	}
	if !updates.sawStatus(KeyError) || updates.sawStatus(KeyEnded) {
		t.Fatalf("expected error status for a dropped connection, got %+v", updates.all())
	}
	var gotErr bool
	for _, u := range updates.all() {
		if u.StatusKey == KeyError && u.Err != nil {
			gotErr = true
		}
	}
	if !gotErr {
		t.Fatalf("error update carried no cause")
	}
}

func TestIsRemoteClose(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"normal", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"no status", &websocket.CloseError{Code: websocket.CloseNoStatusReceived}, true},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"internal", &websocket.CloseError{Code: websocket.CloseInternalServerErr}, false},
		{"eof", io.EOF, true},
		{"reset", errors.New("connection reset by peer"), false},
	}
	for _, tc := range cases {
		if got := IsRemoteClose(tc.err); got != tc.want {
			t.Errorf("%s: IsRemoteClose = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDialFailureShowsError(t *testing.T) {
	updates := &recorder{}
	s := runSession(t, Deps{
		Recognizer: newFakeRecognizer(),
		Player:     &fakePlayer{},
		Dialer:     &fakeDialer{err: errors.New("connection refused")},
	}, Options{OnUpdate: updates.add})

	s.Start()
	deadline := time.Now().Add(3 * time.Second)
	for !updates.sawStatus(KeyError) {
		if time.Now().After(deadline) {
			t.Fatalf("error status not shown: %+v", updates.all())
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle && !sn.CallActive && !sn.PanelOpen })
}

func TestEndWhileRingingStopsRingtone(t *testing.T) {
	dialer := &fakeDialer{}
	player := &fakePlayer{delay: time.Hour}
	s := runSession(t, Deps{
		Recognizer: newFakeRecognizer(),
		Player:     player,
		Dialer:     dialer,
	}, Options{
		Ringtone: audio.Clip{MIME: audio.MIMEWAV, Data: []byte("ring")},
		EndDelay: 20 * time.Millisecond,
	})

	s.Start()
	waitFor(t, s, "ringing", func(sn Snapshot) bool { return sn.State == Ringing })
	s.Start()
	s.End(true)
	waitFor(t, s, "idle", func(sn Snapshot) bool { return sn.State == Idle && !sn.PanelOpen })

	if player.playing.Load() != 0 {
		t.Fatalf("ringtone still playing")
	}
	if n := len(player.clips()); n != 1 {
		t.Fatalf("second Start should be ignored, ringtone played %d times", n)
	}
	if dialer.calls.Load() != 0 {
		t.Fatalf("ended call must not dial")
	}
}

func TestDeniedInstructionsKey(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", KeyMicDeniedChrome},
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edge/120.0", KeyMicDeniedGeneric},
		{"Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", KeyMicDeniedSafari},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", KeyMicDeniedGeneric},
		{"iris (linux; amd64)", KeyMicDeniedGeneric},
	}
	for _, c := range cases {
		if got := DeniedInstructionsKey(c.ua); got != c.want {
			t.Fatalf("DeniedInstructionsKey(%q)=%s want %s", c.ua, got, c.want)
		}
	}
}
