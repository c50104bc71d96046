// Package chat implements the pop-up chat widget: a transcript relayed to
// the chat webhook one message at a time.
package chat

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"iris/internal/markup"
	"iris/internal/metrics"
	"iris/internal/visitor"
	"iris/internal/webhook"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single webhook round trip.
const DefaultTimeout = 30 * time.Second

// Message keys shown for failed requests.
const (
	KeyError         = "chat.error"
	KeyTimeoutError  = "chat.timeout-error"
	KeyFetchError    = "chat.fetch-error"
	KeyNotFoundError = "chat.not-found-error"
	KeyServerError   = "chat.server-error"
	KeyWelcome       = "chat.welcome"
)

var (
	ErrEmpty = errors.New("chat: empty message")
	ErrBusy  = errors.New("chat: a message is already being sent")
)

// Sender identifies who wrote a transcript entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one sanitized transcript entry.
type Message struct {
	Sender Sender
	HTML   string
	At     time.Time
}

// Text returns the entry flattened for terminal display.
func (m Message) Text() string { return markup.Text(m.HTML) }

// Poster sends a JSON payload and decodes the reply.
type Poster interface {
	Post(ctx context.Context, payload, out any) error
}

// ProfileSource supplies per-request visitor metadata.
type ProfileSource interface {
	Profile() (visitor.Profile, error)
}

// Translator resolves message keys.
type Translator interface {
	T(key string) string
}

type request struct {
	Message string `json:"message"`
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	visitor.Profile
}

type response struct {
	Reply string `json:"reply"`
}

// Widget is the chat panel state.
type Widget struct {
	poster   Poster
	profiles ProfileSource
	tr       Translator
	logger   *logrus.Logger
	timeout  time.Duration
	now      func() time.Time

	mu         sync.Mutex
	open       bool
	busy       bool
	transcript []Message
}

// Option configures a Widget.
type Option func(*Widget)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Widget) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func New(poster Poster, profiles ProfileSource, tr Translator, logger *logrus.Logger, opts ...Option) *Widget {
	w := &Widget{
		poster:   poster,
		profiles: profiles,
		tr:       tr,
		logger:   logger,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open shows the panel; the welcome message is added to an empty transcript.
func (w *Widget) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	if len(w.transcript) == 0 {
		w.appendLocked(SenderBot, w.renderKey(KeyWelcome))
	}
}

// Close hides the panel. The transcript is kept.
func (w *Widget) Close() {
	w.mu.Lock()
	w.open = false
	w.mu.Unlock()
}

// Toggle flips the panel and reports whether it is now open.
func (w *Widget) Toggle() bool {
	if w.IsOpen() {
		w.Close()
		return false
	}
	w.Open()
	return true
}

func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Transcript returns a copy of the conversation so far.
func (w *Widget) Transcript() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, len(w.transcript))
	copy(out, w.transcript)
	return out
}

// LanguageChanged resets an open panel so the welcome message is shown in
// the new language.
func (w *Widget) LanguageChanged(string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return
	}
	w.transcript = nil
	w.appendLocked(SenderBot, w.renderKey(KeyWelcome))
}

// Submit sends text to the webhook and appends the reply. On failure the
// translated error message is appended and returned alongside the error.
func (w *Widget) Submit(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmpty
	}

	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return Message{}, ErrBusy
	}
	w.busy = true
	w.appendLocked(SenderUser, markup.Sanitize(text))
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
	}()

	reply, err := w.send(ctx, text)
	if err != nil {
		key := ErrorKey(err)
		metrics.ChatRequests.WithLabelValues(key).Inc()
		w.logger.WithError(err).WithField("key", key).Error("chat webhook request failed")
		return w.append(SenderBot, w.renderKey(key)), err
	}
	metrics.ChatRequests.WithLabelValues("ok").Inc()

	if strings.TrimSpace(reply) == "" {
		reply = w.tr.T(KeyError)
	}
	html, rerr := markup.Render(reply)
	if rerr != nil {
		w.logger.Warnf("render reply: %v", rerr)
		html = markup.Sanitize(reply)
	}
	return w.append(SenderBot, html), nil
}

func (w *Widget) send(ctx context.Context, text string) (string, error) {
	profile, err := w.profiles.Profile()
	if err != nil {
		return "", err
	}
	req := request{
		Message: text,
		Origin:  "web",
		Channel: "chat",
		Profile: profile,
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started := w.now()
	w.logger.WithField("user_id", profile.UserID).Debug("sending chat message")
	var resp response
	err = w.poster.Post(ctx, req, &resp)
	metrics.ChatLatency.Observe(w.now().Sub(started).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}

func (w *Widget) renderKey(key string) string {
	html, err := markup.Render(w.tr.T(key))
	if err != nil {
		return markup.Sanitize(w.tr.T(key))
	}
	return html
}

func (w *Widget) append(sender Sender, html string) Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(sender, html)
}

func (w *Widget) appendLocked(sender Sender, html string) Message {
	m := Message{Sender: sender, HTML: html, At: w.now()}
	w.transcript = append(w.transcript, m)
	return m
}

// ErrorKey classifies a failed request into the message key shown to the
// visitor.
func ErrorKey(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KeyTimeoutError
	}
	var se *webhook.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 404 {
			return KeyNotFoundError
		}
		return KeyServerError
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KeyTimeoutError
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return KeyFetchError
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KeyFetchError
	}
	return KeyError
}
