package control

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"iris/internal/config"
	"iris/internal/i18n"
	"iris/internal/voice"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

// testEnv points HOME at a temp dir and writes a config file.
func testEnv(t *testing.T, extra string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	posts := filepath.Join(home, "blog-posts.json")
	data := `[{"id": 7, "date": "2024-05-01", "categoryDisplayEs": "IA", "categoryDisplayEn": "AI",
	  "titleEs": "Agentes", "titleEn": "Agents", "contentMarkdownEs": "Hola **mundo**", "contentMarkdownEn": "Hello **world**"}]`
	if err := os.WriteFile(posts, []byte(data), 0o644); err != nil {
		t.Fatalf("write posts: %v", err)
	}
	cfgPath := filepath.Join(home, "config.toml")
	body := "[site]\nbase_url = \"\"\nblog_path = \"" + filepath.ToSlash(posts) + "\"\nlocale = \"es-ES\"\n" + extra
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func execute(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	path := cfgPath
	root := &cobra.Command{Use: "iris", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewBlogCmd(&path),
		NewOpenCmd(&path),
		NewChatCmd(&path),
		NewConsentCmd(&path),
		NewContactCmd(&path),
		NewNewsletterCmd(&path),
		NewLangCmd(&path),
		NewModelsCmd(&path),
	)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	headers  []http.Header
	reply    string
}

func (w *webhookRecorder) handler(rw http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = jsoniter.NewDecoder(r.Body).Decode(&body)
	w.mu.Lock()
	w.payloads = append(w.payloads, body)
	w.headers = append(w.headers, r.Header.Clone())
	w.mu.Unlock()
	rw.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(rw, w.reply)
}

func (w *webhookRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.payloads)
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iris.log")
	if err := os.WriteFile(path, []byte("one\ntwo\n\nthree\nfour\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var buf bytes.Buffer
	if err := tailFile(&buf, path, 2); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if buf.String() != "three\nfour\n" {
		t.Fatalf("unexpected tail: %q", buf.String())
	}
}

func TestResolveModelPath(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.StateDir = "/state"
	if got := resolveModelPath(cfg, "ggml-small-q5_1.bin"); got != filepath.Join("/state", "models", "ggml-small-q5_1.bin") {
		t.Fatalf("bare name resolved to %q", got)
	}
	if got := resolveModelPath(cfg, "/opt/models/custom.bin"); got != "/opt/models/custom.bin" {
		t.Fatalf("explicit path changed to %q", got)
	}
}

func TestConsentCommands(t *testing.T) {
	cfgPath := testEnv(t, "")
	out, err := execute(t, cfgPath, "", "consent", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "cookies") {
		t.Fatalf("expected banner before any choice, got %q", out)
	}

	if _, err := execute(t, cfgPath, "", "consent", "accept-all-modal", "--newsletter"); err != nil {
		t.Fatalf("accept-all-modal: %v", err)
	}
	out, err = execute(t, cfgPath, "", "consent", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "newsletter") && !strings.Contains(line, "on") {
			t.Fatalf("newsletter should be on: %q", out)
		}
	}

	if _, err := execute(t, cfgPath, "", "consent", "reject-all"); err != nil {
		t.Fatalf("reject-all: %v", err)
	}
	out, _ = execute(t, cfgPath, "", "consent", "show")
	if !strings.Contains(out, "targeting") || strings.Contains(out, "banner") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLangPersistsAcrossRuns(t *testing.T) {
	cfgPath := testEnv(t, "")
	if _, err := execute(t, cfgPath, "", "lang", "en"); err != nil {
		t.Fatalf("lang en: %v", err)
	}
	out, err := execute(t, cfgPath, "", "lang")
	if err != nil {
		t.Fatalf("lang: %v", err)
	}
	if !strings.HasPrefix(out, "en ") {
		t.Fatalf("expected en, got %q", out)
	}
	if _, err := execute(t, cfgPath, "", "lang", "fr"); err == nil {
		t.Fatalf("expected error for unsupported language")
	}
}

func TestOpenPostAndUnknownSection(t *testing.T) {
	cfgPath := testEnv(t, "")
	out, err := execute(t, cfgPath, "", "open", "#post?id=7")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.Contains(out, "Agentes") || !strings.Contains(out, "mundo") {
		t.Fatalf("post not rendered: %q", out)
	}

	out, err = execute(t, cfgPath, "", "blog", "show", "99")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "no encontrado") && !strings.Contains(out, "not found") {
		t.Fatalf("expected not-found message, got %q", out)
	}

	if _, err := execute(t, cfgPath, "", "open", "#nowhere"); err == nil {
		t.Fatalf("expected unknown section error")
	}
}

func TestBlogListFiltersByCategory(t *testing.T) {
	cfgPath := testEnv(t, "")
	out, err := execute(t, cfgPath, "", "blog", "list", "--category", "IA")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Agentes") {
		t.Fatalf("expected post in IA, got %q", out)
	}
	out, _ = execute(t, cfgPath, "", "blog", "list", "--category", "Robots")
	if strings.Contains(out, "Agentes") {
		t.Fatalf("unexpected post in empty category: %q", out)
	}
}

func TestChatREPL(t *testing.T) {
	rec := &webhookRecorder{reply: `{"reply":"Claro, **te ayudo**"}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()
	t.Setenv("IRIS_CHAT_WEBHOOK_URL", srv.URL)
	t.Setenv("IRIS_SECRET", "s3cret")
	cfgPath := testEnv(t, "")

	out, err := execute(t, cfgPath, "hola\n/quit\n", "chat")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "Iris") || !strings.Contains(out, "te ayudo") {
		t.Fatalf("unexpected transcript %q", out)
	}
	if rec.count() != 1 {
		t.Fatalf("expected one request, got %d", rec.count())
	}
	if rec.payloads[0]["message"] != "hola" || rec.payloads[0]["channel"] != "chat" || rec.payloads[0]["lang"] != "es-ES" {
		t.Fatalf("unexpected payload %+v", rec.payloads[0])
	}
	if rec.headers[0].Get("x-iris-secret") != "s3cret" {
		t.Fatalf("secret header missing")
	}
}

func TestContactCommand(t *testing.T) {
	rec := &webhookRecorder{reply: `{}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()
	t.Setenv("IRIS_FORMS_WEBHOOK_URL", srv.URL)
	cfgPath := testEnv(t, "")

	if _, err := execute(t, cfgPath, "", "contact", "--bot-field", "spam", "--email", "bot@example.com"); err != nil {
		t.Fatalf("honeypot submit: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("honeypot submission must not be sent")
	}

	out, err := execute(t, cfgPath, "", "contact", "--name", "Ana María Pérez", "--email", "ana@example.com", "-m", "Hola")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected one request, got %d", rec.count())
	}
	p := rec.payloads[0]
	if p["origin"] != "contact_form" || p["name"] != "Ana" || p["last_name"] != "María Pérez" || p["phone"] != nil {
		t.Fatalf("unexpected payload %+v", p)
	}
	if !strings.Contains(out, "Gracias") {
		t.Fatalf("expected success message, got %q", out)
	}

	// Each run builds a fresh app, so the cooldown has to come from disk.
	if _, err := execute(t, cfgPath, "", "contact", "--name", "Ana", "-m", "otra vez"); err == nil {
		t.Fatalf("expected cooldown to reject an immediate resubmit")
	}
	if rec.count() != 1 {
		t.Fatalf("cooldown must not post, got %d requests", rec.count())
	}

	if _, err := execute(t, cfgPath, "", "newsletter", "not-an-email"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestTextInputHangsUp(t *testing.T) {
	lines, hangup := textInput(strings.NewReader("hola\n" + hangupCommand + "\nignored\n"))
	if err := lines.RequestAccess(context.Background()); err != nil {
		t.Fatalf("request access: %v", err)
	}
	select {
	case <-hangup:
	case <-time.After(2 * time.Second):
		t.Fatalf("hang-up not signalled")
	}
	select {
	case <-lines.EOF():
		t.Fatalf("buffered line should still be pending")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallPrinterFinishesOnIdle(t *testing.T) {
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}
	var buf bytes.Buffer
	p := newCallPrinter(&buf, tr, "\n")
	p.update(voice.Update{State: voice.RequestingMic, StatusKey: voice.KeyInitializing, PanelOpen: true})
	p.update(voice.Update{State: voice.Ringing, StatusKey: voice.KeyCalling, PanelOpen: true})
	p.update(voice.Update{State: voice.Ended, StatusKey: voice.KeyEnded, PanelOpen: true})
	select {
	case <-p.done:
		t.Fatalf("finished before idle")
	default:
	}
	p.update(voice.Update{State: voice.Idle, StatusKey: voice.KeyEnded})
	select {
	case <-p.done:
	default:
		t.Fatalf("not finished after idle")
	}
	if p.err != nil {
		t.Fatalf("unexpected error %v", p.err)
	}
	if !strings.Contains(buf.String(), "Calling...") || !strings.Contains(buf.String(), "Call ended") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestCallPrinterMicDenied(t *testing.T) {
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}
	var buf bytes.Buffer
	p := newCallPrinter(&buf, tr, "\n")
	p.update(voice.Update{State: voice.RequestingMic, StatusKey: voice.KeyInitializing, PanelOpen: true})
	p.update(voice.Update{
		State:           voice.Idle,
		StatusKey:       voice.KeyMicDenied,
		InstructionsKey: voice.KeyMicDeniedGeneric,
		PanelOpen:       true,
		Err:             voice.ErrMicDenied,
	})
	<-p.done
	if p.err != voice.ErrMicDenied {
		t.Fatalf("expected mic denied error, got %v", p.err)
	}
	if !strings.Contains(buf.String(), "system settings") {
		t.Fatalf("instructions not printed: %q", buf.String())
	}
}

func TestMicListMarksCallDevice(t *testing.T) {
	devices := func() []micInfo {
		return []micInfo{
			{Index: 0, Name: "MacBook Pro Microphone", Channels: 1, Default: true},
			{Index: 3, Name: "USB Audio CODEC", Channels: 2},
		}
	}

	var buf bytes.Buffer
	if err := writeMicList(&buf, devices(), "usb audio", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "* [3] USB Audio CODEC") || strings.HasPrefix(lines[0], "*") {
		t.Fatalf("configured device not marked:\n%s", buf.String())
	}

	buf.Reset()
	if err := writeMicList(&buf, devices(), "headset", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "* [0] MacBook Pro Microphone") || !strings.Contains(buf.String(), `"headset" matches no input`) {
		t.Fatalf("expected fallback to default with a warning:\n%s", buf.String())
	}

	buf.Reset()
	if err := writeMicList(&buf, devices(), "", true); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var out struct {
		Matched bool
		Devices []micInfo
	}
	if err := jsoniter.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Matched || !out.Devices[0].Selected || out.Devices[1].Selected {
		t.Fatalf("unexpected selection %+v", out)
	}
}
