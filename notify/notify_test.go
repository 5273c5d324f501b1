package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/transport"
)

func premiumNotice() core.ActivationNotice {
	plans := core.DefaultPlans()
	return core.ActivationNotice{
		Recipient: "marie@example.fr",
		Name:      "Marie Dupont",
		Plan:      plans[0],
		Code:      "PREMIUM-ABCD2345",
		Amount:    4900,
		Currency:  "eur",
		AppURL:    "https://tirage-express.netlify.app/premium.html",
	}
}

func TestRenderActivation_IncludesCodeFeaturesAndLink(t *testing.T) {
	msg, err := RenderActivation(premiumNotice())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "marie@example.fr" || !strings.Contains(msg.Subject, "TirageExpress Premium") {
		t.Fatalf("unexpected envelope %#v", msg)
	}
	for _, body := range []string{msg.HTML, msg.Text} {
		if !strings.Contains(body, "PREMIUM-ABCD2345") {
			t.Fatalf("expected code in body:\n%s", body)
		}
		if !strings.Contains(body, "https://tirage-express.netlify.app/premium.html") {
			t.Fatalf("expected app url in body:\n%s", body)
		}
		if !strings.Contains(body, "49,00 €") {
			t.Fatalf("expected price in body:\n%s", body)
		}
		if !strings.Contains(body, "Sauvegarde permanente") {
			t.Fatalf("expected feature list in body:\n%s", body)
		}
	}
	if msg.Params["activation_code"] != "PREMIUM-ABCD2345" || msg.Params["product_type"] != "Premium" {
		t.Fatalf("unexpected template params %#v", msg.Params)
	}
}

func TestRenderActivation_EscapesCustomerName(t *testing.T) {
	notice := premiumNotice()
	notice.Name = "<script>alert(1)</script>"
	msg, err := RenderActivation(notice)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("expected escaped name in html body")
	}
}

func TestRenderActivation_DefaultsName(t *testing.T) {
	notice := premiumNotice()
	notice.Name = ""
	msg, err := RenderActivation(notice)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msg.Text, "Bonjour Client,") {
		t.Fatalf("expected default greeting, got:\n%s", msg.Text)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]struct {
		amount   int64
		currency string
		want     string
	}{
		"premium": {4900, "eur", "49,00 €"},
		"pro":     {9900, "EUR", "99,00 €"},
		"cents":   {1205, "usd", "12,05 USD"},
		"zero":    {0, "eur", "0,00 €"},
	}
	for name, tc := range cases {
		if got := FormatAmount(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", name, tc.want, got)
		}
	}
}

func TestNotifier_SuccessReturnsTrue(t *testing.T) {
	sender := &stubSender{}
	notifier := NewNotifier(sender, WithFrom("noreply@tirage-express.fr", "TirageExpress"))
	if !notifier.SendActivationEmail(context.Background(), premiumNotice()) {
		t.Fatalf("expected success")
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected one message")
	}
	if sender.messages[0].From != "noreply@tirage-express.fr" || sender.messages[0].FromName != "TirageExpress" {
		t.Fatalf("expected sender identity, got %#v", sender.messages[0])
	}
}

func TestNotifier_FailureIsLoggedAndCounted(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp down")}
	logger := &recordingLogger{}
	metrics := &countingMetrics{}
	notifier := NewNotifier(sender, WithLogger(logger), WithMetrics(metrics))
	if notifier.SendActivationEmail(context.Background(), premiumNotice()) {
		t.Fatalf("expected failure to be reported as false")
	}
	if !logger.hasWarn("activation email failed") {
		t.Fatalf("expected warning log, got %#v", logger.entries)
	}
	if metrics.count(MetricSendFailure) != 1 {
		t.Fatalf("expected one failure metric")
	}
}

func TestNotifier_AppliesTimeout(t *testing.T) {
	sender := &stubSender{block: true}
	notifier := NewNotifier(sender, WithTimeout(20*time.Millisecond))
	startedAt := time.Now()
	if notifier.SendActivationEmail(context.Background(), premiumNotice()) {
		t.Fatalf("expected timeout to fail the send")
	}
	if time.Since(startedAt) > 2*time.Second {
		t.Fatalf("expected send to be bounded by the timeout")
	}
}

func TestNotifier_NilSenderReturnsFalse(t *testing.T) {
	if NewNotifier(nil).SendActivationEmail(context.Background(), premiumNotice()) {
		t.Fatalf("expected false without a sender")
	}
}

func TestSendGridSender_PostsMailSend(t *testing.T) {
	var gotPath, gotAuth string
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSendGridSender(core.SendGridConfig{APIKey: "SG.test", BaseURL: server.URL})
	msg, _ := RenderActivation(premiumNotice())
	msg.From = "noreply@tirage-express.fr"
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/v3/mail/send" || gotAuth != "Bearer SG.test" {
		t.Fatalf("unexpected request %q %q", gotPath, gotAuth)
	}
	if payload["subject"] != msg.Subject {
		t.Fatalf("unexpected payload %#v", payload)
	}
	personalizations, _ := payload["personalizations"].([]any)
	if len(personalizations) != 1 {
		t.Fatalf("expected one personalization, got %#v", payload["personalizations"])
	}
}

func TestSendGridSender_ErrorStatusIsProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	sender := NewSendGridSender(core.SendGridConfig{APIKey: "SG.bad", BaseURL: server.URL})
	err := sender.Send(context.Background(), Message{To: "a@example.fr", Subject: "s", Text: "t"})
	if !core.HasTextCode(err, core.ErrorEmailProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestSendGridSender_MissingKey(t *testing.T) {
	err := NewSendGridSender(core.SendGridConfig{}).Send(context.Background(), Message{To: "a@example.fr", Subject: "s"})
	if !core.HasTextCode(err, core.ErrorConfigurationMissing) {
		t.Fatalf("expected configuration missing, got %v", err)
	}
}

func TestEmailJSSender_PostsTemplateParams(t *testing.T) {
	var gotPath string
	var payload emailJSPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	sender := NewEmailJSSender(core.EmailJSConfig{
		ServiceID:  "service_1",
		TemplateID: "template_1",
		PublicKey:  "public_1",
		PrivateKey: "private_1",
		BaseURL:    server.URL,
	}, transport.NewRESTAdapter(server.Client()))
	msg, _ := RenderActivation(premiumNotice())
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/api/v1.0/email/send" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if payload.ServiceID != "service_1" || payload.UserID != "public_1" || payload.AccessToken != "private_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.TemplateParams["activation_code"] != "PREMIUM-ABCD2345" || payload.TemplateParams["to_email"] != "marie@example.fr" {
		t.Fatalf("unexpected template params %#v", payload.TemplateParams)
	}
}

func TestEmailJSSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("The template ID is invalid"))
	}))
	defer server.Close()

	sender := NewEmailJSSender(core.EmailJSConfig{
		ServiceID:  "service_1",
		TemplateID: "bad",
		PublicKey:  "public_1",
		BaseURL:    server.URL,
	}, transport.NewRESTAdapter(server.Client()))
	err := sender.Send(context.Background(), Message{To: "a@example.fr", Subject: "s"})
	if !core.HasTextCode(err, core.ErrorEmailProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestEmailJSSender_MissingConfig(t *testing.T) {
	err := NewEmailJSSender(core.EmailJSConfig{ServiceID: "svc"}, nil).Send(context.Background(), Message{To: "a@example.fr", Subject: "s"})
	if !core.HasTextCode(err, core.ErrorConfigurationMissing) {
		t.Fatalf("expected configuration missing, got %v", err)
	}
}

func TestOutboxSender_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail", "outbox.jsonl")
	sender := NewOutboxSender(core.OutboxConfig{Path: path})
	for _, to := range []string{"a@example.fr", "b@example.fr"} {
		if err := sender.Send(context.Background(), Message{To: to, Subject: "Votre code", Text: "code"}); err != nil {
			t.Fatalf("send to %s: %v", to, err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	defer file.Close()
	var records []outboxRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record outboxRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, record)
	}
	if len(records) != 2 || records[0].To != "a@example.fr" || records[1].To != "b@example.fr" {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestOutboxSender_RejectsMissingRecipient(t *testing.T) {
	sender := NewOutboxSender(core.OutboxConfig{Path: filepath.Join(t.TempDir(), "outbox.jsonl")})
	if err := sender.Send(context.Background(), Message{Subject: "s"}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestOutboxSender_ReportsCloseFailure(t *testing.T) {
	sender := NewOutboxSender(core.OutboxConfig{Path: filepath.Join(t.TempDir(), "outbox.jsonl")})
	spool := &failingSpool{closeErr: errors.New("disk quota exceeded")}
	sender.openFile = func(string) (io.WriteCloser, error) { return spool, nil }

	err := sender.Send(context.Background(), Message{To: "a@example.fr", Subject: "Votre code", Text: "code"})
	if !core.HasTextCode(err, core.ErrorEmailProviderFailure) {
		t.Fatalf("expected provider failure on close, got %v", err)
	}
	if !errors.Is(err, spool.closeErr) {
		t.Fatalf("expected close error to be wrapped, got %v", err)
	}
	if spool.writes != 1 || spool.closes != 1 {
		t.Fatalf("expected one write and one close, got %d / %d", spool.writes, spool.closes)
	}

	spool.closeErr = nil
	spool.writeErr = errors.New("short write")
	err = sender.Send(context.Background(), Message{To: "a@example.fr", Subject: "Votre code", Text: "code"})
	if !errors.Is(err, spool.writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if spool.closes != 2 {
		t.Fatalf("expected file closed after failed write, got %d closes", spool.closes)
	}
}

type failingSpool struct {
	writeErr error
	closeErr error
	writes   int
	closes   int
}

func (s *failingSpool) Write(p []byte) (int, error) {
	s.writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return len(p), nil
}

func (s *failingSpool) Close() error {
	s.closes++
	return s.closeErr
}

func TestNewSenderFromConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cases := map[string]string{
		core.EmailProviderSendGrid: ProviderSendGrid,
		core.EmailProviderEmailJS:  ProviderEmailJS,
		core.EmailProviderOutbox:   ProviderOutbox,
	}
	for provider, want := range cases {
		cfg.Email.Provider = provider
		sender, err := NewSenderFromConfig(cfg, nil)
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if sender.Name() != want {
			t.Fatalf("expected %s, got %s", want, sender.Name())
		}
	}
	cfg.Email.Provider = "pigeon"
	if _, err := NewSenderFromConfig(cfg, nil); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

type stubSender struct {
	mu       sync.Mutex
	err      error
	block    bool
	messages []Message
}

func (*stubSender) Name() string { return "stub" }

func (s *stubSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level string, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Trace(msg string, _ ...any) { l.add("trace", msg) }
func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }
func (l *recordingLogger) Fatal(msg string, _ ...any) { l.add("fatal", msg) }
func (l *recordingLogger) WithContext(context.Context) core.Logger {
	return l
}

func (l *recordingLogger) hasWarn(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.level == "warn" && entry.msg == msg {
			return true
		}
	}
	return false
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, _ int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
