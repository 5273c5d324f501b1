package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) counterCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, counter := range m.counters {
		if counter.name == name {
			count++
		}
	}
	return count
}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name == name && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func hasLogWithTextCode(logs []capturedLog, level string, textCode string) bool {
	for _, entry := range logs {
		if entry.level == level && entry.fields["text_code"] == textCode {
			return true
		}
	}
	return false
}

func hasLogMessage(logs []capturedLog, level string, msg string) bool {
	for _, entry := range logs {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu      sync.Mutex
	result  bool
	notices []ActivationNotice
}

func (n *recordingNotifier) SendActivationEmail(_ context.Context, notice ActivationNotice) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.result
}

func (n *recordingNotifier) sent() []ActivationNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ActivationNotice(nil), n.notices...)
}

type recordingBackfill struct {
	mu          sync.Mutex
	activations []Activation
	err         error
}

func (b *recordingBackfill) EnqueueNotification(_ context.Context, activation Activation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activations = append(b.activations, activation)
	return b.err
}

type failingActivationStore struct {
	err error
}

func (s failingActivationStore) Create(context.Context, Activation) (Activation, bool, error) {
	return Activation{}, false, s.err
}

func (s failingActivationStore) FindBySession(context.Context, string) (Activation, bool, error) {
	return Activation{}, false, s.err
}

func (s failingActivationStore) MarkNotification(context.Context, string, NotificationStatus, time.Time) error {
	return s.err
}

// racingActivationStore reports that another writer already created the
// session when Create is called.
type racingActivationStore struct {
	winner Activation
}

func (s racingActivationStore) Create(context.Context, Activation) (Activation, bool, error) {
	return s.winner, false, nil
}

func (s racingActivationStore) FindBySession(context.Context, string) (Activation, bool, error) {
	return Activation{}, false, nil
}

func (s racingActivationStore) MarkNotification(context.Context, string, NotificationStatus, time.Time) error {
	return nil
}

type repeatingReader struct {
	value byte
}

func (r repeatingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.value
	}
	return len(p), nil
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func premiumSession(sessionID string) PurchaseSession {
	return PurchaseSession{
		ID:            sessionID,
		EventID:       "evt_" + sessionID,
		CustomerEmail: "marie@example.fr",
		CustomerName:  "Marie Dupont",
		AmountTotal:   4900,
		Currency:      "EUR",
		PaymentStatus: "paid",
	}
}
