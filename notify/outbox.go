package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

const ProviderOutbox = core.EmailProviderOutbox

// OutboxSender appends each message as one JSON line to a local file. It is
// meant for development and for hosts that relay mail from a spool.
type OutboxSender struct {
	Path string
	Now  func() time.Time

	mu       sync.Mutex
	openFile func(path string) (io.WriteCloser, error)
}

type outboxRecord struct {
	QueuedAt time.Time         `json:"queued_at"`
	To       string            `json:"to"`
	ToName   string            `json:"to_name,omitempty"`
	From     string            `json:"from,omitempty"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text,omitempty"`
	HTML     string            `json:"html,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func NewOutboxSender(cfg core.OutboxConfig) *OutboxSender {
	return &OutboxSender{Path: strings.TrimSpace(cfg.Path)}
}

func (*OutboxSender) Name() string {
	return ProviderOutbox
}

func (s *OutboxSender) Send(ctx context.Context, msg Message) error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return core.ConfigurationMissingError("OUTBOX_PATH")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return providerError(ProviderOutbox, err, "notify: outbox write cancelled", nil)
	}

	line, err := json.Marshal(outboxRecord{
		QueuedAt: s.now(),
		To:       msg.To,
		ToName:   msg.ToName,
		From:     msg.From,
		Subject:  msg.Subject,
		Text:     msg.Text,
		HTML:     msg.HTML,
		Params:   msg.Params,
	})
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "notify: encode outbox record", http.StatusInternalServerError, core.ErrorInternal, nil)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return providerError(ProviderOutbox, err, "notify: create outbox directory", map[string]any{"path": s.Path})
		}
	}
	file, err := s.open()
	if err != nil {
		return providerError(ProviderOutbox, err, "notify: open outbox", map[string]any{"path": s.Path})
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return providerError(ProviderOutbox, err, "notify: append outbox record", map[string]any{"path": s.Path})
	}
	if err := file.Close(); err != nil {
		return providerError(ProviderOutbox, err, "notify: close outbox", map[string]any{"path": s.Path})
	}
	return nil
}

func (s *OutboxSender) open() (io.WriteCloser, error) {
	if s.openFile != nil {
		return s.openFile(s.Path)
	}
	return os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

func (s *OutboxSender) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ Sender = (*OutboxSender)(nil)
