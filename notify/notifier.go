package notify

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	glog "github.com/goliatone/go-logger/glog"
)

const MetricSendFailure = "notify.send.failure"

// Notifier adapts a Sender to core.ActivationNotifier. Provider failures are
// logged and counted, never returned.
type Notifier struct {
	sender   Sender
	from     string
	fromName string
	timeout  time.Duration
	logger   core.Logger
	metrics  core.MetricsRecorder
}

type NotifierOption func(*Notifier)

func WithFrom(address string, name string) NotifierOption {
	return func(n *Notifier) {
		n.from = strings.TrimSpace(address)
		n.fromName = strings.TrimSpace(name)
	}
}

func WithTimeout(timeout time.Duration) NotifierOption {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) NotifierOption {
	return func(n *Notifier) {
		if metrics != nil {
			n.metrics = metrics
		}
	}
}

func NewNotifier(sender Sender, opts ...NotifierOption) *Notifier {
	notifier := &Notifier{
		sender:  sender,
		timeout: core.DefaultEmailTimeout,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(notifier)
		}
	}
	return notifier
}

func (n *Notifier) SendActivationEmail(ctx context.Context, notice core.ActivationNotice) bool {
	if n == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fields := map[string]any{
		"tier": string(notice.Plan.Tier),
		"to":   notice.Recipient,
	}
	if n.sender == nil {
		n.fail(ctx, fields, core.ConfigurationMissingError("EMAIL_PROVIDER"))
		return false
	}
	fields["provider"] = n.sender.Name()

	msg, err := RenderActivation(notice)
	if err != nil {
		n.fail(ctx, fields, err)
		return false
	}
	msg.From = n.from
	msg.FromName = n.fromName

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	startedAt := time.Now()
	if err := n.sender.Send(sendCtx, msg); err != nil {
		n.fail(ctx, fields, err)
		return false
	}
	fields["duration_ms"] = time.Since(startedAt).Milliseconds()
	core.LogWithLevel(ctx, n.logger, "info", "activation email sent", fields)
	return true
}

func (n *Notifier) fail(ctx context.Context, fields map[string]any, err error) {
	logged := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		logged[key] = value
	}
	logged["text_code"] = core.ErrorEmailProviderFailure
	logged["error"] = err.Error()
	core.LogWithLevel(ctx, n.logger, "warn", "activation email failed", logged)

	n.metrics.IncCounter(ctx, MetricSendFailure, 1, map[string]string{
		"provider": stringField(fields, "provider"),
		"tier":     stringField(fields, "tier"),
	})
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

var _ core.ActivationNotifier = (*Notifier)(nil)
