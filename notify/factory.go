package notify

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/transport"
	goerrors "github.com/goliatone/go-errors"
)

// NewSenderFromConfig selects the provider named by email.provider.
func NewSenderFromConfig(cfg core.Config, client *transport.RESTAdapter) (Sender, error) {
	switch provider := cfg.EmailProvider(); provider {
	case core.EmailProviderSendGrid:
		return NewSendGridSender(cfg.SendGrid), nil
	case core.EmailProviderEmailJS:
		return NewEmailJSSender(cfg.EmailJS, client), nil
	case core.EmailProviderOutbox:
		return NewOutboxSender(cfg.Outbox), nil
	default:
		return nil, core.NewError(
			fmt.Sprintf("notify: unsupported email provider %q", provider),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.ErrorBadInput,
			map[string]any{"provider": provider},
		)
	}
}

func NewNotifierFromConfig(
	cfg core.Config,
	logger core.Logger,
	metrics core.MetricsRecorder,
	client *transport.RESTAdapter,
) (*Notifier, error) {
	sender, err := NewSenderFromConfig(cfg, client)
	if err != nil {
		return nil, err
	}
	return NewNotifier(
		sender,
		WithFrom(cfg.Email.From, cfg.Email.FromName),
		WithTimeout(cfg.EmailTimeout()),
		WithLogger(logger),
		WithMetrics(metrics),
	), nil
}
