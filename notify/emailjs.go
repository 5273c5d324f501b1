package notify

import (
	"context"
	"strings"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/transport"
)

const (
	ProviderEmailJS = core.EmailProviderEmailJS
	emailJSSendPath = "/api/v1.0/email/send"
)

// EmailJSSender posts template parameters to the EmailJS REST API; the
// provider renders the email from its own template.
type EmailJSSender struct {
	Config core.EmailJSConfig
	Client *transport.RESTAdapter
}

func NewEmailJSSender(cfg core.EmailJSConfig, client *transport.RESTAdapter) *EmailJSSender {
	if client == nil {
		client = transport.NewRESTAdapter(nil)
	}
	return &EmailJSSender{Config: cfg, Client: client}
}

func (*EmailJSSender) Name() string {
	return ProviderEmailJS
}

type emailJSPayload struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

func (s *EmailJSSender) Send(ctx context.Context, msg Message) error {
	if s == nil {
		return core.ConfigurationMissingError("EMAILJS_SERVICE_ID")
	}
	for _, required := range []struct {
		name  string
		value string
	}{
		{"EMAILJS_SERVICE_ID", s.Config.ServiceID},
		{"EMAILJS_TEMPLATE_ID", s.Config.TemplateID},
		{"EMAILJS_PUBLIC_KEY", s.Config.PublicKey},
	} {
		if strings.TrimSpace(required.value) == "" {
			return core.ConfigurationMissingError(required.name)
		}
	}
	if err := msg.validate(); err != nil {
		return err
	}

	params := make(map[string]string, len(msg.Params)+2)
	for key, value := range msg.Params {
		params[key] = value
	}
	if _, ok := params["to_email"]; !ok {
		params["to_email"] = msg.To
	}
	if msg.Subject != "" {
		params["subject"] = msg.Subject
	}

	base := strings.TrimRight(strings.TrimSpace(s.Config.BaseURL), "/")
	if base == "" {
		base = core.DefaultEmailJSBaseURL
	}
	client := s.Client
	if client == nil {
		client = transport.NewRESTAdapter(nil)
	}
	response, err := client.PostJSON(ctx, base+emailJSSendPath, emailJSPayload{
		ServiceID:      strings.TrimSpace(s.Config.ServiceID),
		TemplateID:     strings.TrimSpace(s.Config.TemplateID),
		UserID:         strings.TrimSpace(s.Config.PublicKey),
		AccessToken:    strings.TrimSpace(s.Config.PrivateKey),
		TemplateParams: params,
	}, nil)
	if err != nil {
		return providerError(ProviderEmailJS, err, "notify: emailjs request failed", nil)
	}
	if !response.Successful() {
		return providerStatusError(ProviderEmailJS, response.StatusCode, string(response.Body))
	}
	return nil
}

var _ Sender = (*EmailJSSender)(nil)
