package notify

import (
	"context"
	"strings"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	ProviderSendGrid     = core.EmailProviderSendGrid
	sendGridMailSendPath = "/v3/mail/send"
)

type SendGridSender struct {
	APIKey string
	Host   string
}

func NewSendGridSender(cfg core.SendGridConfig) *SendGridSender {
	host := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if host == "" {
		host = core.DefaultSendGridBaseURL
	}
	return &SendGridSender{
		APIKey: strings.TrimSpace(cfg.APIKey),
		Host:   host,
	}
}

func (*SendGridSender) Name() string {
	return ProviderSendGrid
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s == nil || strings.TrimSpace(s.APIKey) == "" {
		return core.ConfigurationMissingError("SENDGRID_API_KEY")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.From))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)

	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	request := sendgrid.GetRequest(s.APIKey, sendGridMailSendPath, s.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return providerError(ProviderSendGrid, err, "notify: sendgrid request failed", nil)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return providerStatusError(ProviderSendGrid, response.StatusCode, response.Body)
	}
	return nil
}

var _ Sender = (*SendGridSender)(nil)
