package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderEmailJS  = "emailjs"
	EmailProviderOutbox   = "outbox"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverMemory   = "memory"

	DefaultEmailTimeout    = 10 * time.Second
	DefaultIdempotencyTTL  = 72 * time.Hour
	DefaultMaxBodyBytes    = int64(1 << 20)
	DefaultHTTPAddr        = ":8080"
	DefaultSendGridBaseURL = "https://api.sendgrid.com"
	DefaultEmailJSBaseURL  = "https://api.emailjs.com"
	DefaultAppBaseURL      = "https://tirage-express.netlify.app"
)

type StripeConfig struct {
	SecretKey        string        `koanf:"secret_key" mapstructure:"secret_key"`
	WebhookSecret    string        `koanf:"webhook_secret" mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `koanf:"webhook_tolerance" mapstructure:"webhook_tolerance"`
}

type EmailConfig struct {
	Provider string        `koanf:"provider" mapstructure:"provider"`
	From     string        `koanf:"from" mapstructure:"from"`
	FromName string        `koanf:"from_name" mapstructure:"from_name"`
	Timeout  time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type SendGridConfig struct {
	APIKey  string `koanf:"api_key" mapstructure:"api_key"`
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
}

type EmailJSConfig struct {
	ServiceID  string `koanf:"service_id" mapstructure:"service_id"`
	TemplateID string `koanf:"template_id" mapstructure:"template_id"`
	PublicKey  string `koanf:"public_key" mapstructure:"public_key"`
	PrivateKey string `koanf:"private_key" mapstructure:"private_key"`
	BaseURL    string `koanf:"base_url" mapstructure:"base_url"`
}

type OutboxConfig struct {
	Path string `koanf:"path" mapstructure:"path"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type Config struct {
	ServiceName         string         `koanf:"service_name" mapstructure:"service_name"`
	Stripe              StripeConfig   `koanf:"stripe" mapstructure:"stripe"`
	Email               EmailConfig    `koanf:"email" mapstructure:"email"`
	SendGrid            SendGridConfig `koanf:"sendgrid" mapstructure:"sendgrid"`
	EmailJS             EmailJSConfig  `koanf:"emailjs" mapstructure:"emailjs"`
	Outbox              OutboxConfig   `koanf:"outbox" mapstructure:"outbox"`
	Database            DatabaseConfig `koanf:"database" mapstructure:"database"`
	HTTP                HTTPConfig     `koanf:"http" mapstructure:"http"`
	Plans               []Plan         `koanf:"plans" mapstructure:"plans"`
	AcceptTestPurchases bool           `koanf:"accept_test_purchases" mapstructure:"accept_test_purchases"`
	IdempotencyTTL      time.Duration  `koanf:"idempotency_ttl" mapstructure:"idempotency_ttl"`
	AppBaseURL          string         `koanf:"app_base_url" mapstructure:"app_base_url"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "activation",
		Email: EmailConfig{
			Provider: EmailProviderSendGrid,
			From:     "noreply@tirage-express.fr",
			FromName: "TirageExpress",
			Timeout:  DefaultEmailTimeout,
		},
		SendGrid: SendGridConfig{BaseURL: DefaultSendGridBaseURL},
		EmailJS:  EmailJSConfig{BaseURL: DefaultEmailJSBaseURL},
		Outbox:   OutboxConfig{Path: "activation-outbox.jsonl"},
		Database: DatabaseConfig{
			Driver: DatabaseDriverSQLite,
			DSN:    "file:activation.db?cache=shared&_fk=1",
		},
		HTTP: HTTPConfig{
			Addr:         DefaultHTTPAddr,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Plans:          DefaultPlans(),
		IdempotencyTTL: DefaultIdempotencyTTL,
		AppBaseURL:     DefaultAppBaseURL,
	}
}

// Validate checks structural consistency. Secrets are checked separately by
// RequireSecrets so library users can build a service before wiring them.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Stripe.WebhookTolerance < 0 {
		return fmt.Errorf("core: stripe.webhook_tolerance must not be negative")
	}
	if c.Email.Timeout < 0 {
		return fmt.Errorf("core: email.timeout must not be negative")
	}
	if c.IdempotencyTTL < 0 {
		return fmt.Errorf("core: idempotency_ttl must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Email.Provider)) {
	case "", EmailProviderSendGrid, EmailProviderEmailJS, EmailProviderOutbox:
	default:
		return fmt.Errorf("core: unsupported email.provider %q", c.Email.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", DatabaseDriverSQLite, DatabaseDriverPostgres, DatabaseDriverMemory:
	default:
		return fmt.Errorf("core: unsupported database.driver %q", c.Database.Driver)
	}
	if _, err := NewPlanTable(c.Plans, c.AcceptTestPurchases); err != nil {
		return err
	}
	return nil
}

// RequireSecrets reports the first secret the configured providers need but
// do not have.
func (c Config) RequireSecrets() error {
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		return ConfigurationMissingError("STRIPE_WEBHOOK_SECRET")
	}
	if strings.TrimSpace(c.Stripe.SecretKey) == "" {
		return ConfigurationMissingError("STRIPE_SECRET_KEY")
	}
	switch c.EmailProvider() {
	case EmailProviderSendGrid:
		if strings.TrimSpace(c.SendGrid.APIKey) == "" {
			return ConfigurationMissingError("SENDGRID_API_KEY")
		}
	case EmailProviderEmailJS:
		required := [][2]string{
			{"EMAILJS_SERVICE_ID", c.EmailJS.ServiceID},
			{"EMAILJS_TEMPLATE_ID", c.EmailJS.TemplateID},
			{"EMAILJS_PUBLIC_KEY", c.EmailJS.PublicKey},
		}
		for _, entry := range required {
			if strings.TrimSpace(entry[1]) == "" {
				return ConfigurationMissingError(entry[0])
			}
		}
	case EmailProviderOutbox:
		if strings.TrimSpace(c.Outbox.Path) == "" {
			return ConfigurationMissingError("OUTBOX_PATH")
		}
	}
	if c.DatabaseDriver() != DatabaseDriverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		return ConfigurationMissingError("DATABASE_DSN")
	}
	return nil
}

func (c Config) EmailProvider() string {
	provider := strings.ToLower(strings.TrimSpace(c.Email.Provider))
	if provider == "" {
		return EmailProviderSendGrid
	}
	return provider
}

func (c Config) DatabaseDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if driver == "" {
		return DatabaseDriverSQLite
	}
	return driver
}

func (c Config) EmailTimeout() time.Duration {
	if c.Email.Timeout <= 0 {
		return DefaultEmailTimeout
	}
	return c.Email.Timeout
}

func (c Config) ClaimTTL() time.Duration {
	if c.IdempotencyTTL <= 0 {
		return DefaultIdempotencyTTL
	}
	return c.IdempotencyTTL
}

func (c Config) BodyLimit() int64 {
	if c.HTTP.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.HTTP.MaxBodyBytes
}

// ExpectedLivemode derives the processor mode from the secret key prefix.
// known is false when the key carries neither prefix.
func (c Config) ExpectedLivemode() (livemode bool, known bool) {
	key := strings.TrimSpace(c.Stripe.SecretKey)
	switch {
	case strings.HasPrefix(key, "sk_live_"), strings.HasPrefix(key, "rk_live_"):
		return true, true
	case strings.HasPrefix(key, "sk_test_"), strings.HasPrefix(key, "rk_test_"):
		return false, true
	default:
		return false, false
	}
}
