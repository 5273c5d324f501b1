package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	activationStore ActivationStore
	notifier        ActivationNotifier
	codeSource      CodeSource
	backfill        NotificationBackfill
	clock           func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithActivationStore(store ActivationStore) Option {
	return func(b *serviceBuilder) {
		b.activationStore = store
	}
}

func WithNotifier(notifier ActivationNotifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithCodeSource(source CodeSource) Option {
	return func(b *serviceBuilder) {
		b.codeSource = source
	}
}

// WithNotificationBackfill hands activations whose email failed to a worker.
func WithNotificationBackfill(backfill NotificationBackfill) Option {
	return func(b *serviceBuilder) {
		b.backfill = backfill
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("activation", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		codeSource:      NewCodeGenerator(nil),
		clock:           time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvConfigLoader maps process environment variables onto the nested config
// shape. Unset variables are omitted so lower layers keep their values.
type EnvConfigLoader struct {
	LookupEnv func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{LookupEnv: os.LookupEnv}
}

type envBinding struct {
	env  string
	path []string
	kind string
}

var envBindings = []envBinding{
	{env: "SERVICE_NAME", path: []string{"service_name"}},
	{env: "STRIPE_SECRET_KEY", path: []string{"stripe", "secret_key"}},
	{env: "STRIPE_WEBHOOK_SECRET", path: []string{"stripe", "webhook_secret"}},
	{env: "STRIPE_WEBHOOK_TOLERANCE", path: []string{"stripe", "webhook_tolerance"}, kind: "duration"},
	{env: "EMAIL_PROVIDER", path: []string{"email", "provider"}},
	{env: "EMAIL_FROM", path: []string{"email", "from"}},
	{env: "EMAIL_FROM_NAME", path: []string{"email", "from_name"}},
	{env: "EMAIL_TIMEOUT", path: []string{"email", "timeout"}, kind: "duration"},
	{env: "SENDGRID_API_KEY", path: []string{"sendgrid", "api_key"}},
	{env: "SENDGRID_BASE_URL", path: []string{"sendgrid", "base_url"}},
	{env: "EMAILJS_SERVICE_ID", path: []string{"emailjs", "service_id"}},
	{env: "EMAILJS_TEMPLATE_ID", path: []string{"emailjs", "template_id"}},
	{env: "EMAILJS_PUBLIC_KEY", path: []string{"emailjs", "public_key"}},
	{env: "EMAILJS_PRIVATE_KEY", path: []string{"emailjs", "private_key"}},
	{env: "EMAILJS_BASE_URL", path: []string{"emailjs", "base_url"}},
	{env: "OUTBOX_PATH", path: []string{"outbox", "path"}},
	{env: "DATABASE_DRIVER", path: []string{"database", "driver"}},
	{env: "DATABASE_DSN", path: []string{"database", "dsn"}},
	{env: "HTTP_ADDR", path: []string{"http", "addr"}},
	{env: "HTTP_MAX_BODY_BYTES", path: []string{"http", "max_body_bytes"}, kind: "int"},
	{env: "ACCEPT_TEST_PURCHASES", path: []string{"accept_test_purchases"}, kind: "bool"},
	{env: "IDEMPOTENCY_TTL", path: []string{"idempotency_ttl"}, kind: "duration"},
	{env: "APP_BASE_URL", path: []string{"app_base_url"}},
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(binding.env)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		parsed, err := parseEnvValue(binding.kind, value)
		if err != nil {
			return nil, badInput(
				fmt.Sprintf("core: invalid value for %s: %v", binding.env, err),
				map[string]any{"env": binding.env},
			)
		}
		setNested(raw, binding.path, parsed)
	}
	return raw, nil
}

func parseEnvValue(kind string, value string) (any, error) {
	switch kind {
	case "duration":
		// bare integers are seconds, matching the processor's tolerance unit
		if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(seconds) * time.Second, nil
		}
		return time.ParseDuration(value)
	case "bool":
		return strconv.ParseBool(value)
	case "int":
		return strconv.ParseInt(value, 10, 64)
	default:
		return value, nil
	}
}

func setNested(target map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	current := target
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap keeps only set values unless includeZero is true, so an
// upper layer never blanks a lower one.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString := func(section map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			section[key] = value
		}
	}
	putDuration := func(section map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	putSection := func(key string, section map[string]any) {
		if len(section) > 0 {
			layer[key] = section
		}
	}

	putString(layer, "service_name", cfg.ServiceName)
	putString(layer, "app_base_url", cfg.AppBaseURL)
	putDuration(layer, "idempotency_ttl", cfg.IdempotencyTTL)
	if includeZero || cfg.AcceptTestPurchases {
		layer["accept_test_purchases"] = cfg.AcceptTestPurchases
	}

	stripe := map[string]any{}
	putString(stripe, "secret_key", cfg.Stripe.SecretKey)
	putString(stripe, "webhook_secret", cfg.Stripe.WebhookSecret)
	putDuration(stripe, "webhook_tolerance", cfg.Stripe.WebhookTolerance)
	putSection("stripe", stripe)

	email := map[string]any{}
	putString(email, "provider", cfg.Email.Provider)
	putString(email, "from", cfg.Email.From)
	putString(email, "from_name", cfg.Email.FromName)
	putDuration(email, "timeout", cfg.Email.Timeout)
	putSection("email", email)

	sendgrid := map[string]any{}
	putString(sendgrid, "api_key", cfg.SendGrid.APIKey)
	putString(sendgrid, "base_url", cfg.SendGrid.BaseURL)
	putSection("sendgrid", sendgrid)

	emailjs := map[string]any{}
	putString(emailjs, "service_id", cfg.EmailJS.ServiceID)
	putString(emailjs, "template_id", cfg.EmailJS.TemplateID)
	putString(emailjs, "public_key", cfg.EmailJS.PublicKey)
	putString(emailjs, "private_key", cfg.EmailJS.PrivateKey)
	putString(emailjs, "base_url", cfg.EmailJS.BaseURL)
	putSection("emailjs", emailjs)

	outbox := map[string]any{}
	putString(outbox, "path", cfg.Outbox.Path)
	putSection("outbox", outbox)

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver)
	putString(database, "dsn", cfg.Database.DSN)
	putSection("database", database)

	httpSection := map[string]any{}
	putString(httpSection, "addr", cfg.HTTP.Addr)
	if includeZero || cfg.HTTP.MaxBodyBytes != 0 {
		httpSection["max_body_bytes"] = cfg.HTTP.MaxBodyBytes
	}
	putSection("http", httpSection)

	if includeZero || len(cfg.Plans) > 0 {
		plans := make([]any, 0, len(cfg.Plans))
		for _, plan := range cfg.Plans {
			plans = append(plans, map[string]any{
				"tier":        string(plan.Tier),
				"amount":      plan.Amount,
				"currency":    plan.Currency,
				"code_prefix": plan.CodePrefix,
				"app_path":    plan.AppPath,
				"features":    append([]string(nil), plan.Features...),
				"test":        plan.Test,
			})
		}
		layer["plans"] = plans
	}
	return layer
}
