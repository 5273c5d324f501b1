package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	plans           *PlanTable
	activationStore ActivationStore
	notifier        ActivationNotifier
	codeSource      CodeSource
	backfill        NotificationBackfill
	clock           func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	ActivationStore ActivationStore
	Notifier        ActivationNotifier
	CodeSource      CodeSource
	Backfill        NotificationBackfill
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("activation", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("activation"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.codeSource == nil {
		builder.codeSource = NewCodeGenerator(nil)
	}
	if builder.activationStore == nil {
		builder.activationStore = NewMemoryActivationStore()
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}
	plans, err := NewPlanTable(finalConfig.Plans, finalConfig.AcceptTestPurchases)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		plans:           plans,
		activationStore: builder.activationStore,
		notifier:        builder.notifier,
		codeSource:      builder.codeSource,
		backfill:        builder.backfill,
		clock:           builder.clock,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Plans() *PlanTable {
	if s == nil {
		return nil
	}
	return s.plans
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		ActivationStore: s.activationStore,
		Notifier:        s.notifier,
		CodeSource:      s.codeSource,
		Backfill:        s.backfill,
	}
}

// IssueActivation turns a completed purchase into a persisted activation code
// and emails it. Repeated calls for the same session never mint a second
// code. Business rejections (missing email, unknown amount) are reported in
// the outcome, not as errors.
func (s *Service) IssueActivation(ctx context.Context, req IssueActivationRequest) (outcome ActivationOutcome, err error) {
	if s == nil {
		return ActivationOutcome{}, internalError("core: service is not configured", nil)
	}
	startedAt := s.now()
	session := normalizeSession(req.Session)
	fields := map[string]any{
		"session_id": session.ID,
		"event_id":   session.EventID,
	}
	defer func() {
		s.observe(ctx, startedAt, opIssueActivation, outcome, err, fields)
	}()

	if session.ID == "" {
		return ActivationOutcome{}, badInput("core: purchase session id is required", map[string]any{"event_id": session.EventID})
	}
	if s.activationStore == nil {
		return ActivationOutcome{}, ConfigurationMissingError("activation store")
	}
	if s.notifier == nil {
		return ActivationOutcome{}, ConfigurationMissingError("EMAIL_PROVIDER")
	}
	s.checkLivemode(ctx, session.Livemode, fields)

	if session.CustomerEmail == "" {
		s.logWarn(ctx, "purchase session has no customer email", withTextCode(fields, ErrorMissingCustomerEmail))
		s.recordCounter(ctx, MetricMissingCustomerEmail, 1, nil)
		return ActivationOutcome{Status: OutcomeMissingCustomerEmail, SessionID: session.ID}, nil
	}

	plan, err := s.plans.Resolve(session.AmountTotal, session.Currency)
	if err != nil {
		if HasTextCode(err, ErrorUnrecognizedAmount) {
			warnFields := withTextCode(fields, ErrorUnrecognizedAmount)
			warnFields["amount"] = session.AmountTotal
			warnFields["currency"] = session.Currency
			s.logWarn(ctx, "purchase amount does not match any plan", warnFields)
			s.recordCounter(ctx, MetricUnrecognizedAmount, 1, map[string]string{"currency": session.Currency})
			return ActivationOutcome{Status: OutcomeUnrecognizedAmount, SessionID: session.ID}, nil
		}
		return ActivationOutcome{}, err
	}
	fields["tier"] = string(plan.Tier)

	existing, found, err := s.activationStore.FindBySession(ctx, session.ID)
	if err != nil {
		return ActivationOutcome{}, storeError(err, "core: load activation", session.ID)
	}
	if found {
		return s.resume(ctx, existing, plan), nil
	}

	code, err := s.codeSource.Generate(plan)
	if err != nil {
		return ActivationOutcome{}, err
	}
	now := s.now()
	stored, created, err := s.activationStore.Create(ctx, Activation{
		ID:                 uuid.NewString(),
		SessionID:          session.ID,
		EventID:            session.EventID,
		CustomerEmail:      session.CustomerEmail,
		CustomerName:       session.CustomerName,
		Tier:               plan.Tier,
		Code:               code,
		Amount:             session.AmountTotal,
		Currency:           session.Currency,
		NotificationStatus: NotificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return ActivationOutcome{}, storeError(err, "core: persist activation", session.ID)
	}
	if !created {
		return s.resume(ctx, stored, plan), nil
	}

	s.recordCounter(ctx, MetricActivationIssued, 1, map[string]string{"tier": string(plan.Tier)})
	notified := s.deliver(ctx, &stored, plan)
	return ActivationOutcome{
		Status:     OutcomeIssued,
		SessionID:  session.ID,
		Activation: &stored,
		Notified:   notified,
	}, nil
}

// RetryNotification re-sends the stored code for sessionID unless it was
// already delivered.
func (s *Service) RetryNotification(ctx context.Context, sessionID string) (outcome ActivationOutcome, err error) {
	if s == nil {
		return ActivationOutcome{}, internalError("core: service is not configured", nil)
	}
	sessionID = strings.TrimSpace(sessionID)
	startedAt := s.now()
	defer func() {
		s.observe(ctx, startedAt, opRetryNotification, outcome, err, map[string]any{"session_id": sessionID})
	}()
	if sessionID == "" {
		return ActivationOutcome{}, badInput("core: purchase session id is required", nil)
	}
	if s.activationStore == nil {
		return ActivationOutcome{}, ConfigurationMissingError("activation store")
	}
	if s.notifier == nil {
		return ActivationOutcome{}, ConfigurationMissingError("EMAIL_PROVIDER")
	}
	existing, found, err := s.activationStore.FindBySession(ctx, sessionID)
	if err != nil {
		return ActivationOutcome{}, storeError(err, "core: load activation", sessionID)
	}
	if !found {
		return ActivationOutcome{}, NewError(
			"core: activation not found",
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			ErrorNotFound,
			map[string]any{"session_id": sessionID},
		)
	}
	plan, ok := s.plans.ForTier(existing.Tier)
	if !ok {
		plan = Plan{Tier: existing.Tier}
	}
	return s.resume(ctx, existing, plan), nil
}

func (s *Service) HandlePaymentSucceeded(ctx context.Context, intent PaymentIntent) error {
	if s == nil {
		return internalError("core: service is not configured", nil)
	}
	fields := map[string]any{
		"payment_intent_id": strings.TrimSpace(intent.ID),
		"amount":            intent.Amount,
		"currency":          strings.ToLower(strings.TrimSpace(intent.Currency)),
	}
	s.checkLivemode(ctx, intent.Livemode, fields)
	s.logInfo(ctx, "payment intent succeeded", fields)
	return nil
}

func (s *Service) resume(ctx context.Context, existing Activation, plan Plan) ActivationOutcome {
	if existing.NotificationStatus == NotificationSent {
		return ActivationOutcome{
			Status:     OutcomeAlreadyNotified,
			SessionID:  existing.SessionID,
			Activation: &existing,
			Notified:   true,
		}
	}
	notified := s.deliver(ctx, &existing, plan)
	return ActivationOutcome{
		Status:     OutcomeReissued,
		SessionID:  existing.SessionID,
		Activation: &existing,
		Notified:   notified,
	}
}

// deliver sends the activation email and records the result on activation.
// Failures never surface as errors: the code is already persisted.
func (s *Service) deliver(ctx context.Context, activation *Activation, plan Plan) bool {
	notice := ActivationNotice{
		Recipient: activation.CustomerEmail,
		Name:      activation.CustomerName,
		Plan:      plan,
		Code:      activation.Code,
		Amount:    activation.Amount,
		Currency:  activation.Currency,
		AppURL:    s.appURL(plan),
	}
	sent := s.notifier.SendActivationEmail(ctx, notice)

	status := NotificationFailed
	if sent {
		status = NotificationSent
	}
	at := s.now()
	fields := map[string]any{
		"activation_id": activation.ID,
		"session_id":    activation.SessionID,
		"tier":          string(activation.Tier),
	}
	if err := s.activationStore.MarkNotification(ctx, activation.ID, status, at); err != nil {
		errFields := cloneFields(fields)
		errFields["error"] = err.Error()
		s.logError(ctx, "record notification status failed", errFields)
	} else {
		activation.NotificationStatus = status
		activation.UpdatedAt = at
		if sent {
			notifiedAt := at.UTC()
			activation.NotifiedAt = &notifiedAt
		}
	}
	if sent {
		return true
	}

	s.logWarn(ctx, "activation email was not delivered", withTextCode(fields, ErrorEmailProviderFailure))
	s.recordCounter(ctx, MetricEmailFailure, 1, map[string]string{"tier": string(activation.Tier)})
	if s.backfill != nil {
		if err := s.backfill.EnqueueNotification(ctx, *activation); err != nil {
			errFields := cloneFields(fields)
			errFields["error"] = err.Error()
			s.logError(ctx, "enqueue notification backfill failed", errFields)
			s.recordCounter(ctx, MetricBackfillEnqueueFailure, 1, nil)
		}
	}
	return false
}

func (s *Service) checkLivemode(ctx context.Context, livemode bool, fields map[string]any) {
	expected, known := s.config.ExpectedLivemode()
	if !known || expected == livemode {
		return
	}
	warnFields := cloneFields(fields)
	warnFields["event_livemode"] = livemode
	warnFields["key_livemode"] = expected
	s.logWarn(ctx, "event livemode does not match the configured secret key", warnFields)
}

func (s *Service) appURL(plan Plan) string {
	base := strings.TrimRight(strings.TrimSpace(s.config.AppBaseURL), "/")
	if base == "" {
		base = DefaultAppBaseURL
	}
	path := strings.TrimSpace(plan.AppPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func normalizeSession(session PurchaseSession) PurchaseSession {
	session.ID = strings.TrimSpace(session.ID)
	session.EventID = strings.TrimSpace(session.EventID)
	session.CustomerEmail = strings.TrimSpace(session.CustomerEmail)
	session.CustomerName = strings.TrimSpace(session.CustomerName)
	session.Currency = strings.ToLower(strings.TrimSpace(session.Currency))
	return session
}

func storeError(err error, message string, sessionID string) error {
	return WrapError(
		err,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		ErrorInternal,
		map[string]any{"session_id": sessionID},
	)
}

func withTextCode(fields map[string]any, textCode string) map[string]any {
	out := cloneFields(fields)
	out["text_code"] = textCode
	return out
}
