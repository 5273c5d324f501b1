package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-checkout-activation/adapters/gojob"
	"github.com/goliatone/go-checkout-activation/adapters/gologger"
	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/httpapi"
	"github.com/goliatone/go-checkout-activation/inbound"
	"github.com/goliatone/go-checkout-activation/notify"
	activationquery "github.com/goliatone/go-checkout-activation/query"
	sqlstore "github.com/goliatone/go-checkout-activation/store/sql"
	"github.com/goliatone/go-checkout-activation/transport"
	"github.com/goliatone/go-checkout-activation/webhooks"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepLimit = 100
	workerStopTimeout = 10 * time.Second
)

// RuntimeDependencies carries the process-level collaborators. A nil DB selects
// the in-memory stores; a nil Sender builds one from the email configuration.
type RuntimeDependencies struct {
	DB          *bun.DB
	Cache       repositorycache.CacheService
	Sender      notify.Sender
	HTTPClient  *transport.RESTAdapter
	Logger      core.Logger
	Metrics     core.MetricsRecorder
	RetryPolicy *gojob.RetryPolicy
	Clock       func() time.Time
}

// Runtime is the composed webhook process: stores, service, dispatcher, the
// notification backfill worker and the HTTP router.
type Runtime struct {
	Config     core.Config
	Service    *core.Service
	Facade     *Facade
	Dispatcher *inbound.Dispatcher
	Queue      *gojob.MemoryQueue
	Backfill   *gojob.BackfillEnqueuer
	Worker     *worker.Worker
	Router     *gin.Engine

	logger core.Logger
}

func NewRuntime(cfg core.Config, deps RuntimeDependencies) (*Runtime, error) {
	logger := glog.Ensure(deps.Logger)
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	claims, activations, err := buildStores(deps)
	if err != nil {
		return nil, err
	}

	sender := deps.Sender
	if sender == nil {
		sender, err = notify.NewSenderFromConfig(cfg, deps.HTTPClient)
		if err != nil {
			return nil, err
		}
	}
	notifier := notify.NewNotifier(
		sender,
		notify.WithFrom(cfg.Email.From, cfg.Email.FromName),
		notify.WithTimeout(cfg.EmailTimeout()),
		notify.WithLogger(logger),
		notify.WithMetrics(metrics),
	)

	queue := gojob.NewMemoryQueue()
	backfill := gojob.NewBackfillEnqueuer(queue)

	opts := []core.Option{
		core.WithActivationStore(activations),
		core.WithNotifier(notifier),
		core.WithNotificationBackfill(backfill),
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
	}
	if deps.Clock != nil {
		opts = append(opts, core.WithClock(deps.Clock))
	}
	service, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	resolved := service.Config()

	dispatcher := inbound.NewDispatcher(
		webhooks.NewSignatureVerifier(resolved.Stripe.WebhookSecret, resolved.Stripe.WebhookTolerance),
		claims,
	)
	dispatcher.KeyTTL = resolved.ClaimTTL()
	dispatcher.Logger = logger
	dispatcher.Metrics = metrics
	if err := inbound.RegisterStripeHandlers(dispatcher, service); err != nil {
		return nil, err
	}

	facade, err := NewFacade(service)
	if err != nil {
		return nil, err
	}

	policy := gojob.DefaultRetryPolicy()
	if deps.RetryPolicy != nil {
		policy = *deps.RetryPolicy
	}
	_, workerLogger, _, jobLogger := gologger.ResolveForJob("activation.backfill", nil, logger)
	backfillWorker, err := gojob.NewNotificationWorker(queue, service, gojob.WorkerConfig{
		Policy: policy,
		Hooks:  []worker.Hook{gojob.LoggingHook{Logger: workerLogger, Metrics: metrics}},
		Logger: jobLogger,
	})
	if err != nil {
		return nil, err
	}

	webhook := httpapi.NewWebhookHandler(dispatcher, resolved.BodyLimit())
	webhook.Logger = logger
	webhook.Metrics = metrics

	return &Runtime{
		Config:     resolved,
		Service:    service,
		Facade:     facade,
		Dispatcher: dispatcher,
		Queue:      queue,
		Backfill:   backfill,
		Worker:     backfillWorker,
		Router:     httpapi.NewRouter(webhook, httpapi.RequestLogger(logger)),
		logger:     logger,
	}, nil
}

func buildStores(deps RuntimeDependencies) (core.IdempotencyClaimStore, core.ActivationStore, error) {
	if deps.DB == nil {
		return inbound.NewInMemoryClaimStore(), core.NewMemoryActivationStore(), nil
	}
	factory, err := sqlstore.NewRepositoryFactoryFromDB(deps.DB)
	if err != nil {
		return nil, nil, err
	}
	if deps.Cache != nil {
		if err := factory.WithCache(deps.Cache); err != nil {
			return nil, nil, err
		}
	}
	if now := deps.Clock; now != nil {
		factory.ClaimStore().Now = now
	}
	return factory.ClaimStore(), factory.ActivationStore(), nil
}

// SweepPendingNotifications re-enqueues activations created before the cutoff
// whose email is still pending or failed. It returns how many were queued.
func (r *Runtime) SweepPendingNotifications(ctx context.Context, before time.Time, limit int) (int, error) {
	if r == nil || r.Facade == nil || r.Backfill == nil {
		return 0, core.ConfigurationMissingError("activation runtime")
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	pending, err := r.Facade.Queries().ListPendingNotifications.Query(ctx, activationquery.ListPendingNotificationsMessage{
		Before: before,
		Limit:  limit,
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, activation := range pending {
		if err := r.Backfill.EnqueueNotification(ctx, activation); err != nil {
			return queued, fmt.Errorf("activation: enqueue %s: %w", activation.SessionID, err)
		}
		queued++
	}
	if queued > 0 {
		core.LogWithLevel(ctx, r.logger, "info", "activation: pending notifications queued", map[string]any{
			"count": queued,
		})
	}
	return queued, nil
}

// Run serves HTTP on addr and drains the backfill queue until ctx is
// cancelled or either side fails.
func (r *Runtime) Run(ctx context.Context, addr string) error {
	if r == nil || r.Router == nil || r.Worker == nil {
		return core.ConfigurationMissingError("activation runtime")
	}
	if addr == "" {
		addr = r.Config.HTTP.Addr
	}
	server := httpapi.NewServer(addr, r.Router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := r.Worker.Start(groupCtx); err != nil {
			return err
		}
		<-groupCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), workerStopTimeout)
		defer cancel()
		return r.Worker.Stop(stopCtx)
	})
	group.Go(func() error {
		core.LogWithLevel(groupCtx, r.logger, "info", "activation: http server listening", map[string]any{
			"addr": server.Addr(),
		})
		return server.Run(groupCtx)
	})
	return group.Wait()
}
