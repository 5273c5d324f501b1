package activation_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	activation "github.com/goliatone/go-checkout-activation"
	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/httpapi"
	activationmigrations "github.com/goliatone/go-checkout-activation/migrations"
	"github.com/goliatone/go-checkout-activation/notify"
	activationquery "github.com/goliatone/go-checkout-activation/query"
	"github.com/goliatone/go-checkout-activation/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const runtimeSecret = "whsec_runtime_test"

func init() {
	gin.SetMode(gin.TestMode)
}

func checkoutPayload(eventID string, sessionID string, amount int64) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "created": 1700000000,
  "type": "checkout.session.completed",
  "data": {"object": {"id": %q, "object": "checkout.session", "amount_total": %d, "currency": "eur", "customer_details": {"email": "paul@example.fr", "name": "Paul"}}}
}`, eventID, sessionID, amount)
}

func runtimeConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Stripe.WebhookSecret = runtimeSecret
	return cfg
}

func postSigned(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, httpapi.WebhookPath, strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeaderName, webhooks.SignatureHeaderValue(time.Now().Unix(), []byte(body), runtimeSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRuntime_MemoryStoresIssueAndNotify(t *testing.T) {
	sender := &scriptedSender{}
	rt, err := activation.NewRuntime(runtimeConfig(), activation.RuntimeDependencies{Sender: sender})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	rec := postSigned(t, rt.Router, checkoutPayload("evt_rt_1", "cs_rt_1", 9900))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sender.count() != 1 {
		t.Fatalf("expected one email, got %d", sender.count())
	}
	if to := sender.last().To; to != "paul@example.fr" {
		t.Fatalf("unexpected recipient %q", to)
	}

	stored, err := rt.Facade.Queries().GetActivation.Query(context.Background(), activationquery.GetActivationMessage{SessionID: "cs_rt_1"})
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if stored.Tier != core.TierPro || stored.NotificationStatus != core.NotificationSent {
		t.Fatalf("unexpected stored activation %#v", stored)
	}
	if rt.Queue.Len() != 0 {
		t.Fatalf("expected empty backfill queue, got %d", rt.Queue.Len())
	}
}

func TestRuntime_FailedEmailIsBackfilledByWorker(t *testing.T) {
	sender := &scriptedSender{failures: 1}
	rt, err := activation.NewRuntime(runtimeConfig(), activation.RuntimeDependencies{Sender: sender})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	rec := postSigned(t, rt.Router, checkoutPayload("evt_rt_2", "cs_rt_2", 4900))
	if rec.Code != http.StatusOK {
		t.Fatalf("email failure must still acknowledge, got %d", rec.Code)
	}
	if rt.Queue.Len() != 1 {
		t.Fatalf("expected failed notification to be queued, got %d", rt.Queue.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Worker.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	defer func() {
		if err := rt.Worker.Stop(context.Background()); err != nil {
			t.Errorf("stop worker: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := rt.Facade.Queries().GetActivation.Query(ctx, activationquery.GetActivationMessage{SessionID: "cs_rt_2"})
		if err != nil {
			t.Fatalf("get activation: %v", err)
		}
		if stored.NotificationStatus == core.NotificationSent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected sent after backfill, got %q", stored.NotificationStatus)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sender.count() != 2 {
		t.Fatalf("expected a second send attempt, got %d", sender.count())
	}
	if rt.Queue.Len() != 0 {
		t.Fatalf("expected queue drained, got %d", rt.Queue.Len())
	}
}

func TestRuntime_SweepQueuesPendingNotifications(t *testing.T) {
	rt, err := activation.NewRuntime(runtimeConfig(), activation.RuntimeDependencies{Sender: &scriptedSender{}})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	store := rt.Service.Dependencies().ActivationStore
	ctx := context.Background()
	for _, sessionID := range []string{"cs_sweep_1", "cs_sweep_2"} {
		if _, _, err := store.Create(ctx, core.Activation{SessionID: sessionID, Code: "PREMIUM-" + sessionID, Tier: core.TierPremium, CustomerEmail: "paul@example.fr"}); err != nil {
			t.Fatalf("seed %s: %v", sessionID, err)
		}
	}

	queued, err := rt.SweepPendingNotifications(ctx, time.Now().Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if queued != 2 || rt.Queue.Len() != 2 {
		t.Fatalf("expected two queued notifications, got queued=%d len=%d", queued, rt.Queue.Len())
	}

	// queued keys are deduplicated
	if _, err := rt.SweepPendingNotifications(ctx, time.Time{}, 10); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if rt.Queue.Len() != 2 {
		t.Fatalf("expected no duplicates in queue, got %d", rt.Queue.Len())
	}
}

func TestRuntime_RejectsUnsupportedEmailProvider(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Email.Provider = "carrier-pigeon"
	if _, err := activation.NewRuntime(cfg, activation.RuntimeDependencies{}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected BAD_INPUT for unknown provider, got %v", err)
	}
}

func TestRuntime_SQLiteStoresDedupeRedelivery(t *testing.T) {
	client := newSQLiteClient(t)

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	sender := &scriptedSender{}
	rt, err := activation.NewRuntime(runtimeConfig(), activation.RuntimeDependencies{
		DB:     client.DB(),
		Cache:  cacheService,
		Sender: sender,
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	body := checkoutPayload("evt_rt_sql", "cs_rt_sql", 4900)
	for attempt := 0; attempt < 2; attempt++ {
		if rec := postSigned(t, rt.Router, body); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d: %s", attempt, rec.Code, rec.Body.String())
		}
	}
	if sender.count() != 1 {
		t.Fatalf("expected exactly one email across redelivery, got %d", sender.count())
	}
	stored, err := rt.Facade.Queries().GetActivation.Query(context.Background(), activationquery.GetActivationMessage{SessionID: "cs_rt_sql"})
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if stored.Tier != core.TierPremium || stored.NotificationStatus != core.NotificationSent {
		t.Fatalf("unexpected stored activation %#v", stored)
	}
}

func TestRuntime_RunStopsOnCancel(t *testing.T) {
	rt, err := activation.NewRuntime(runtimeConfig(), activation.RuntimeDependencies{Sender: &scriptedSender{}})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rt.Run(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runtime did not stop")
	}
}

type scriptedSender struct {
	mu       sync.Mutex
	failures int
	messages []notify.Message
}

func (*scriptedSender) Name() string { return "scripted" }

func (s *scriptedSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("provider unavailable")
	}
	return nil
}

func (s *scriptedSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *scriptedSender) last() notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

type sqlitePersistenceConfig struct {
	dsn string
}

func (c sqlitePersistenceConfig) GetDebug() bool                { return false }
func (c sqlitePersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c sqlitePersistenceConfig) GetServer() string             { return c.dsn }
func (c sqlitePersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c sqlitePersistenceConfig) GetOtelIdentifier() string {
	return "go-checkout-activation-runtime-tests"
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:activation-runtime-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(sqlitePersistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	ctx := context.Background()
	if _, err := activationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == activationmigrations.DialectSQLite {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, activationmigrations.WithValidationTargets(activationmigrations.DialectSQLite)); err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
