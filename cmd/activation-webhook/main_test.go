package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-logger/glog"
)

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_cmd")

	cfg, err := loadConfig(context.Background(), options{driver: "memory"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Fatalf("expected env addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.DatabaseDriver() != core.DatabaseDriverMemory {
		t.Fatalf("expected flag driver to win, got %q", cfg.DatabaseDriver())
	}
	if cfg.Stripe.WebhookSecret != "whsec_cmd" {
		t.Fatalf("expected webhook secret from env, got %q", cfg.Stripe.WebhookSecret)
	}
}

func TestOpenPersistence_MigratesSQLite(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Database.Driver = core.DatabaseDriverSQLite
	cfg.Database.DSN = fmt.Sprintf("file:activation-cmd-%d?mode=memory&cache=shared", time.Now().UnixNano())

	ctx := context.Background()
	client, err := openPersistence(ctx, cfg, false)
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	defer client.Close()

	var count int
	if err := client.DB().NewSelect().TableExpr("activation_codes").ColumnExpr("COUNT(*)").Scan(ctx, &count); err != nil {
		t.Fatalf("expected activation_codes table after migrate: %v", err)
	}
}

func TestOpenPersistence_RejectsMemoryDriver(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Database.Driver = core.DatabaseDriverMemory
	if _, err := openPersistence(context.Background(), cfg, false); err == nil {
		t.Fatalf("expected error for memory driver")
	}
}

func TestNewLogger_WritesJSONWithProcessName(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug")

	logger.(glog.FieldsLogger).WithFields(map[string]any{
		"text_code":  "EMAIL_PROVIDER_FAILURE",
		"session_id": "cs_test_1",
	}).Warn("activation email failed", "provider", "sendgrid")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "activation email failed" {
		t.Fatalf("unexpected msg %v", entry["msg"])
	}
	if entry["level"] != "warn" {
		t.Fatalf("unexpected level %v", entry["level"])
	}
	if entry["logger"] != "activation-webhook" {
		t.Fatalf("expected process logger name, got %v", entry["logger"])
	}
	if entry["text_code"] != "EMAIL_PROVIDER_FAILURE" || entry["session_id"] != "cs_test_1" || entry["provider"] != "sendgrid" {
		t.Fatalf("expected fields in log line, got %v", entry)
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("ignored")
	logger.Debug("ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected info and debug to be filtered, got %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}
