package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	WebhookPath       = "/webhooks/stripe"
	LegacyWebhookPath = "/.netlify/functions/stripe-webhook"
	HealthPath        = "/healthz"

	MetricRequests = "httpapi.requests.total"

	defaultShutdownTimeout = 10 * time.Second
)

// Dispatcher is the inbound pipeline the webhook handler hands raw deliveries to.
type Dispatcher interface {
	Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type WebhookHandler struct {
	Dispatcher      Dispatcher
	SignatureHeader string
	MaxBodyBytes    int64
	Logger          core.Logger
	Metrics         core.MetricsRecorder
}

func NewWebhookHandler(dispatcher Dispatcher, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = core.DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		Dispatcher:      dispatcher,
		SignatureHeader: webhooks.SignatureHeaderName,
		MaxBodyBytes:    maxBodyBytes,
		Logger:          glog.Nop(),
		Metrics:         core.NopMetricsRecorder{},
	}
}

// Handle accepts a delivery on any method so the 405 body matches what the
// processor dashboard expects.
func (h *WebhookHandler) Handle(ctx *gin.Context) {
	if ctx.Request.Method != http.MethodPost {
		h.count(ctx, http.StatusMethodNotAllowed)
		ctx.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}
	if h.Dispatcher == nil {
		h.fail(ctx, core.ConfigurationMissingError("webhook dispatcher"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, h.maxBodyBytes()+1))
	if err != nil {
		h.fail(ctx, readFailed(err))
		return
	}
	if int64(len(body)) > h.maxBodyBytes() {
		h.fail(ctx, bodyTooLarge(h.maxBodyBytes()))
		return
	}
	header := h.signatureHeader()
	if strings.TrimSpace(ctx.GetHeader(header)) == "" {
		h.fail(ctx, missingSignature(header))
		return
	}

	result, err := h.Dispatcher.Dispatch(ctx.Request.Context(), core.InboundRequest{
		ProviderID: core.ProviderStripe,
		Headers:    flattenHeaders(ctx.Request.Header),
		Body:       body,
		Metadata: map[string]any{
			"path":      ctx.FullPath(),
			"remote_ip": ctx.ClientIP(),
		},
	})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	response := gin.H{"received": true}
	for _, flag := range []string{"deduped", "ignored"} {
		if set, _ := result.Metadata[flag].(bool); set {
			response[flag] = true
		}
	}
	h.count(ctx, status)
	ctx.JSON(status, response)
}

func (h *WebhookHandler) fail(ctx *gin.Context, err error) {
	status := RespondError(ctx, err)
	level := "warn"
	if status >= http.StatusInternalServerError {
		level = "error"
	}
	fields := map[string]any{
		"path":        ctx.FullPath(),
		"status_code": status,
		"error":       err.Error(),
	}
	core.LogWithLevel(ctx.Request.Context(), h.Logger, level, "httpapi: webhook request failed", fields)
	h.count(ctx, status)
}

func (h *WebhookHandler) count(ctx *gin.Context, status int) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.IncCounter(ctx.Request.Context(), MetricRequests, 1, map[string]string{
		"path":   ctx.FullPath(),
		"status": http.StatusText(status),
	})
}

func (h *WebhookHandler) maxBodyBytes() int64 {
	if h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return core.DefaultMaxBodyBytes
}

func (h *WebhookHandler) signatureHeader() string {
	if header := strings.TrimSpace(h.SignatureHeader); header != "" {
		return header
	}
	return webhooks.SignatureHeaderName
}

// Health answers the liveness check.
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewRouter mounts the webhook on both the current and the legacy path.
func NewRouter(webhook *WebhookHandler, middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares...)
	engine.GET(HealthPath, Health)
	for _, path := range []string{WebhookPath, LegacyWebhookPath} {
		engine.Any(path, webhook.Handle)
	}
	return engine
}

// RequestLogger logs one line per request through logger.
func RequestLogger(logger core.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		startedAt := time.Now()
		ctx.Next()
		status := ctx.Writer.Status()
		level := "info"
		if status >= http.StatusInternalServerError {
			level = "error"
		}
		core.LogWithLevel(ctx.Request.Context(), logger, level, "httpapi: request", map[string]any{
			"method":      ctx.Request.Method,
			"path":        ctx.Request.URL.Path,
			"status_code": status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
		})
	}
}

// Server owns the listener lifecycle for the router.
type Server struct {
	httpServer      *http.Server
	ShutdownTimeout time.Duration
}

func NewServer(addr string, handler http.Handler) *Server {
	if strings.TrimSpace(addr) == "" {
		addr = core.DefaultHTTPAddr
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
