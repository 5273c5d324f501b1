package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultUserAgent = "go-checkout-activation"

	defaultClientTimeout = 15 * time.Second
	// mail APIs answer with a status line or a short JSON error
	defaultResponseBodyLimit int64 = 64 << 10
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Successful reports a 2xx status.
func (r Response) Successful() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// RESTAdapter posts JSON to HTTP email providers and maps failures onto the
// shared error envelope.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"User-Agent": DefaultUserAgent},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

// PostJSON encodes payload and posts it with a JSON content type.
func (a *RESTAdapter) PostJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: encode json payload", http.StatusBadRequest, map[string]any{"url": endpoint})
	}
	merged := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}
	return a.Do(ctx, Request{Method: http.MethodPost, URL: endpoint, Headers: merged, Body: body})
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimSpace(req.URL)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: invalid request url", http.StatusBadRequest, map[string]any{"url": endpoint})
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: create http request", http.StatusBadRequest, map[string]any{"method": method, "url": endpoint})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: execute http request", http.StatusBadGateway, map[string]any{"method": method, "url": endpoint})
	}
	defer httpRes.Body.Close()

	limit := a.bodyLimit(req.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, map[string]any{"status_code": httpRes.StatusCode})
	}
	if int64(len(body)) > limit {
		return Response{}, transportError(
			fmt.Sprintf("transport: response body exceeds %d bytes", limit),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": httpRes.StatusCode, "url": endpoint},
		)
	}

	headers := make(map[string]string, len(httpRes.Header))
	for key, values := range httpRes.Header {
		headers[key] = strings.Join(values, ",")
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

func (a *RESTAdapter) bodyLimit(requestLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case a.MaxResponseBodyBytes > 0:
		return a.MaxResponseBodyBytes
	default:
		return defaultResponseBodyLimit
	}
}

func setHeaders(target http.Header, values map[string]string) {
	for key, value := range values {
		if key = strings.TrimSpace(key); key != "" {
			target.Set(key, strings.TrimSpace(value))
		}
	}
}
