package isolarcloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/oauth2"

	"github.com/joshp123/solarcloud/internal/rate"
)

// sysCode identifies OpenAPI callers to the gateway.
const sysCode = "901"

// Numbers are kept as json.Number so point values reach coerceValue unrounded.
var gatewayJSON = jsoniter.Config{
	UseNumber:   true,
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()

// HTTPTransport posts JSON requests to the iSolarCloud OpenAPI gateway.
type HTTPTransport struct {
	baseURL   string
	appKey    string
	accessKey string
	http      *http.Client
}

// NewHTTPTransport builds a gateway transport. When tokens is non-nil every request
// carries its bearer token; limits wraps the client in a rate-limit guard.
func NewHTTPTransport(cfg Config, tokens oauth2.TokenSource, limits rate.Declaration) *HTTPTransport {
	base := &http.Client{Timeout: 20 * time.Second}
	if tokens != nil {
		base.Transport = &oauth2.Transport{Source: tokens, Base: http.DefaultTransport}
	}
	client := base
	if limits.Enabled() {
		client = rate.WrapHTTP(limits, base)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = regionEndpoints[defaultRegion]
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &HTTPTransport{
		baseURL:   baseURL,
		appKey:    cfg.AppKey,
		accessKey: cfg.AccessKey,
		http:      client,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (map[string]any, error) {
	payload := make(map[string]any, len(req.Params)+3)
	for key, value := range req.Params {
		payload[key] = value
	}
	payload["appkey"] = t.appKey
	payload["sys_code"] = sysCode
	if req.Lang != "" {
		payload["lang"] = req.Lang
	}

	data, err := gatewayJSON.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := t.baseURL + strings.TrimPrefix(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=UTF-8")
	httpReq.Header.Set("x-access-key", t.accessKey)

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var out map[string]any
	if err := gatewayJSON.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
