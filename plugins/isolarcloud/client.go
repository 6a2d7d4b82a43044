package isolarcloud

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const resultCodeOK = "1"

// Request is one call to the iSolarCloud OpenAPI gateway.
type Request struct {
	Path   string
	Params map[string]any
	// Lang selects the language of display names in the response.
	Lang string
}

// Transport sends gateway requests and returns the decoded JSON body. Non-2xx
// statuses, connectivity and decoding failures are returned as errors.
type Transport interface {
	Do(ctx context.Context, req Request) (map[string]any, error)
}

// Client talks to the iSolarCloud OpenAPI through a Transport.
type Client struct {
	transport Transport
	lang      string
	plantIDs  []string
	logger    *zap.SugaredLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request and result traces.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLang sets the vendor language code, e.g. "_en_US".
func WithLang(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.lang = lang
		}
	}
}

// WithPlantIDs sets the plants used when a caller does not name any.
func WithPlantIDs(ids []string) Option {
	return func(c *Client) {
		c.plantIDs = append([]string(nil), ids...)
	}
}

func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		lang:      defaultLang,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lang returns the language code sent with every request.
func (c *Client) Lang() string {
	return c.lang
}

// response is a successful gateway reply: the full body plus its result_data.
type response struct {
	path string
	body map[string]any
	data map[string]any
}

// call issues one request and turns any vendor-level error indicator into a
// RemoteServiceError.
func (c *Client) call(ctx context.Context, path string, params map[string]any) (response, error) {
	body, err := c.transport.Do(ctx, Request{Path: path, Params: params, Lang: c.lang})
	if err != nil {
		return response{}, err
	}
	if vendorFailed(body) {
		c.logger.Errorw("error response", "path", path, "body", body)
		return response{}, remoteError(path, body, "")
	}
	data, ok := body["result_data"].(map[string]any)
	if !ok {
		return response{}, remoteError(path, body, "response has no result_data")
	}
	return response{path: path, body: body, data: data}, nil
}

func vendorFailed(body map[string]any) bool {
	if body == nil {
		return true
	}
	if _, ok := body["error"]; ok {
		return true
	}
	if code, ok := body["result_code"]; ok && parseString(code) != resultCodeOK {
		return true
	}
	return false
}

func (r response) fail(format string, args ...any) *RemoteServiceError {
	return remoteError(r.path, r.body, fmt.Sprintf(format, args...))
}

// list returns result_data[key] as a list of objects. A missing or null key is an
// error unless optional is set.
func (r response) list(key string, optional bool) ([]map[string]any, error) {
	raw := r.data[key]
	if raw == nil {
		if optional {
			return nil, nil
		}
		return nil, r.fail("response has no %s", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, r.fail("%s is %T, not a list", key, raw)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, r.fail("%s[%d] is %T, not an object", key, i, item)
		}
		out = append(out, row)
	}
	return out, nil
}
