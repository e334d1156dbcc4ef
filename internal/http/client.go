package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"binancewallet/pkg/core"
)

// weightHeaderMarkers identify the exchange's request weight telemetry headers,
// e.g. X-SAPI-USED-IP-WEIGHT-1M or X-MBX-USED-WEIGHT-1M.
var weightHeaderMarkers = []string{"USED-IP-WEIGHT", "USED-UID-WEIGHT", "USED-WEIGHT"}

type Client struct {
	client *resty.Client
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

type Config struct {
	BaseURL string            `validate:"required,url"`
	Timeout time.Duration     `validate:"min=1ms"`
	Headers map[string]string `validate:"omitempty"`
}

// Response is the raw result of a request.
type Response struct {
	StatusCode int
	Body       []byte
}

func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(config.BaseURL)
	client.SetTimeout(config.Timeout)
	client.SetRetryCount(0)

	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	c := &Client{
		client: client,
		logger: logger,
	}

	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug().
			Str("method", req.Method).
			Str("url", redactQuery(req.URL)).
			Msg("http request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug().
			Str("method", resp.Request.Method).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("http response")
		if resp.StatusCode() == http.StatusOK {
			logWeightHeaders(logger, resp.Header())
		}
		return nil
	})

	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Do executes req. The raw query is passed through untouched so a signed
// query string is not re-encoded. Network failures are returned as errors;
// any HTTP status, including 4xx and 5xx, is a successful Do.
func (c *Client) Do(ctx context.Context, req *core.Request) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	c.logger.Debug().
		Str("path", req.Path).
		Int("weight", req.Weight).
		Msg("executing request")

	r := c.client.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}

	var resp *resty.Response
	var err error

	switch req.Method {
	case http.MethodGet:
		resp, err = r.Get(req.URL())
	default:
		return nil, fmt.Errorf("unsupported http method: %s", req.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("http %s %s: %w", req.Method, req.Path, err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Bytes(),
	}, nil
}

// WeightHeaders returns the request weight telemetry headers, keyed by the
// upper-cased header name. Values are left as sent by the server.
func WeightHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		upper := strings.ToUpper(k)
		for _, marker := range weightHeaderMarkers {
			if strings.Contains(upper, marker+"-") {
				out[upper] = v[0]
				break
			}
		}
	}
	return out
}

func logWeightHeaders(logger zerolog.Logger, h http.Header) {
	for name, used := range WeightHeaders(h) {
		logger.Debug().
			Str("header", name).
			Str("interval", name[strings.LastIndexByte(name, '-')+1:]).
			Str("used", used).
			Msg("current used weight")
	}
}

// redactQuery drops the query string so signatures never reach the logs.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
