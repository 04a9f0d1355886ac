package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"socialops/domain/model"
	"socialops/infrastructure/telemetry"
)

const maxErrorBody = 2048

// apiClient performs bearer-authenticated JSON calls and translates the
// platform's throttling and auth failures into the shared error taxonomy.
type apiClient struct {
	platform model.Platform
	baseURL  string
	http     *http.Client
	headers  map[string]string
	metrics  *telemetry.Collector
	now      func() time.Time
}

func newAPIClient(p model.Platform, baseURL string, timeout time.Duration, metrics *telemetry.Collector) *apiClient {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &apiClient{
		platform: p,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		headers:  map[string]string{},
		metrics:  metrics,
		now:      time.Now,
	}
}

type apiCall struct {
	op     string
	method string
	path   string
	token  string
	params interface{}
	body   interface{}
	out    interface{}
}

// do runs the call and returns the response headers on success.
func (c *apiClient) do(ctx context.Context, call apiCall) (http.Header, error) {
	target := c.baseURL + call.path
	if call.params != nil {
		v, err := query.Values(call.params)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode query: %w", c.platform, call.op, err)
		}
		if enc := v.Encode(); enc != "" {
			target += "?" + enc
		}
	}

	var body io.Reader
	if call.body != nil {
		b, err := json.Marshal(call.body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", c.platform, call.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.platform, call.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.token != "" {
		req.Header.Set("Authorization", "Bearer "+call.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveAdapterCall(string(c.platform), call.op, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.platform, call.op, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(call.op, resp); err != nil {
		return nil, err
	}
	if call.out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(call.out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%s %s: decode response: %w", c.platform, call.op, err)
		}
	}
	return resp.Header, nil
}

func (c *apiClient) checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.RecordRateLimited(string(c.platform))
		return &model.RateLimitError{Platform: c.platform, RetryAfter: retryAfterHint(resp.Header, c.now())}
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", c.platform, op, model.ErrTokenRevoked)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &model.PlatformError{Platform: c.platform, Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// retryAfterHint reads Retry-After (delta seconds or HTTP date) and falls back
// to x-rate-limit-reset (epoch seconds). Nil when neither is usable.
func retryAfterHint(h http.Header, now time.Time) *time.Duration {
	if ra := strings.TrimSpace(h.Get("Retry-After")); ra != "" {
		if secs, err := strconv.ParseInt(ra, 10, 64); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			return &d
		}
		if at, err := http.ParseTime(ra); err == nil {
			d := clampNonNegative(at.Sub(now))
			return &d
		}
	}
	if reset := strings.TrimSpace(h.Get("x-rate-limit-reset")); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			d := clampNonNegative(time.Unix(epoch, 0).Sub(now))
			return &d
		}
	}
	return nil
}

func clampNonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Round(time.Second)
}
