package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"

	"signal_bridge/internal/metrics"
	"signal_bridge/internal/models"
)

const maxBody = 4 << 20

type envelope struct {
	Code    json.RawMessage `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// SignedGet: приватный GET: подписанный query в URL, ключ в заголовке.
func (c *Client) SignedGet(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, true)
}

// SignedPost: подписанный query уходит телом x-www-form-urlencoded.
func (c *Client) SignedPost(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, params, true)
}

func (c *Client) PublicGet(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, false)
}

// do повторяет только транспортные ошибки; бизнес-отказ возвращается сразу.
func (c *Client) do(ctx context.Context, method, path string, params map[string]string, signed bool) (json.RawMessage, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryDelay
	bo.MaxInterval = 8 * c.retryDelay

	attempt := 0
	op := func() (json.RawMessage, error) {
		attempt++
		data, err := c.once(ctx, method, path, params, signed)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, models.ErrExchangeTransport) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("bingx request retry",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		outcome := "transport"
		switch {
		case errors.Is(err, models.ErrExchangeBusiness):
			outcome = "business"
		case errors.Is(err, models.ErrExchangeTransport):
		default:
			// отмена контекста между попытками
			err = &models.TransportError{Method: method, URL: c.baseURL + path, Path: path, Err: err}
		}
		metrics.ExchangeRequestsTotal.WithLabelValues(method, outcome).Inc()
		return nil, err
	}
	metrics.ExchangeRequestsTotal.WithLabelValues(method, "ok").Inc()
	return data, nil
}

func (c *Client) once(ctx context.Context, method, path string, params map[string]string, signed bool) (json.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "bingx "+method+" "+path)
	defer span.Finish()
	ext.HTTPMethod.Set(span, method)

	// таймаут попытки ограничен recvWindow
	ctx, cancel := context.WithTimeout(ctx, c.recvWindow)
	defer cancel()

	var query string
	if signed {
		query = c.SignQuery(params)
	} else {
		query = Canonical(params)
	}

	endpoint := c.baseURL + path
	target := endpoint
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if query != "" {
			target += "?" + query
		}
	} else {
		body = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("bingx %s %s new request: %w", method, path, err)
	}
	if signed || c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.log.Debug("bingx request",
		zap.String("method", method),
		zap.String("url", RedactSignature(target)),
		zap.String("body", RedactSignature(bodyString(body, query))),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, &models.TransportError{Method: method, URL: endpoint, Path: path, Err: err}
	}
	defer resp.Body.Close()
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		ext.Error.Set(span, true)
		return nil, &models.TransportError{Method: method, URL: endpoint, Path: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		ext.Error.Set(span, true)
		return nil, &models.TransportError{
			Method: method, URL: endpoint, Path: path, Status: resp.StatusCode,
			Err: fmt.Errorf("%s", truncate(raw, 256)),
		}
	}

	data, err := parseEnvelope(method, endpoint, path, raw)
	if err != nil && resp.StatusCode/100 != 2 && errors.Is(err, models.ErrExchangeTransport) {
		// 4xx без envelope, повтор не поможет
		err = &models.BusinessError{
			Method: method, URL: endpoint, Path: path,
			Code:    strconv.Itoa(resp.StatusCode),
			Message: "HTTP " + strconv.Itoa(resp.StatusCode) + ": " + truncate(raw, 256),
		}
	}
	if err != nil {
		ext.Error.Set(span, true)
		c.log.Warn("bingx request failed",
			zap.String("method", method),
			zap.String("url", RedactSignature(target)),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return nil, err
	}

	c.log.Debug("bingx response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return data, nil
}

// parseEnvelope: объект с code != 0/"0" это бизнес-ошибка, не объект это транспортная.
func parseEnvelope(method, url, path string, raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &models.TransportError{Method: method, URL: url, Path: path, Err: fmt.Errorf("non-object body: %s", truncate(trimmed, 256))}
	}

	var env envelope
	if err := sonic.Unmarshal(trimmed, &env); err != nil {
		return nil, &models.TransportError{Method: method, URL: url, Path: path, Err: fmt.Errorf("decode envelope: %w", err)}
	}

	code := codeString(env.Code)
	if code == "" || code == "0" {
		if len(env.Data) == 0 {
			return json.RawMessage("null"), nil
		}
		return env.Data, nil
	}

	msg := env.Msg
	if msg == "" {
		msg = env.Message
	}
	return nil, &models.BusinessError{Method: method, URL: url, Path: path, Code: code, Message: msg}
}

func codeString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := sonic.UnmarshalString(s, &str); err == nil {
			if str == "" {
				return "0"
			}
			return str
		}
	}
	return s
}

func bodyString(body io.Reader, query string) string {
	if body == nil {
		return ""
	}
	return query
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
