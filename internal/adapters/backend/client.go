// Package backend — HTTP-клиент сервиса проверки задач.
// Каждая попытка ограничена таймаутом и лимитером RPS; сетевые ошибки, 5xx и 429
// повторяются с экспоненциальной задержкой (cenkalti/backoff), после исчерпания попыток
// возвращается reactions.ErrUnavailable. 404 — reactions.ErrNotFound без повторов.
// Прочие 4xx и некорректный JSON — постоянные ошибки.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"telegram-relay/internal/domain/reactions"
	"telegram-relay/internal/infra/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 5 * time.Second
	maxBodyBytes         = 1 << 20
)

// Options — параметры клиента.
type Options struct {
	BaseURL string
	// Timeout ограничивает одну попытку.
	Timeout time.Duration
	// MaxRetries — число повторов после первой попытки.
	MaxRetries int
	// RetryInterval — начальная пауза экспоненциального backoff.
	RetryInterval time.Duration
	// RPS ограничивает частоту запросов; 0 — без ограничения.
	RPS int
	// HTTPClient по умолчанию — http.Client без собственного таймаута.
	HTTPClient *http.Client
}

// StatusError — неожиданный HTTP-статус ответа.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected status " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client реализует reactions.Backend.
type Client struct {
	base     string
	http     *http.Client
	timeout  time.Duration
	retries  int
	interval time.Duration
	limiter  *rate.Limiter
}

// New создаёт клиента с дефолтами для незаданных полей.
func New(opts Options) *Client {
	c := &Client{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		http:     opts.HTTPClient,
		timeout:  opts.Timeout,
		retries:  max(opts.MaxRetries, 0),
		interval: opts.RetryInterval,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.interval <= 0 {
		c.interval = defaultRetryInterval
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS)
	}
	return c
}

type verifyBody struct {
	TID      string  `json:"tid"`
	Username *string `json:"username"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type inviteBody struct {
	Code string `json:"code"`
}

type inviteResponse struct {
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Verify проверяет ссылку /start: POST {base}/tasks/accounts/telegram/{id}/verify/{token}/.
func (c *Client) Verify(ctx context.Context, req reactions.VerifyRequest) (bool, error) {
	path := fmt.Sprintf("/tasks/accounts/telegram/%s/verify/%s/",
		url.PathEscape(req.IDToken), url.PathEscape(req.VerifyToken))

	body := verifyBody{TID: strconv.FormatInt(req.SenderID, 10)}
	if req.Username != "" {
		username := req.Username
		body.Username = &username
	}

	var out verifyResponse
	if err := c.post(ctx, path, body, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// Invite передаёт инвайт-код: POST {base}/tasks/telegram/invite/.
func (c *Client) Invite(ctx context.Context, code string) (reactions.InviteResult, error) {
	var out inviteResponse
	if err := c.post(ctx, "/tasks/telegram/invite/", inviteBody{Code: code}, &out); err != nil {
		return reactions.InviteResult{}, err
	}
	return reactions.InviteResult{Done: out.Done, Error: out.Error}, nil
}

// post отправляет JSON и декодирует ответ в out с повторами по политике клиента.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	endpoint := c.base + path

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.do(ctx, endpoint, payload, out)
		if err != nil && errors.Is(err, reactions.ErrUnavailable) {
			logger.Debug("backend attempt failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = 0

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx))
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	return nil
}

// do — одна попытка. Ошибки, которые не стоит повторять, заворачиваются в backoff.Permanent.
func (c *Client) do(ctx context.Context, endpoint string, payload []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("%w: %v", reactions.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("%w: read body: %v", reactions.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(reactions.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", reactions.ErrUnavailable, &StatusError{Code: resp.StatusCode, Body: snippet(data)})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: snippet(data)})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(errors.Wrap(err, "decode response"))
	}
	return nil
}

func snippet(data []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
