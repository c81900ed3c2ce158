// Package app — верхний уровень сборки релея.
// Здесь связываются конфигурация, два MTProto-клиента (пользовательская сессия и бот),
// backend проверки задач и веб-сервер. Клиенты работают параллельно в одной errgroup:
// падение одного останавливает другой, отмена внешнего контекста гасит оба.
package app

import (
	"context"
	"sync"
	"time"

	"telegram-relay/internal/adapters/backend"
	"telegram-relay/internal/infra/config"
	"telegram-relay/internal/infra/logger"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	appVersion               = "1.0.0"
	backendRetryInterval     = 500 * time.Millisecond
	webServerShutdownTimeout = 10 * time.Second
)

// lazyUpdateHandler — это обёртка, которая позволяет отложить установку
// реального обработчика апдейтов: ему нужен client.API(), а клиенту — обработчик.
type lazyUpdateHandler struct {
	mu      sync.RWMutex
	handler telegram.UpdateHandler
}

func (h *lazyUpdateHandler) Handle(ctx context.Context, u tg.UpdatesClass) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.handler != nil {
		return h.handler.Handle(ctx, u)
	}
	return nil
}

func (h *lazyUpdateHandler) set(realHandler telegram.UpdateHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = realHandler
}

// App агрегирует обе стороны релея.
type App struct {
	env  config.EnvConfig
	user *userRunner
	bot  *botRunner
}

// NewApp создаёт приложение по загруженной конфигурации.
func NewApp(env config.EnvConfig) *App {
	return &App{env: env}
}

// Run собирает клиентов и блокируется до отмены ctx или фатальной ошибки одного из них.
func (a *App) Run(ctx context.Context) error {
	logger.Info("Relay initializing...")

	user, err := newUserRunner(a.env)
	if err != nil {
		return err
	}
	a.user = user

	api := backend.New(backend.Options{
		BaseURL:       a.env.BackendURL,
		Timeout:       time.Duration(a.env.BackendTimeoutSec) * time.Second,
		MaxRetries:    a.env.BackendRetries,
		RetryInterval: backendRetryInterval,
		RPS:           a.env.BackendRPS,
	})
	bot, err := newBotRunner(a.env, api)
	if err != nil {
		_ = user.close()
		return err
	}
	a.bot = bot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.user.run(gctx) })
	g.Go(func() error { return a.bot.run(gctx) })
	runErr := g.Wait()

	if err := a.user.close(); err != nil {
		logger.Errorf("close user storage: %v", err)
	}
	if err := a.bot.close(); err != nil {
		logger.Errorf("close bot storage: %v", err)
	}
	if runErr != nil && ctx.Err() != nil {
		// Ошибки клиентов после внешней отмены — следствие shutdown.
		logger.Debugf("clients stopped after shutdown: %v", runErr)
		return nil
	}
	return runErr
}

// clientOptions — общие для обоих клиентов опции gotd.
func clientOptions(env config.EnvConfig, storage telegram.SessionStorage, handler telegram.UpdateHandler, waiter *floodwait.Waiter) telegram.Options {
	rps := max(env.ThrottleRPS, 1)
	options := telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  handler,
		Middlewares: []telegram.Middleware{
			waiter,
			ratelimit.New(rate.Limit(rps), rps*2), //nolint:mnd // burst = 2*rate
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "telegram-relay",
			SystemVersion: "linux",
			AppVersion:    appVersion,
		},
	}
	if env.TestDC {
		options.DCList = dcs.Test()
	}
	return options
}
