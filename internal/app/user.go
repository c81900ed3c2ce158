package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	telegramuser "telegram-relay/internal/adapters/telegram/user"
	"telegram-relay/internal/adapters/web"
	"telegram-relay/internal/domain/login"
	"telegram-relay/internal/infra/config"
	"telegram-relay/internal/infra/logger"
	"telegram-relay/internal/infra/telegram/peersmgr"
	"telegram-relay/internal/infra/telegram/session"

	"github.com/gotd/contrib/middleware/floodwait"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// userRunner — пользовательская сессия: веб-вход и проверки каналов/юзернеймов.
type userRunner struct {
	client  *telegram.Client
	waiter  *floodwait.Waiter
	peers   *peersmgr.Service
	pending *login.PendingStore
	server  *web.Server

	// stored получает сигнал после каждой записи файла сессии (в т.ч. после веб-входа).
	stored     sessionSignal
	authorized atomic.Bool
}

// sessionSignal сворачивает серию записей сессии в один необработанный сигнал.
type sessionSignal chan struct{}

func newSessionSignal() sessionSignal {
	return make(sessionSignal, 1)
}

func (s sessionSignal) notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

func newUserRunner(env config.EnvConfig) (*userRunner, error) {
	lazyHandler := &lazyUpdateHandler{}
	waiter := floodwait.NewWaiter()
	stored := newSessionSignal()
	client := telegram.NewClient(env.APIID, env.APIHash, clientOptions(env,
		&session.FileStorage{Path: env.PhoneSessionFile, Name: "phone", OnStore: stored.notify},
		lazyHandler, waiter))

	peersSvc, err := peersmgr.New(client.API(), env.PhoneDBFile)
	if err != nil {
		return nil, fmt.Errorf("init user peers: %w", err)
	}
	// Апдейты пользователю не нужны, но сущности из них пополняют кэш пиров.
	lazyHandler.set(contribstorage.UpdateHook(
		peersSvc.Mgr.UpdateHook(telegram.UpdateHandlerFunc(func(context.Context, tg.UpdatesClass) error { return nil })),
		peersSvc.Store(),
	))

	authAPI := client.Auth()
	pending := login.NewPendingStore(time.Duration(env.LoginTTLMin) * time.Minute)
	flow := login.NewFlow(telegramuser.NewAuthenticator(authAPI), pending)
	lookup := telegramuser.NewLookup(authAPI, client.API(), peersSvc.Mgr)

	return &userRunner{
		client:  client,
		waiter:  waiter,
		peers:   peersSvc,
		pending: pending,
		stored:  stored,
		server: web.NewServer(flow, lookup, web.Options{
			Address:   env.WebAddress,
			CookieTTL: time.Duration(env.LoginTTLMin) * time.Minute,
			Cleaner:   pending,
		}),
	}, nil
}

// run держит соединение пользователя и веб-сервер до отмены ctx.
func (r *userRunner) run(ctx context.Context) error {
	if err := r.peers.LoadFromStorage(ctx); err != nil {
		logger.Errorf("failed to load user peers from storage: %v", err)
	}

	return r.waiter.Run(ctx, func(ctx context.Context) error {
		return r.client.Run(ctx, func(ctx context.Context) error {
			r.refreshStatus(ctx)

			serverErr := make(chan error, 1)
			var wg sync.WaitGroup
			wg.Go(func() { serverErr <- r.server.Start(ctx) })

			var runErr error
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case runErr = <-serverErr:
					break loop
				case <-r.stored:
					if !r.authorized.Load() {
						r.refreshStatus(ctx)
					}
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), webServerShutdownTimeout)
			defer cancel()
			if err := r.server.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("failed to stop web_server: %v", err)
			}
			wg.Wait()
			if runErr != nil {
				return runErr
			}
			return ctx.Err()
		})
	})
}

// refreshStatus проверяет авторизацию пользователя. При первом успешном входе
// инициализирует peers.Manager, повторные вызовы после этого ничего не делают.
func (r *userRunner) refreshStatus(ctx context.Context) {
	status, err := r.client.Auth().Status(ctx)
	if err != nil {
		logger.Warn("user auth status unavailable", zap.Error(err))
		return
	}
	if !status.Authorized {
		logger.Debug("User session is not authorized, waiting for web login")
		return
	}
	if r.authorized.Swap(true) {
		return
	}
	if err := r.peers.Mgr.Init(ctx); err != nil {
		logger.Warn("failed to init user peers manager", zap.Error(err))
	}
	logger.Info("User session authorized",
		zap.Int64("ID", status.User.ID),
		zap.String("Username", status.User.Username))
}

func (r *userRunner) close() error {
	r.pending.Reset()
	return r.peers.Close()
}
