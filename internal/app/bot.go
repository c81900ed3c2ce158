package app

import (
	"context"
	"fmt"
	"sync"

	"telegram-relay/internal/adapters/backend"
	telegrambot "telegram-relay/internal/adapters/telegram/bot"
	"telegram-relay/internal/domain/reactions"
	"telegram-relay/internal/infra/concurrency"
	"telegram-relay/internal/infra/config"
	"telegram-relay/internal/infra/logger"
	"telegram-relay/internal/infra/telegram/peersmgr"
	"telegram-relay/internal/infra/telegram/session"

	"github.com/go-faster/errors"
	boltstor "github.com/gotd/contrib/bbolt"
	"github.com/gotd/contrib/middleware/floodwait"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// botRunner — бот: /start-верификация, инвайт-коды и реакции на состав чатов.
type botRunner struct {
	token  string
	client *telegram.Client
	waiter *floodwait.Waiter
	peers  *peersmgr.Service
	chat   *telegrambot.Chat
	dedup  *concurrency.Deduplicator
	updMgr *tgupdates.Manager

	updatesWG     sync.WaitGroup
	updatesCancel context.CancelFunc
}

func newBotRunner(env config.EnvConfig, api *backend.Client) (*botRunner, error) {
	dispatcher := tg.NewUpdateDispatcher()
	lazyHandler := &lazyUpdateHandler{}
	waiter := floodwait.NewWaiter()
	client := telegram.NewClient(env.APIID, env.APIHash, clientOptions(env,
		&session.FileStorage{Path: env.BotSessionFile, Name: "bot"},
		lazyHandler, waiter))

	peersSvc, err := peersmgr.New(client.API(), env.BotDBFile)
	if err != nil {
		return nil, fmt.Errorf("init bot peers: %w", err)
	}

	// Состояние апдейтов живёт в той же bbolt-базе, что и пиры бота.
	updMgr := tgupdates.New(tgupdates.Config{
		Handler:      dispatcher,
		Storage:      boltstor.NewStateStorage(peersSvc.DB()),
		AccessHasher: peersSvc.Mgr,
	})
	lazyHandler.set(contribstorage.UpdateHook(peersSvc.Mgr.UpdateHook(updMgr), peersSvc.Store()))

	chat := telegrambot.NewChat(client.API(), peersSvc)
	dedup := concurrency.NewDeduplicator(env.DedupWindowSec)
	handler := reactions.NewHandler(chat, api, reactions.Options{DebugDumps: env.DebugDumps})
	telegrambot.NewUpdates(handler, dedup, chat.SelfID).Register(dispatcher)

	return &botRunner{
		token:  env.BotToken,
		client: client,
		waiter: waiter,
		peers:  peersSvc,
		chat:   chat,
		dedup:  dedup,
		updMgr: updMgr,
	}, nil
}

// run логинит бота, запускает менеджер апдейтов и ждёт отмены ctx.
func (r *botRunner) run(ctx context.Context) error {
	if err := r.peers.LoadFromStorage(ctx); err != nil {
		logger.Errorf("failed to load bot peers from storage: %v", err)
	}

	return r.waiter.Run(ctx, func(ctx context.Context) error {
		return r.client.Run(ctx, func(ctx context.Context) error {
			self, err := r.loginSelf(ctx)
			if err != nil {
				return err
			}
			r.chat.SetSelf(self.ID)

			if err := r.peers.Mgr.Init(ctx); err != nil {
				logger.Warn("failed to init bot peers manager", zap.Error(err))
			}

			updErr := r.startServices(ctx, self.ID)
			var runErr error
			select {
			case <-ctx.Done():
			case runErr = <-updErr:
			}
			r.stopServices()
			if runErr != nil {
				return runErr
			}
			return ctx.Err()
		})
	})
}

func (r *botRunner) loginSelf(ctx context.Context) (*tg.User, error) {
	status, err := r.client.Auth().Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "bot auth status")
	}
	if !status.Authorized {
		if _, err := r.client.Auth().Bot(ctx, r.token); err != nil {
			return nil, errors.Wrap(err, "bot auth")
		}
	}

	self, err := r.client.Self(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "bot self")
	}
	logger.Logger().Info("Bot logged in as:",
		zap.String("Username", self.Username),
		zap.Int64("ID", self.ID),
	)
	return self, nil
}

// startServices поднимает дедупликатор и менеджер апдейтов.
// Возвращаемый канал получает ошибку, если менеджер апдейтов упал сам.
func (r *botRunner) startServices(ctx context.Context, selfID int64) <-chan error {
	logger.Debug("starting service deduplicator")
	r.dedup.Start(ctx)

	logger.Debug("starting service updates_manager")
	updErr := make(chan error, 1)
	updatesCtx, updatesCancel := context.WithCancel(ctx)
	r.updatesCancel = updatesCancel
	r.updatesWG.Go(func() {
		mgrErr := r.updMgr.Run(updatesCtx, r.client.API(), selfID, tgupdates.AuthOptions{
			IsBot: true,
			OnStart: func(context.Context) {
				logger.Info("Bot is listening for updates")
			},
		})
		if mgrErr != nil && !errors.Is(mgrErr, context.Canceled) {
			logger.Errorf("updmgr.Run return: %v", mgrErr)
			updErr <- mgrErr
		}
		logger.Debugf("updates_manager service: Run finished (err=%v)", mgrErr)
	})
	return updErr
}

func (r *botRunner) stopServices() {
	logger.Debug("stopping service updates_manager")
	if r.updatesCancel != nil {
		r.updatesCancel()
	}
	r.updatesWG.Wait()

	logger.Debug("stopping service deduplicator")
	r.dedup.Stop()
}

func (r *botRunner) close() error {
	return r.peers.Close()
}
