// Package bot — адаптер бот-сессии: переводит апдейты gotd в доменные события reactions,
// отсекает повторы и отвечает в чаты через RPC-клиент бота.
package bot

import (
	"context"

	"telegram-relay/internal/domain/reactions"
	"telegram-relay/internal/infra/concurrency"
	"telegram-relay/internal/infra/logger"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Reactor — получатель доменных событий (reactions.Handler).
type Reactor interface {
	OnMessage(ctx context.Context, msg reactions.Message) error
	OnMembership(ctx context.Context, ev reactions.MembershipEvent) error
}

// Updates — обработчики апдейтов бота для tg.UpdateDispatcher.
type Updates struct {
	reactor Reactor
	dedup   *concurrency.Deduplicator
	self    func() int64
}

// NewUpdates связывает реакции, дедупликатор и источник id бота.
func NewUpdates(reactor Reactor, dedup *concurrency.Deduplicator, self func() int64) *Updates {
	return &Updates{reactor: reactor, dedup: dedup, self: self}
}

// Register подписывает обработчики на новые сообщения в личках, группах и супергруппах.
func (u *Updates) Register(d tg.UpdateDispatcher) {
	d.OnNewMessage(u.OnNewMessage)
	d.OnNewChannelMessage(u.OnNewChannelMessage)
}

// OnNewMessage — личные сообщения и обычные группы.
func (u *Updates) OnNewMessage(ctx context.Context, e tg.Entities, upd *tg.UpdateNewMessage) error {
	u.handle(ctx, e, upd.Message)
	return nil
}

// OnNewChannelMessage — супергруппы и каналы.
func (u *Updates) OnNewChannelMessage(ctx context.Context, e tg.Entities, upd *tg.UpdateNewChannelMessage) error {
	u.handle(ctx, e, upd.Message)
	return nil
}

// handle не возвращает ошибок реакций в updates.Manager: сбой одного события
// не должен останавливать поток апдейтов, он только логируется.
func (u *Updates) handle(ctx context.Context, e tg.Entities, m tg.MessageClass) {
	switch msg := m.(type) {
	case *tg.Message:
		if msg.Out {
			return
		}
		domainMsg, ok := messageFromTG(msg, e, u.self())
		if !ok || u.dedup.Seen(markedID(domainMsg.Chat), domainMsg.ID) {
			return
		}
		if err := u.reactor.OnMessage(ctx, domainMsg); err != nil {
			logger.Error("message reaction failed",
				zap.Int64("chat", domainMsg.Chat.ID),
				zap.Int("msg", domainMsg.ID),
				zap.Int64("sender", domainMsg.SenderID),
				zap.Error(err))
		}

	case *tg.MessageService:
		ev, ok := membershipFromTG(msg, e)
		if !ok || u.dedup.Seen(markedID(ev.Chat), ev.ID) {
			return
		}
		if err := u.reactor.OnMembership(ctx, ev); err != nil {
			logger.Error("membership reaction failed",
				zap.Stringer("kind", ev.Kind),
				zap.Int64("chat", ev.Chat.ID),
				zap.Error(err))
		}
	}
}
