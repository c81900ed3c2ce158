// Package reactions — реакции бота на входящие события.
//
// Новые сообщения проходят упорядоченную цепочку правил [start/verify, invite reply].
// Правило возвращает Continue или Stop; Stop прерывает цепочку для этого сообщения.
// Изменения состава чата классифицируются в Joined | Added | Other, и на каждый вариант
// бот отвечает не более одного раза.
package reactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-relay/internal/domain/invite"
	"telegram-relay/internal/infra/logger"
	"telegram-relay/internal/infra/pr"

	"go.uber.org/zap"
)

// Тексты ответов бота.
const (
	ReplyInvalidLink  = "invalid link"
	ReplyVerified     = "verified"
	ReplyInvalidCode  = "invalid code"
	ReplyDone         = "done"
	ReplyUnavailable  = "service unavailable, try again later"
	InvitePromptTitle = "Send your invite code (if any | reply to this):\n"
)

// Outcome — решение правила о дальнейшей обработке сообщения.
type Outcome int

const (
	Continue Outcome = iota
	Stop
)

type rule struct {
	name string
	fn   func(ctx context.Context, msg Message) (Outcome, error)
}

// Options — настройки реакций.
type Options struct {
	// DebugDumps включает диагностические дампы для Added/Other вместо промпта/молчания.
	DebugDumps bool
}

// Handler — набор правил бота.
type Handler struct {
	chat    Chat
	backend Backend
	opts    Options
	rules   []rule
}

// NewHandler собирает цепочку правил поверх Chat и Backend.
func NewHandler(chat Chat, backend Backend, opts Options) *Handler {
	h := &Handler{chat: chat, backend: backend, opts: opts}
	h.rules = []rule{
		{name: "start", fn: h.handleStart},
		{name: "invite_reply", fn: h.handleInviteReply},
	}
	return h
}

// OnMessage прогоняет сообщение через цепочку правил.
// Ошибка правила прерывает цепочку и возвращается вызывающему.
func (h *Handler) OnMessage(ctx context.Context, msg Message) error {
	for _, r := range h.rules {
		outcome, err := r.fn(ctx, msg)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.name, err)
		}
		if outcome == Stop {
			logger.Debug("rule chain stopped",
				zap.String("rule", r.name),
				zap.Int64("chat", msg.Chat.ID),
				zap.Int("msg", msg.ID))
			return nil
		}
	}
	return nil
}

// handleStart — проверка ссылки /start <id>_<token> через backend.
func (h *Handler) handleStart(ctx context.Context, msg Message) (Outcome, error) {
	payload, ok := ParseStart(msg.Text)
	if !ok {
		return Continue, nil
	}
	idToken, verifyToken, ok := SplitPayload(payload)
	if !ok {
		logger.Debug("malformed start payload", zap.String("payload", payload), zap.Int64("sender", msg.SenderID))
		return Stop, h.reply(ctx, msg, ReplyInvalidLink)
	}

	verified, err := h.backend.Verify(ctx, VerifyRequest{
		IDToken:     idToken,
		VerifyToken: verifyToken,
		SenderID:    msg.SenderID,
		Username:    msg.SenderUsername,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return Stop, h.reply(ctx, msg, ReplyInvalidLink)
	case errors.Is(err, ErrUnavailable):
		logger.Warn("verify: backend unavailable", zap.Error(err))
		return Stop, h.reply(ctx, msg, ReplyUnavailable)
	case err != nil:
		return Stop, fmt.Errorf("verify: %w", err)
	case verified:
		logger.Info("account verified", zap.Int64("sender", msg.SenderID), zap.String("id", idToken))
		return Stop, h.reply(ctx, msg, ReplyVerified)
	default:
		return Continue, nil
	}
}

// handleInviteReply — ответ пользователя на промпт бота со своим инвайт-кодом.
func (h *Handler) handleInviteReply(ctx context.Context, msg Message) (Outcome, error) {
	if !msg.IsReply() {
		return Continue, nil
	}
	target, ok, err := h.chat.ReplyTarget(ctx, msg)
	if err != nil {
		return Continue, fmt.Errorf("fetch replied message: %w", err)
	}
	if !ok || target.SenderID != h.chat.SelfID() || !invite.Matches(target.Text, msg.SenderID) {
		return Continue, nil
	}

	res, err := h.backend.Invite(ctx, msg.Text)
	switch {
	case errors.Is(err, ErrNotFound):
		return Stop, h.reply(ctx, msg, ReplyInvalidCode)
	case errors.Is(err, ErrUnavailable):
		logger.Warn("invite: backend unavailable", zap.Error(err))
		return Stop, h.reply(ctx, msg, ReplyUnavailable)
	case err != nil:
		return Stop, fmt.Errorf("invite: %w", err)
	case res.Done:
		logger.Info("invite code accepted", zap.Int64("sender", msg.SenderID))
		return Stop, h.reply(ctx, msg, ReplyDone)
	}

	text := strings.TrimSpace(res.Error)
	if text == "" {
		text = ReplyInvalidCode
	}
	return Continue, h.reply(ctx, msg, text)
}

// OnMembership отвечает на изменение состава чата: один ответ на вариант события.
func (h *Handler) OnMembership(ctx context.Context, ev MembershipEvent) error {
	logger.Debug("membership event",
		zap.Stringer("kind", ev.Kind),
		zap.Int64("chat", ev.Chat.ID),
		zap.Int64("actor", ev.ActorID),
		zap.Int64s("users", ev.UserIDs))

	var text string
	switch ev.Kind {
	case MembershipJoined:
		text = invitePrompt(ev.UserIDs)
	case MembershipAdded:
		switch {
		case h.opts.DebugDumps && len(ev.Users) > 0:
			text = dump(ev.Users)
		case h.opts.DebugDumps:
			text = dump(ev.Raw)
		default:
			text = invitePrompt(ev.UserIDs)
		}
	default:
		if h.opts.DebugDumps {
			text = dump(ev.Raw)
		}
	}
	if text == "" {
		return nil
	}
	if err := h.chat.Reply(ctx, ev.Chat, ev.ID, text); err != nil {
		return fmt.Errorf("reply to %s event: %w", ev.Kind, err)
	}
	return nil
}

func invitePrompt(userIDs []int64) string {
	if len(userIDs) == 0 {
		return ""
	}
	codes := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		codes = append(codes, invite.Code(id))
	}
	return InvitePromptTitle + strings.Join(codes, "\n")
}

func dump(v any) string {
	if v == nil {
		return ""
	}
	return pr.Pf(v)
}

func (h *Handler) reply(ctx context.Context, msg Message, text string) error {
	if err := h.chat.Reply(ctx, msg.Chat, msg.ID, text); err != nil {
		return fmt.Errorf("reply %q: %w", text, err)
	}
	return nil
}
