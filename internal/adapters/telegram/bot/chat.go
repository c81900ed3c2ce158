package bot

import (
	"context"
	"fmt"
	"sync/atomic"

	"telegram-relay/internal/domain/reactions"

	"github.com/gotd/td/tg"
)

// PeerResolver достаёт access hash чатов (реализует peersmgr.Service).
type PeerResolver interface {
	InputPeerByKind(ctx context.Context, kind string, id int64) (tg.InputPeerClass, error)
	InputChannel(ctx context.Context, id int64) (tg.InputChannelClass, error)
}

// Chat реализует reactions.Chat поверх RPC-клиента бота.
type Chat struct {
	api   *tg.Client
	peers PeerResolver
	self  atomic.Int64
}

// NewChat создаёт Chat. SetSelf вызывается после входа бота.
func NewChat(api *tg.Client, peers PeerResolver) *Chat {
	return &Chat{api: api, peers: peers}
}

// SetSelf запоминает id бота.
func (c *Chat) SetSelf(id int64) {
	c.self.Store(id)
}

// SelfID — id бота (0 до входа).
func (c *Chat) SelfID() int64 {
	return c.self.Load()
}

// Reply отправляет text ответом на сообщение msgID.
func (c *Chat) Reply(ctx context.Context, chat reactions.Peer, msgID int, text string) error {
	peer, err := c.peers.InputPeerByKind(ctx, chat.Kind.String(), chat.ID)
	if err != nil {
		return err
	}
	_, err = c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: replyRandomID(chat, msgID, text),
		ReplyTo:  &tg.InputReplyToMessage{ReplyToMsgID: msgID},
	})
	if err != nil {
		return fmt.Errorf("send message to %s %d: %w", chat.Kind, chat.ID, err)
	}
	return nil
}

// ReplyTarget загружает сообщение, на которое отвечает msg.
func (c *Chat) ReplyTarget(ctx context.Context, msg reactions.Message) (reactions.Message, bool, error) {
	if !msg.IsReply() {
		return reactions.Message{}, false, nil
	}
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: msg.ReplyToID}}

	var (
		res tg.MessagesMessagesClass
		err error
	)
	if msg.Chat.Kind == reactions.PeerChannel {
		channel, chErr := c.peers.InputChannel(ctx, msg.Chat.ID)
		if chErr != nil {
			return reactions.Message{}, false, chErr
		}
		res, err = c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{Channel: channel, ID: ids})
	} else {
		res, err = c.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return reactions.Message{}, false, fmt.Errorf("get message %d: %w", msg.ReplyToID, err)
	}

	target, ok := findMessage(res, msg.ReplyToID, c.SelfID())
	return target, ok, nil
}

// findMessage ищет обычное сообщение id в ответе messages.getMessages.
func findMessage(res tg.MessagesMessagesClass, id int, selfID int64) (reactions.Message, bool) {
	withMessages, ok := res.(interface{ GetMessages() []tg.MessageClass })
	if !ok {
		return reactions.Message{}, false
	}
	for _, m := range withMessages.GetMessages() {
		full, isFull := m.(*tg.Message)
		if !isFull || full.ID != id {
			continue
		}
		return messageFromTG(full, tg.Entities{}, selfID)
	}
	return reactions.Message{}, false
}
