package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// Lookup — проверки по username от имени пользовательской сессии.
type Lookup struct {
	auth  AuthAPI
	api   *tg.Client
	peers *peers.Manager
}

// NewLookup связывает статус входа, RPC-клиент и менеджер пиров пользовательской сессии.
func NewLookup(auth AuthAPI, api *tg.Client, mgr *peers.Manager) *Lookup {
	return &Lookup{auth: auth, api: api, peers: mgr}
}

// Authorized сообщает, можно ли выполнять проверки.
func (l *Lookup) Authorized(ctx context.Context) (bool, error) {
	status, err := l.auth.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

// IsChannelMember проверяет, состоит ли user в канале/супергруппе channel.
func (l *Lookup) IsChannelMember(ctx context.Context, channel, user string) (bool, error) {
	ch, err := l.peers.ResolveDomain(ctx, normalizeUsername(channel))
	if err != nil {
		return false, fmt.Errorf("resolve channel %q: %w", channel, err)
	}
	c, ok := ch.(peers.Channel)
	if !ok {
		return false, fmt.Errorf("%q is not a channel", channel)
	}
	u, err := l.peers.ResolveDomain(ctx, normalizeUsername(user))
	if err != nil {
		return false, fmt.Errorf("resolve user %q: %w", user, err)
	}

	_, err = l.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     c.InputChannel(),
		Participant: u.InputPeer(),
	})
	switch {
	case err == nil:
		return true, nil
	case tgerr.Is(err, "USER_NOT_PARTICIPANT", "PARTICIPANT_ID_INVALID"):
		return false, nil
	default:
		return false, fmt.Errorf("get participant: %w", err)
	}
}

// UsernameExists сообщает, принадлежит ли username пользователю (не каналу и не боту-группе).
func (l *Lookup) UsernameExists(ctx context.Context, username string) (bool, error) {
	p, err := l.peers.ResolveDomain(ctx, normalizeUsername(username))
	if err != nil {
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return false, nil
		}
		return false, fmt.Errorf("resolve %q: %w", username, err)
	}
	_, isUser := p.(peers.User)
	return isUser, nil
}

// normalizeUsername принимает "name", "@name" и ссылки t.me/name.
func normalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "t.me/")
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSuffix(s, "/")
}
