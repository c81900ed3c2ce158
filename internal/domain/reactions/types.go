package reactions

import (
	"context"
	"errors"
	"fmt"
)

// PeerKind — тип чата, в котором произошло событие.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerChat:
		return "chat"
	case PeerChannel:
		return "channel"
	default:
		return fmt.Sprintf("peer(%d)", int(k))
	}
}

// Peer — ссылка на чат без access hash: адаптер сам достаёт его из своего хранилища пиров.
type Peer struct {
	Kind PeerKind
	ID   int64
}

// Message — входящее сообщение бота в виде, не зависящем от MTProto-типов.
type Message struct {
	Chat Peer
	ID   int
	// SenderID — автор сообщения (для сообщений от имени канала — id канала).
	SenderID       int64
	SenderUsername string
	Text           string
	// ReplyToID — id сообщения, на которое это отвечает; 0 — не ответ.
	ReplyToID int
}

// IsReply сообщает, является ли сообщение ответом.
func (m Message) IsReply() bool {
	return m.ReplyToID != 0
}

// MembershipKind — вариант изменения состава чата.
type MembershipKind int

const (
	// MembershipOther — выход, исключение и прочие служебные события.
	MembershipOther MembershipKind = iota
	// MembershipJoined — пользователь вошёл сам (по ссылке, по заявке или добавил себя).
	MembershipJoined
	// MembershipAdded — пользователей добавил кто-то другой.
	MembershipAdded
)

func (k MembershipKind) String() string {
	switch k {
	case MembershipJoined:
		return "joined"
	case MembershipAdded:
		return "added"
	default:
		return "other"
	}
}

// MembershipEvent — служебное сообщение об изменении состава чата.
type MembershipEvent struct {
	Chat Peer
	ID   int
	Kind MembershipKind
	// ActorID — кто совершил действие.
	ActorID int64
	// UserIDs — кого затронуло действие (для Joined совпадает с ActorID).
	UserIDs []int64
	// Users — сырые объекты затронутых пользователей, если адаптер их знает (для дампов).
	Users []any
	// Raw — исходный апдейт (для дампов).
	Raw any
}

// Chat — операции бота в Telegram, нужные правилам.
type Chat interface {
	// Reply отвечает на сообщение msgID в чате chat.
	Reply(ctx context.Context, chat Peer, msgID int, text string) error
	// ReplyTarget загружает сообщение, на которое отвечает msg. ok=false — сообщение недоступно.
	ReplyTarget(ctx context.Context, msg Message) (target Message, ok bool, err error)
	// SelfID — id самого бота.
	SelfID() int64
}

// VerifyRequest — параметры проверки ссылки /start.
type VerifyRequest struct {
	IDToken     string
	VerifyToken string
	SenderID    int64
	// Username пустой, если у отправителя нет username (в backend уходит null).
	Username string
}

// InviteResult — ответ backend на инвайт-код.
type InviteResult struct {
	Done  bool
	Error string
}

// Backend — сервис проверки задач.
type Backend interface {
	Verify(ctx context.Context, req VerifyRequest) (bool, error)
	Invite(ctx context.Context, code string) (InviteResult, error)
}

var (
	// ErrNotFound — backend ответил 404: ссылка или код не существуют.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnavailable — backend не ответил за отведённые попытки.
	ErrUnavailable = errors.New("backend: unavailable")
)
