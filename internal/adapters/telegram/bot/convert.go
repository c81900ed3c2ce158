package bot

import (
	"telegram-relay/internal/domain/reactions"

	"github.com/gotd/td/tg"
)

// channelIDShift — сдвиг «marked id» каналов в стиле Bot API (-100…).
const channelIDShift = 1_000_000_000_000

// peerOf переводит tg.PeerClass в доменный Peer.
func peerOf(peer tg.PeerClass) (reactions.Peer, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return reactions.Peer{Kind: reactions.PeerUser, ID: p.UserID}, true
	case *tg.PeerChat:
		return reactions.Peer{Kind: reactions.PeerChat, ID: p.ChatID}, true
	case *tg.PeerChannel:
		return reactions.Peer{Kind: reactions.PeerChannel, ID: p.ChannelID}, true
	default:
		return reactions.Peer{}, false
	}
}

// markedID кодирует тип чата в знак/диапазон id, чтобы id разных типов не пересекались.
func markedID(p reactions.Peer) int64 {
	switch p.Kind {
	case reactions.PeerChat:
		return -p.ID
	case reactions.PeerChannel:
		return -(channelIDShift + p.ID)
	default:
		return p.ID
	}
}

// rawPeerID — числовой id из tg.PeerClass; 0 для неизвестного типа.
func rawPeerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// authorID определяет автора сообщения: from_id, иначе для личного чата — собеседник
// (или сам бот для исходящих).
func authorID(from tg.PeerClass, hasFrom bool, peer tg.PeerClass, out bool, selfID int64) int64 {
	if hasFrom {
		return rawPeerID(from)
	}
	if out {
		return selfID
	}
	if u, ok := peer.(*tg.PeerUser); ok {
		return u.UserID
	}
	return 0
}

// messageFromTG собирает доменное сообщение. ok=false для сообщений без известного чата.
func messageFromTG(msg *tg.Message, entities tg.Entities, selfID int64) (reactions.Message, bool) {
	chat, ok := peerOf(msg.PeerID)
	if !ok {
		return reactions.Message{}, false
	}
	from, hasFrom := msg.GetFromID()
	out := reactions.Message{
		Chat:     chat,
		ID:       msg.ID,
		SenderID: authorID(from, hasFrom, msg.PeerID, msg.Out, selfID),
		Text:     msg.Message,
	}
	if u, found := entities.Users[out.SenderID]; found && u != nil {
		out.SenderUsername = u.Username
	}
	if header, found := msg.GetReplyTo(); found {
		if h, isMsg := header.(*tg.MessageReplyHeader); isMsg {
			if _, otherChat := h.GetReplyToPeerID(); !otherChat {
				out.ReplyToID, _ = h.GetReplyToMsgID()
			}
		}
	}
	return out, true
}

// membershipFromTG классифицирует служебное сообщение в Joined | Added | Other.
func membershipFromTG(svc *tg.MessageService, entities tg.Entities) (reactions.MembershipEvent, bool) {
	chat, ok := peerOf(svc.PeerID)
	if !ok {
		return reactions.MembershipEvent{}, false
	}
	from, hasFrom := svc.GetFromID()
	actor := authorID(from, hasFrom, svc.PeerID, false, 0)

	ev := reactions.MembershipEvent{
		Chat:    chat,
		ID:      svc.ID,
		Kind:    reactions.MembershipOther,
		ActorID: actor,
		Raw:     svc,
	}

	switch action := svc.Action.(type) {
	case *tg.MessageActionChatAddUser:
		ev.UserIDs = append(ev.UserIDs, action.Users...)
		if len(action.Users) == 1 && action.Users[0] == actor {
			ev.Kind = reactions.MembershipJoined
		} else {
			ev.Kind = reactions.MembershipAdded
		}
	case *tg.MessageActionChatJoinedByLink, *tg.MessageActionChatJoinedByRequest:
		ev.Kind = reactions.MembershipJoined
		if actor != 0 {
			ev.UserIDs = []int64{actor}
		}
	case *tg.MessageActionChatDeleteUser:
		ev.UserIDs = []int64{action.UserID}
	}

	for _, id := range ev.UserIDs {
		if u, found := entities.Users[id]; found && u != nil {
			ev.Users = append(ev.Users, u)
		}
	}
	return ev, true
}
