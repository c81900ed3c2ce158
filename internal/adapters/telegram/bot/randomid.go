package bot

import (
	"encoding/binary"
	"hash/fnv"

	"telegram-relay/internal/domain/reactions"
)

// randomIDMask ограничивает значение до int63: Telegram требует random_id ∈ [1, 2^63-1].
const randomIDMask = (1 << 63) - 1

// replyRandomID — детерминированный random_id ответа: повторная отправка того же ответа
// на то же сообщение (ретрай, повторный апдейт) дедуплицируется самим Telegram.
func replyRandomID(chat reactions.Peer, msgID int, text string) int64 {
	textHash := fnv.New64a()
	_, _ = textHash.Write([]byte(text))

	return randomIDFromParts(
		uint64(chat.Kind)+1,
		uint64(chat.ID), // #nosec G115
		uint64(msgID),   // #nosec G115
		textHash.Sum64(),
	)
}

// randomIDFromParts хэширует части FNV-1a (64 бита) и проецирует в [1, 2^63-1].
func randomIDFromParts(parts ...uint64) int64 {
	hasher := fnv.New64a()
	var buf [8]byte
	for _, part := range parts {
		binary.LittleEndian.PutUint64(buf[:], part)
		_, _ = hasher.Write(buf[:])
	}
	value := hasher.Sum64() & randomIDMask
	if value == 0 {
		value = 1
	}
	return int64(value) // #nosec G115
}
