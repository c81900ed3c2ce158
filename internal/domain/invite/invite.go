// Package invite выводит короткий инвайт-код пользователя.
// Код — первые 12 hex-символов SHA-256 от десятичной записи user id.
// Бот отправляет его в чат при вступлении, а потом ищет как подстроку в тексте,
// на который пользователь ответил.
package invite

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Length — длина кода в hex-символах.
const Length = 12

// Code возвращает детерминированный инвайт-код пользователя.
func Code(userID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10)))
	return hex.EncodeToString(sum[:])[:Length]
}

// Matches сообщает, содержит ли text инвайт-код пользователя userID.
func Matches(text string, userID int64) bool {
	return strings.Contains(text, Code(userID))
}
