package reactions

import (
	"strings"
	"unicode"
)

const startCommand = "/start"

// ParseStart распознаёт команду /start и возвращает её аргумент.
// Поддерживаются формы "/start_42_abc", "/start 42_abc" и "/start@bot 42_abc".
// "/started" и прочие слова с тем же префиксом командой не считаются.
func ParseStart(text string) (payload string, ok bool) {
	rest, found := strings.CutPrefix(text, startCommand)
	if !found {
		return "", false
	}
	if strings.HasPrefix(rest, "@") {
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			return "", true
		}
		rest = rest[i:]
	}
	if rest != "" && rest[0] != '_' && !unicode.IsSpace(rune(rest[0])) {
		return "", false
	}
	payload = strings.TrimSpace(rest)
	payload = strings.TrimPrefix(payload, "_")
	return payload, true
}

// SplitPayload делит аргумент /start на id и токен проверки по первому "_".
func SplitPayload(payload string) (idToken, verifyToken string, ok bool) {
	idToken, verifyToken, found := strings.Cut(payload, "_")
	if !found || idToken == "" || verifyToken == "" {
		return "", "", false
	}
	return idToken, verifyToken, true
}
