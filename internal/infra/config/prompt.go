package config

import "telegram-relay/internal/infra/pr"

// TerminalPrompter возвращает Prompter поверх readline, если stdin — терминал, иначе nil.
// Без терминала недостающие обязательные значения приводят к ошибке загрузки,
// чтобы сервис под supervisor'ом не висел на чтении stdin.
func TerminalPrompter() Prompter {
	if !pr.IsInteractive() {
		return nil
	}
	return func(_ string, message string, secret bool) (string, error) {
		if secret {
			return pr.ReadSecret(message)
		}
		return pr.ReadLine(message)
	}
}
