// Package user — адаптер пользовательской сессии: веб-вход по телефону поверх gotd auth.Client
// и вспомогательные проверки (членство в канале, существование username).
package user

import (
	"context"
	"errors"
	"fmt"

	"telegram-relay/internal/domain/login"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// AuthAPI — подмножество *auth.Client, нужное для входа.
type AuthAPI interface {
	Status(ctx context.Context) (*auth.Status, error)
	SendCode(ctx context.Context, phone string, options auth.SendCodeOptions) (tg.AuthSentCodeClass, error)
	SignIn(ctx context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error)
	Password(ctx context.Context, password string) (*tg.AuthAuthorization, error)
}

// rejectedErrors — ответы Telegram, означающие неверный ввод пользователя.
var rejectedErrors = []string{
	"PHONE_NUMBER_INVALID",
	"PHONE_NUMBER_BANNED",
	"PHONE_NUMBER_FLOOD",
	"PHONE_CODE_INVALID",
	"PHONE_CODE_EXPIRED",
	"PHONE_CODE_EMPTY",
	"PHONE_CODE_HASH_EMPTY",
	"PASSWORD_HASH_INVALID",
}

// Authenticator реализует login.Authenticator.
type Authenticator struct {
	api AuthAPI
}

// NewAuthenticator оборачивает auth.Client (client.Auth()).
func NewAuthenticator(api AuthAPI) *Authenticator {
	return &Authenticator{api: api}
}

// Authorized сообщает, авторизована ли сессия.
func (a *Authenticator) Authorized(ctx context.Context) (bool, error) {
	status, err := a.api.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return status.Authorized, nil
}

// SendCode запрашивает код входа и возвращает phone_code_hash.
func (a *Authenticator) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := a.api.SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", classify(err)
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		return s.PhoneCodeHash, nil
	case *tg.AuthSentCodeSuccess:
		// Telegram авторизовал сессию сразу (future auth token).
		return "", nil
	default:
		return "", fmt.Errorf("unexpected sent code type %T", sent)
	}
}

// SignIn завершает вход кодом. Включённая 2FA возвращается как login.ErrPasswordNeeded.
func (a *Authenticator) SignIn(ctx context.Context, phone, code, codeHash string) error {
	_, err := a.api.SignIn(ctx, phone, code, codeHash)
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return login.ErrPasswordNeeded
	}
	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return fmt.Errorf("%w: phone number is not registered", login.ErrRejected)
	}
	return classify(err)
}

// Password проверяет пароль 2FA.
func (a *Authenticator) Password(ctx context.Context, password string) error {
	_, err := a.api.Password(ctx, password)
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrPasswordInvalid) {
		return fmt.Errorf("%w: %w", login.ErrRejected, err)
	}
	return classify(err)
}

func classify(err error) error {
	if tgerr.Is(err, rejectedErrors...) {
		return fmt.Errorf("%w: %w", login.ErrRejected, err)
	}
	return err
}
