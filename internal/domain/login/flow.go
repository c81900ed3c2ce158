// Package login — веб-вход пользовательской сессии по телефону.
// Flow ведёт посетителя по стадиям NoPhone → CodeRequested → (PasswordRequired) → Authorized.
// Сетевые вызовы делает Authenticator (адаптер над gotd auth.Client), сам пакет от gotd не зависит.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-relay/internal/infra/logger"

	"go.uber.org/zap"
)

// Stage — текущая стадия входа для конкретного посетителя.
type Stage int

const (
	StageNoPhone Stage = iota
	StageCodeRequested
	StagePasswordRequired
	StageAuthorized
)

func (s Stage) String() string {
	switch s {
	case StageNoPhone:
		return "no_phone"
	case StageCodeRequested:
		return "code_requested"
	case StagePasswordRequired:
		return "password_required"
	case StageAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Submission — поля формы. Пустые значения означают «не передано».
type Submission struct {
	Phone    string
	Code     string
	Password string
}

var (
	// ErrPasswordNeeded возвращает Authenticator.SignIn, если на аккаунте включена 2FA.
	ErrPasswordNeeded = errors.New("2FA password required")
	// ErrRejected оборачивает отказ Telegram из-за введённых данных (неверный код, телефон, пароль).
	ErrRejected = errors.New("rejected by telegram")
	// ErrNoPendingPhone — код или пароль пришли раньше телефона.
	ErrNoPendingPhone = errors.New("phone number was not submitted")
)

// Authenticator — операции входа пользовательской сессии.
type Authenticator interface {
	Authorized(ctx context.Context) (bool, error)
	// SendCode запрашивает код и возвращает phone_code_hash.
	SendCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, code, codeHash string) error
	Password(ctx context.Context, password string) error
}

// Flow — обработчик формы входа.
type Flow struct {
	auth    Authenticator
	pending *PendingStore
}

// NewFlow связывает Authenticator и хранилище незавершённых попыток.
func NewFlow(auth Authenticator, pending *PendingStore) *Flow {
	return &Flow{auth: auth, pending: pending}
}

// Pending отдаёт хранилище попыток (для периодической очистки).
func (f *Flow) Pending() *PendingStore {
	return f.pending
}

// Stage вычисляет стадию посетителя без изменения состояния.
func (f *Flow) Stage(ctx context.Context, requester string) (Stage, error) {
	ok, err := f.auth.Authorized(ctx)
	if err != nil {
		return StageNoPhone, fmt.Errorf("check authorization: %w", err)
	}
	if ok {
		return StageAuthorized, nil
	}
	p, found := f.pending.Get(requester)
	switch {
	case !found:
		return StageNoPhone, nil
	case p.NeedPassword:
		return StagePasswordRequired, nil
	default:
		return StageCodeRequested, nil
	}
}

// Submit применяет поля формы и возвращает новую стадию.
// Приоритет полей: phone, затем code, затем password. Для авторизованной сессии поля игнорируются.
// При ошибке возвращается стадия, на которой посетитель остался.
func (f *Flow) Submit(ctx context.Context, requester string, sub Submission) (Stage, error) {
	ok, err := f.auth.Authorized(ctx)
	if err != nil {
		return StageNoPhone, fmt.Errorf("check authorization: %w", err)
	}
	if ok {
		return StageAuthorized, nil
	}

	phone := strings.TrimSpace(sub.Phone)
	code := strings.TrimSpace(sub.Code)

	switch {
	case phone != "":
		hash, err := f.auth.SendCode(ctx, phone)
		if err != nil {
			stage, _ := f.Stage(ctx, requester)
			return stage, fmt.Errorf("send code: %w", err)
		}
		f.pending.Put(requester, Pending{Phone: phone, CodeHash: hash})
		logger.Info("login code requested", zap.String("requester", requester))

	case code != "":
		p, found := f.pending.Get(requester)
		if !found {
			return StageNoPhone, ErrNoPendingPhone
		}
		err := f.auth.SignIn(ctx, p.Phone, code, p.CodeHash)
		switch {
		case errors.Is(err, ErrPasswordNeeded):
			p.NeedPassword = true
			f.pending.Put(requester, p)
			logger.Info("login requires 2FA password", zap.String("requester", requester))
		case err != nil:
			if p.NeedPassword {
				return StagePasswordRequired, fmt.Errorf("sign in: %w", err)
			}
			return StageCodeRequested, fmt.Errorf("sign in: %w", err)
		default:
			f.pending.Reset()
			logger.Info("user session authorized", zap.String("requester", requester))
		}

	case sub.Password != "":
		p, found := f.pending.Get(requester)
		if !found {
			return StageNoPhone, ErrNoPendingPhone
		}
		if !p.NeedPassword {
			return StageCodeRequested, fmt.Errorf("%w: password is not expected yet", ErrRejected)
		}
		if err := f.auth.Password(ctx, sub.Password); err != nil {
			return StagePasswordRequired, fmt.Errorf("check password: %w", err)
		}
		f.pending.Reset()
		logger.Info("user session authorized with 2FA", zap.String("requester", requester))
	}

	return f.Stage(ctx, requester)
}
