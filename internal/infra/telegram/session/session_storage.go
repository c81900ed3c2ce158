package session

// Пакет session хранит MTProto-сессии релея на диске. У процесса две независимые
// сессии (пользовательская и бот), каждая в своём файле. Запись атомарная,
// а успешное сохранение вызывает OnStore — так app узнаёт о состоявшемся логине.

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"telegram-relay/internal/infra/logger"
	"telegram-relay/internal/infra/storage"

	ferrors "github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"
	"go.uber.org/zap"
)

// FileStorage реализует tdsession.Storage поверх файла Path.
// Name — метка сессии для логов ("phone", "bot"). OnStore (опционально) вызывается
// после каждой успешной записи. Потокобезопасен.
type FileStorage struct {
	Path    string
	Name    string
	OnStore func()

	mux sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession читает файл сессии. Отсутствие файла — tdsession.ErrNotFound (новая сессия).
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, ferrors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}

	f.mux.Lock()
	err := storage.AtomicWriteFile(f.Path, data)
	f.mux.Unlock()
	if err != nil {
		return ferrors.Wrap(err, "atomic write session")
	}

	logger.Debug("session stored", zap.String("session", f.Name))
	if f.OnStore != nil {
		f.OnStore()
	}
	return nil
}
