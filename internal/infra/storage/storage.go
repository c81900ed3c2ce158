// Package storage — утилиты работы с локальными файлами релея:
// каталоги под сессии и bbolt-базы, атомарная запись файлов сессий,
// уборка «протухшего» unix-сокета перед повторным bind.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"telegram-relay/internal/infra/logger"
)

// DefaultFilePerm — права на файлы с секретами (сессии, базы). Доступ только владельцу.
const DefaultFilePerm fs.FileMode = 0o600

// defaultDirPerm — права на создаваемые каталоги данных.
const defaultDirPerm fs.FileMode = 0o700

// EnsureDir гарантирует наличие каталога для файла path. Для "." и пустого каталога ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile записывает data в path так, что на диске остаётся либо старая, либо новая версия.
//
// temp в том же каталоге → write → fsync → chmod → close → rename → fsync(dir).
// fsync каталога best-effort: ошибка только логируется.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = tmp.Chmod(DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if dirFile, openErr := os.Open(dir); openErr == nil {
		if syncErr := dirFile.Sync(); syncErr != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", syncErr)
		}
		_ = dirFile.Close()
	}
	return nil
}

// RemoveStaleSocket удаляет файл unix-сокета, оставшийся от прошлого запуска.
// Если по пути лежит не сокет — возвращает ошибку, чтобы не снести чужой файл.
func RemoveStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if err = os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}
