package storage_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"telegram-relay/internal/infra/storage"
)

func TestAtomicWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "phone.session")
	if err := storage.AtomicWriteFile(path, []byte("first")); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}
	if err := storage.AtomicWriteFile(path, []byte("second")); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("content = %q, want %q", got, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != storage.DefaultFilePerm {
		t.Fatalf("perm = %v, want %v", info.Mode().Perm(), storage.DefaultFilePerm)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestRemoveStaleSocket(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if err := storage.RemoveStaleSocket(filepath.Join(dir, "missing.sock")); err != nil {
		t.Fatalf("missing socket: error = %v", err)
	}

	regular := filepath.Join(dir, "regular")
	if err := os.WriteFile(regular, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := storage.RemoveStaleSocket(regular); err == nil {
		t.Fatal("regular file: expected error, got nil")
	}

	sock := filepath.Join(dir, "relay.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	// Без unlink файл сокета переживает Close, как после падения процесса.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = ln.Close()

	if err = storage.RemoveStaleSocket(sock); err != nil {
		t.Fatalf("stale socket: error = %v", err)
	}
	if _, err = os.Stat(sock); !os.IsNotExist(err) {
		t.Fatalf("socket still exists: %v", err)
	}
}
