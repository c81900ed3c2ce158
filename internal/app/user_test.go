package app

import (
	"context"
	"path/filepath"
	"testing"

	"telegram-relay/internal/infra/telegram/session"
)

func TestSessionSignalCoalesces(t *testing.T) {
	t.Parallel()

	s := newSessionSignal()
	s.notify()
	s.notify()
	s.notify()

	select {
	case <-s:
	default:
		t.Fatal("expected pending signal")
	}
	select {
	case <-s:
		t.Fatal("repeated notifications must collapse into one")
	default:
	}
}

func TestSessionStoreSignalsRunner(t *testing.T) {
	t.Parallel()

	s := newSessionSignal()
	fs := &session.FileStorage{
		Path:    filepath.Join(t.TempDir(), "phone.session"),
		Name:    "phone",
		OnStore: s.notify,
	}
	if err := fs.StoreSession(context.Background(), []byte(`{"Version":1}`)); err != nil {
		t.Fatalf("StoreSession() error = %v", err)
	}

	select {
	case <-s:
	default:
		t.Fatal("stored session did not signal the runner")
	}
}
