package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"telegram-relay/internal/domain/reactions"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:       srv.URL + "/",
		Timeout:       200 * time.Millisecond,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	})
}

func TestVerifyRequestShape(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody map[string]any
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method = %s, content-type = %q", r.Method, r.Header.Get("Content-Type"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"verified": true}`)
	}, 0)

	ok, err := c.Verify(context.Background(), reactions.VerifyRequest{IDToken: "42", VerifyToken: "abc123", SenderID: 7})
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true", ok, err)
	}
	if gotPath != "/tasks/accounts/telegram/42/verify/abc123/" {
		t.Fatalf("path = %q", gotPath)
	}
	want := map[string]any{"tid": "7", "username": nil}
	if !reflect.DeepEqual(gotBody, want) {
		t.Fatalf("body = %#v, want %#v", gotBody, want)
	}
}

func TestVerifyUsernameAndFalse(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"verified": false}`)
	}, 0)

	ok, err := c.Verify(context.Background(), reactions.VerifyRequest{IDToken: "1", VerifyToken: "t", SenderID: 9, Username: "neo"})
	if err != nil || ok {
		t.Fatalf("Verify() = %v, %v; want false, nil", ok, err)
	}
	if gotBody["username"] != "neo" {
		t.Fatalf("username = %#v", gotBody["username"])
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}, 3)

	_, err := c.Verify(context.Background(), reactions.VerifyRequest{IDToken: "1", VerifyToken: "t"})
	if !errors.Is(err, reactions.ErrNotFound) {
		t.Fatalf("Verify() error = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestServerErrorRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"done": true, "error": ""}`)
	}, 3)

	res, err := c.Invite(context.Background(), "INV")
	if err != nil || !res.Done {
		t.Fatalf("Invite() = %+v, %v", res, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestUnavailableAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	_, err := c.Invite(context.Background(), "INV")
	if !errors.Is(err, reactions.ErrUnavailable) {
		t.Fatalf("Invite() error = %v, want ErrUnavailable", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("Invite() error = %v, want StatusError 503", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", calls.Load())
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 1)

	_, err := c.Invite(context.Background(), "INV")
	if !errors.Is(err, reactions.ErrUnavailable) {
		t.Fatalf("Invite() error = %v, want ErrUnavailable", err)
	}
}

func TestPermanentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"detail":"bad"}`},
		{name: "malformed json", status: http.StatusOK, body: `{"done": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, 3)

			_, err := c.Invite(context.Background(), "INV")
			if err == nil {
				t.Fatal("Invite() error = nil")
			}
			if errors.Is(err, reactions.ErrUnavailable) || errors.Is(err, reactions.ErrNotFound) {
				t.Fatalf("Invite() error = %v, want permanent error", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("calls = %d, want 1", calls.Load())
			}
		})
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Invite(ctx, "INV"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Invite() error = %v, want context.Canceled", err)
	}
}
