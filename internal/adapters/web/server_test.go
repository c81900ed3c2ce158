package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"telegram-relay/internal/domain/login"
)

type fakeFlow struct {
	stage      login.Stage
	err        error
	requesters []string
	last       login.Submission
}

func (f *fakeFlow) Stage(_ context.Context, requester string) (login.Stage, error) {
	f.requesters = append(f.requesters, requester)
	return f.stage, f.err
}

func (f *fakeFlow) Submit(_ context.Context, requester string, sub login.Submission) (login.Stage, error) {
	f.requesters = append(f.requesters, requester)
	f.last = sub
	return f.stage, f.err
}

type fakeLookup struct {
	authorized bool
	member     bool
	exists     bool
	err        error
	calls      int
}

func (l *fakeLookup) Authorized(context.Context) (bool, error) { return l.authorized, nil }

func (l *fakeLookup) IsChannelMember(context.Context, string, string) (bool, error) {
	l.calls++
	return l.member, l.err
}

func (l *fakeLookup) UsernameExists(context.Context, string) (bool, error) {
	l.calls++
	return l.exists, l.err
}

func newTestServer(flow LoginFlow, lookup Lookup) http.Handler {
	return NewServer(flow, lookup, Options{Address: "127.0.0.1:0", CookieTTL: time.Hour}).Handler()
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(&fakeFlow{}, &fakeLookup{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestLoginPageStages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stage login.Stage
		want  string
	}{
		{login.StageNoPhone, `placeholder="+34600000000"`},
		{login.StageCodeRequested, `placeholder="70707"`},
		{login.StagePasswordRequired, `type="password"`},
		{login.StageAuthorized, "you are logged in"},
	}
	for _, tc := range cases {
		t.Run(tc.stage.String(), func(t *testing.T) {
			t.Parallel()

			h := newTestServer(&fakeFlow{stage: tc.stage}, &fakeLookup{})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := rec.Body.String()
			if !strings.Contains(body, tc.want) {
				t.Fatalf("body does not contain %q:\n%s", tc.want, body)
			}
			if !strings.Contains(body, "<!DOCTYPE html>") {
				t.Fatal("successful page must be a full document")
			}
		})
	}
}

func TestLoginRequesterCookie(t *testing.T) {
	t.Parallel()

	flow := &fakeFlow{}
	h := newTestServer(flow, &fakeLookup{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != requesterCookieName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: requesterCookieName, Value: "not-a-uuid"})
	h.ServeHTTP(httptest.NewRecorder(), bad)

	if len(flow.requesters) != 3 {
		t.Fatalf("requesters = %v", flow.requesters)
	}
	if flow.requesters[0] != flow.requesters[1] {
		t.Fatalf("cookie was not reused: %v", flow.requesters)
	}
	if flow.requesters[2] == "not-a-uuid" || flow.requesters[2] == flow.requesters[0] {
		t.Fatalf("invalid cookie must be replaced: %v", flow.requesters)
	}
}

func TestLoginSubmitForwardsFields(t *testing.T) {
	t.Parallel()

	flow := &fakeFlow{stage: login.StageCodeRequested}
	h := newTestServer(flow, &fakeLookup{})

	form := url.Values{"phone": {"+34600000000"}, "code": {"70707"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := login.Submission{Phone: "+34600000000", Code: "70707", Password: "secret"}
	if flow.last != want {
		t.Fatalf("submitted = %+v, want %+v", flow.last, want)
	}
}

func TestLoginSubmitErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rejected", fmt.Errorf("sign in: %w", login.ErrRejected), http.StatusBadRequest},
		{"no phone", login.ErrNoPendingPhone, http.StatusBadRequest},
		{"upstream", errors.New("rpc error code 500: INTERNAL"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newTestServer(&fakeFlow{stage: login.StageCodeRequested, err: tc.err}, &fakeLookup{})
			form := url.Values{"code": {"70707"}}
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			body := rec.Body.String()
			if strings.Contains(body, "<html") {
				t.Fatal("error response must be a fragment")
			}
			if !strings.Contains(body, `class="error"`) || !strings.Contains(body, `name="code"`) {
				t.Fatalf("unexpected fragment:\n%s", body)
			}
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestIsChannelMember(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{authorized: true, member: true}
	h := newTestServer(&fakeFlow{}, lookup)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ischannelmember?ch=news&u=alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode(t, rec); got["ismember"] != true {
		t.Fatalf("body = %v", got)
	}

	lookup.err = errors.New("CHANNEL_PRIVATE")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ischannelmember?ch=news&u=alice", nil))
	if got := decode(t, rec); rec.Code != http.StatusOK || got["ismember"] != false {
		t.Fatalf("lookup error: %d %v", rec.Code, got)
	}
}

func TestIsChannelMemberUnauthorized(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{}
	h := newTestServer(&fakeFlow{}, lookup)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ischannelmember?ch=news&u=alice", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode(t, rec)
	if got["ismember"] != false || got["error"] != errNotAuthorized {
		t.Fatalf("body = %v", got)
	}
	if lookup.calls != 0 {
		t.Fatal("lookup must not run without authorization")
	}
}

func TestIsChannelMemberMissingParams(t *testing.T) {
	t.Parallel()

	h := newTestServer(&fakeFlow{}, &fakeLookup{authorized: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ischannelmember?ch=news", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDoesUsernameExist(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{exists: true}
	h := newTestServer(&fakeFlow{}, lookup)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doesusernameexists?u=alice", nil))
	if got := decode(t, rec); rec.Code != http.StatusOK || got["exists"] != true {
		t.Fatalf("exists: %d %v", rec.Code, got)
	}

	lookup.err = errors.New("USERNAME_INVALID")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doesusernameexists?u=alice", nil))
	if got := decode(t, rec); got["exists"] != false {
		t.Fatalf("error must collapse to false: %v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doesusernameexists", nil))
	if got := decode(t, rec); got["exists"] != false {
		t.Fatalf("empty username: %v", got)
	}
}

type countingCleaner struct{ n int }

func (c *countingCleaner) CleanExpired() int { c.n++; return 0 }

func TestServerStartShutdown(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeFlow{}, &fakeLookup{}, Options{Address: "127.0.0.1:0", Cleaner: &countingCleaner{}})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()

	// Shutdown может прийти раньше Serve: http.Server тогда сразу вернёт ErrServerClosed.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Shutdown")
	}
}
