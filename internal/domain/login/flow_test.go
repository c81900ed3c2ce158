package login

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeAuth имитирует Telegram: код "70707" верный, пароль "secret".
type fakeAuth struct {
	authorized   bool
	needPassword bool

	sentTo  []string
	signIns int
}

func (f *fakeAuth) Authorized(context.Context) (bool, error) { return f.authorized, nil }

func (f *fakeAuth) SendCode(_ context.Context, phone string) (string, error) {
	if phone == "bad" {
		return "", fmt.Errorf("%w: PHONE_NUMBER_INVALID", ErrRejected)
	}
	f.sentTo = append(f.sentTo, phone)
	return "hash-" + phone, nil
}

func (f *fakeAuth) SignIn(_ context.Context, phone, code, hash string) error {
	f.signIns++
	if hash != "hash-"+phone {
		return fmt.Errorf("%w: PHONE_CODE_HASH_INVALID", ErrRejected)
	}
	if code != "70707" {
		return fmt.Errorf("%w: PHONE_CODE_INVALID", ErrRejected)
	}
	if f.needPassword {
		return ErrPasswordNeeded
	}
	f.authorized = true
	return nil
}

func (f *fakeAuth) Password(_ context.Context, password string) error {
	if password != "secret" {
		return fmt.Errorf("%w: PASSWORD_HASH_INVALID", ErrRejected)
	}
	f.authorized = true
	return nil
}

func newFlow(a *fakeAuth) *Flow {
	return NewFlow(a, NewPendingStore(time.Minute))
}

func TestSubmitPhoneThenCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := &fakeAuth{}
	f := newFlow(a)

	stage, err := f.Stage(ctx, "r1")
	if err != nil || stage != StageNoPhone {
		t.Fatalf("initial Stage() = %v, %v; want no_phone", stage, err)
	}

	stage, err = f.Submit(ctx, "r1", Submission{Phone: "+15551234567"})
	if err != nil || stage != StageCodeRequested {
		t.Fatalf("Submit(phone) = %v, %v; want code_requested", stage, err)
	}
	if len(a.sentTo) != 1 || a.sentTo[0] != "+15551234567" {
		t.Fatalf("code sent to %v", a.sentTo)
	}

	stage, err = f.Submit(ctx, "r1", Submission{Code: "70707"})
	if err != nil || stage != StageAuthorized {
		t.Fatalf("Submit(code) = %v, %v; want authorized", stage, err)
	}
	if f.Pending().Len() != 0 {
		t.Fatalf("pending attempts left after login: %d", f.Pending().Len())
	}
}

func TestSubmitInvalidCodeKeepsStage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFlow(&fakeAuth{})

	if _, err := f.Submit(ctx, "r1", Submission{Phone: "+15551234567"}); err != nil {
		t.Fatal(err)
	}
	stage, err := f.Submit(ctx, "r1", Submission{Code: "00000"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Submit(bad code) error = %v, want ErrRejected", err)
	}
	if stage != StageCodeRequested {
		t.Fatalf("Submit(bad code) stage = %v, want code_requested", stage)
	}
	if stage, _ = f.Stage(ctx, "r1"); stage != StageCodeRequested {
		t.Fatalf("Stage() after bad code = %v", stage)
	}
}

func TestSubmitCodeWithoutPhone(t *testing.T) {
	t.Parallel()

	a := &fakeAuth{}
	stage, err := newFlow(a).Submit(context.Background(), "r1", Submission{Code: "70707"})
	if !errors.Is(err, ErrNoPendingPhone) || stage != StageNoPhone {
		t.Fatalf("Submit() = %v, %v; want no_phone, ErrNoPendingPhone", stage, err)
	}
	if a.signIns != 0 {
		t.Fatal("SignIn must not be called without a phone")
	}
}

func TestSubmitSendCodeFailure(t *testing.T) {
	t.Parallel()

	f := newFlow(&fakeAuth{})
	stage, err := f.Submit(context.Background(), "r1", Submission{Phone: "bad"})
	if !errors.Is(err, ErrRejected) || stage != StageNoPhone {
		t.Fatalf("Submit(bad phone) = %v, %v", stage, err)
	}
	if f.Pending().Len() != 0 {
		t.Fatal("rejected phone must not be stored")
	}
}

func TestSubmitPassword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFlow(&fakeAuth{needPassword: true})

	if _, err := f.Submit(ctx, "r1", Submission{Phone: "+34600000000"}); err != nil {
		t.Fatal(err)
	}
	stage, err := f.Submit(ctx, "r1", Submission{Code: "70707"})
	if err != nil || stage != StagePasswordRequired {
		t.Fatalf("Submit(code) = %v, %v; want password_required", stage, err)
	}

	stage, err = f.Submit(ctx, "r1", Submission{Password: "wrong"})
	if !errors.Is(err, ErrRejected) || stage != StagePasswordRequired {
		t.Fatalf("Submit(wrong password) = %v, %v", stage, err)
	}

	stage, err = f.Submit(ctx, "r1", Submission{Password: "secret"})
	if err != nil || stage != StageAuthorized {
		t.Fatalf("Submit(password) = %v, %v; want authorized", stage, err)
	}
}

func TestRequestersAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFlow(&fakeAuth{})

	if _, err := f.Submit(ctx, "alice", Submission{Phone: "+15550000001"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Submit(ctx, "bob", Submission{Phone: "+15550000002"}); err != nil {
		t.Fatal(err)
	}

	alice, ok := f.Pending().Get("alice")
	if !ok || alice.Phone != "+15550000001" || alice.CodeHash != "hash-+15550000001" {
		t.Fatalf("alice pending = %+v, %v", alice, ok)
	}
	if stage, _ := f.Stage(ctx, "carol"); stage != StageNoPhone {
		t.Fatalf("Stage(carol) = %v, want no_phone", stage)
	}
}

func TestAuthorizedIgnoresFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := &fakeAuth{authorized: true}
	f := newFlow(a)

	for _, sub := range []Submission{{}, {Phone: "+1"}, {Code: "1"}, {Password: "p"}} {
		stage, err := f.Submit(ctx, "r1", sub)
		if err != nil || stage != StageAuthorized {
			t.Fatalf("Submit(%+v) = %v, %v; want authorized", sub, stage, err)
		}
	}
	for range 3 {
		if stage, _ := f.Stage(ctx, "r1"); stage != StageAuthorized {
			t.Fatalf("Stage() = %v, want authorized", stage)
		}
	}
	if len(a.sentTo) != 0 || a.signIns != 0 {
		t.Fatal("authorized session must not call Telegram")
	}
}
