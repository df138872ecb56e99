package session

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
)

// fakeWindow scripts a sequence of polling observations: each poll consumes
// one step.
type fakeWindow struct {
	mu     sync.Mutex
	steps  []windowStep
	closed bool
}

type windowStep struct {
	location string
	locErr   error
	closed   bool
}

func (w *fakeWindow) next() windowStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.steps) == 0 {
		return windowStep{locErr: errors.New("cross-origin")}
	}
	step := w.steps[0]
	if len(w.steps) > 1 {
		w.steps = w.steps[1:]
	}
	return step
}

func (w *fakeWindow) Location() (*url.URL, error) {
	step := w.next()
	if step.locErr != nil {
		return nil, step.locErr
	}
	return url.Parse(step.location)
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.steps) > 0 && w.steps[0].closed {
		return true
	}
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func fastFlow() FlowConfig {
	return FlowConfig{PollInterval: time.Millisecond}
}

func TestPollWindow_SwallowsCrossOriginErrorsThenExtractsCode(t *testing.T) {
	win := &fakeWindow{steps: []windowStep{
		{locErr: errors.New("cross-origin")},
		{locErr: errors.New("cross-origin")},
		{location: "http://app.local/callback?code=abc123&state=xyz"},
	}}

	res, err := pollWindow(context.Background(), win, fastFlow())
	if err != nil {
		t.Fatalf("pollWindow returned error: %v", err)
	}
	if res.Code != "abc123" || res.State != "xyz" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !win.closed {
		t.Fatalf("window must be closed after code extraction")
	}
}

func TestPollWindow_UserClosedWindow(t *testing.T) {
	win := &fakeWindow{steps: []windowStep{{closed: true}}}

	_, err := pollWindow(context.Background(), win, fastFlow())
	if !errors.Is(err, domain.ErrAuthorizationCancelled) {
		t.Fatalf("expected ErrAuthorizationCancelled, got %v", err)
	}
}

func TestPollWindow_NilWindowIsBlocked(t *testing.T) {
	_, err := pollWindow(context.Background(), nil, fastFlow())
	if !errors.Is(err, domain.ErrPopupBlocked) {
		t.Fatalf("expected ErrPopupBlocked, got %v", err)
	}
}

func TestPollWindow_MaxWaitBoundsPolling(t *testing.T) {
	// Steps never yield a code, so only the deadline can end the loop.
	win := &fakeWindow{}

	cfg := FlowConfig{PollInterval: time.Millisecond, MaxWait: 20 * time.Millisecond}
	_, err := pollWindow(context.Background(), win, cfg)
	if !errors.Is(err, domain.ErrAuthorizationTimeout) {
		t.Fatalf("expected ErrAuthorizationTimeout, got %v", err)
	}
}

func TestPollWindow_ContextCancellation(t *testing.T) {
	win := &fakeWindow{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pollWindow(ctx, win, fastFlow())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestLoginWithExternal_ExchangesCodeAndLoadsPrincipal(t *testing.T) {
	rest := newStubREST()
	rest.responses["GET /api/users/me"] = principalJSON
	store := NewStore(rest, newStubPrefs(), &stubPub{}, fastFlow(), zerolog.Nop())

	win := &fakeWindow{steps: []windowStep{
		{locErr: errors.New("cross-origin")},
		{location: "http://app.local/callback?code=abc123"},
	}}

	p, err := store.LoginWithExternal(context.Background(), win)
	if err != nil {
		t.Fatalf("LoginWithExternal returned error: %v", err)
	}
	if p.ID != 5 {
		t.Fatalf("unexpected principal: %+v", p)
	}

	found := false
	for _, call := range rest.calls {
		if call == "POST /api/auth/ms-login" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected code exchange call, got %v", rest.calls)
	}
}

func TestLinkExternalAccount_RequiresPrincipalAndForwardsState(t *testing.T) {
	rest := newStubREST()
	rest.responses["GET /api/users/me"] = principalJSON
	rest.responses["POST /api/auth/ms-link"] = `{"external_account_id": "ext-42"}`
	store := NewStore(rest, newStubPrefs(), &stubPub{}, fastFlow(), zerolog.Nop())
	ctx := context.Background()

	win := &fakeWindow{steps: []windowStep{
		{location: "http://app.local/callback?code=abc&state=st1"},
	}}

	if err := store.LinkExternalAccount(ctx, win); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated while anonymous, got %v", err)
	}

	if _, err := store.Login(ctx, "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := store.LinkExternalAccount(ctx, win); err != nil {
		t.Fatalf("LinkExternalAccount returned error: %v", err)
	}
	if got := store.Principal().ExternalAccountID; got != "ext-42" {
		t.Fatalf("expected linked account id on principal, got %q", got)
	}
}

func TestUnlinkExternalAccount(t *testing.T) {
	rest := newStubREST()
	rest.responses["GET /api/users/me"] = principalJSON
	rest.responses["POST /api/auth/ms-link"] = `{"external_account_id": "ext-42"}`
	store := NewStore(rest, newStubPrefs(), &stubPub{}, fastFlow(), zerolog.Nop())
	ctx := context.Background()

	if _, err := store.Login(ctx, "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	win := &fakeWindow{steps: []windowStep{
		{location: "http://app.local/callback?code=abc&state=st1"},
	}}
	if err := store.LinkExternalAccount(ctx, win); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	if err := store.UnlinkExternalAccount(ctx); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	if got := store.Principal().ExternalAccountID; got != "" {
		t.Fatalf("expected cleared account id, got %q", got)
	}
}

func TestAuthorizationURL_AppendsStateNonce(t *testing.T) {
	u, err := AuthorizationURL("https://login.example.com/authorize?client_id=app")
	if err != nil {
		t.Fatalf("AuthorizationURL returned error: %v", err)
	}
	parsed, _ := url.Parse(u)
	if parsed.Query().Get("client_id") != "app" {
		t.Fatalf("existing parameters must survive: %q", u)
	}
	if strings.TrimSpace(parsed.Query().Get("state")) == "" {
		t.Fatalf("expected a state nonce, got %q", u)
	}
}
