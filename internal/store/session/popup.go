package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
)

const defaultPollInterval = 500 * time.Millisecond

// FlowConfig tunes the external-authorization polling loop.
type FlowConfig struct {
	// PollInterval is how often the window location is inspected.
	// Defaults to 500ms.
	PollInterval time.Duration
	// MaxWait bounds the whole wait. Zero means unbounded; cancellation is
	// then up to the caller's context or the user closing the window.
	MaxWait time.Duration
}

// authResult is what the provider redirect carries back.
type authResult struct {
	Code  string
	State string
}

// AuthorizationURL appends a fresh state nonce to the provider's
// authorization endpoint. The nonce comes back on the redirect and is
// forwarded verbatim to the linking endpoint.
func AuthorizationURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("session: parse authorization endpoint: %w", err)
	}
	q := u.Query()
	q.Set("state", uuid.NewString())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pollWindow watches the authorization window until the provider redirects
// back with a code, the user closes the window, or the wait runs out.
// Location errors mean the window is still on the external origin; they are
// expected and swallowed.
func pollWindow(ctx context.Context, win ports.AuthorizationWindow, cfg FlowConfig) (authResult, error) {
	if win == nil {
		return authResult{}, domain.ErrPopupBlocked
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	var deadline <-chan time.Time
	if cfg.MaxWait > 0 {
		timer := time.NewTimer(cfg.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return authResult{}, ctx.Err()
		case <-deadline:
			return authResult{}, domain.ErrAuthorizationTimeout
		case <-ticker.C:
			if win.Closed() {
				return authResult{}, domain.ErrAuthorizationCancelled
			}
			loc, err := win.Location()
			if err != nil {
				continue
			}
			code := loc.Query().Get("code")
			if code == "" {
				continue
			}
			win.Close()
			return authResult{Code: code, State: loc.Query().Get("state")}, nil
		}
	}
}

type externalLoginRequest struct {
	Code string `json:"code"`
}

type linkAccountRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// LoginWithExternal signs in through the external provider: it polls the
// window for an authorization code, exchanges the code, then loads the
// principal exactly like Login does.
func (s *Store) LoginWithExternal(ctx context.Context, win ports.AuthorizationWindow) (*domain.Principal, error) {
	res, err := pollWindow(ctx, win, s.popup)
	if err != nil {
		return nil, err
	}

	if _, err := s.rest.Do(ctx, http.MethodPost, "/api/auth/ms-login", externalLoginRequest{Code: res.Code}); err != nil {
		return nil, err
	}

	p, err := s.fetchMe(ctx)
	if err != nil {
		return nil, err
	}

	s.set(p)
	s.log.Info().Int("principal_id", p.ID).Msg("signed in via external provider")

	snapshot := *p
	return &snapshot, nil
}

// LinkExternalAccount attaches an external account to the already signed-in
// principal. Same polling flow, but both code and state are forwarded to the
// linking endpoint.
func (s *Store) LinkExternalAccount(ctx context.Context, win ports.AuthorizationWindow) error {
	if s.Principal() == nil {
		return domain.ErrNotAuthenticated
	}

	res, err := pollWindow(ctx, win, s.popup)
	if err != nil {
		return err
	}

	payload, err := s.rest.Do(ctx, http.MethodPost, "/api/auth/ms-link", linkAccountRequest{Code: res.Code, State: res.State})
	if err != nil {
		return err
	}

	var linked struct {
		ExternalAccountID string `json:"external_account_id"`
	}
	if err := payload.Decode(&linked); err != nil {
		return fmt.Errorf("session: decode link response: %w", err)
	}

	s.UpdatePrincipal(domain.PrincipalPatch{ExternalAccountID: &linked.ExternalAccountID})
	return nil
}

// UnlinkExternalAccount detaches the external account from the signed-in
// principal.
func (s *Store) UnlinkExternalAccount(ctx context.Context) error {
	if s.Principal() == nil {
		return domain.ErrNotAuthenticated
	}

	if _, err := s.rest.Do(ctx, http.MethodDelete, "/api/auth/ms-link", nil); err != nil {
		return err
	}

	empty := ""
	s.UpdatePrincipal(domain.PrincipalPatch{ExternalAccountID: &empty})
	return nil
}
