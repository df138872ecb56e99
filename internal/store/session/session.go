// Package session holds the authenticated Principal and implements the
// login, logout, restore and external-authorization flows. The store is the
// single writer of the Principal; readers get immutable snapshots.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
)

// Topic is the notify-bus topic session snapshots are published on. The
// snapshot is a *domain.Principal, nil when the session became anonymous.
const Topic = "session"

const showAllTasksPrefix = "showAllTasks_"

// Store transitions between Anonymous and Authenticated(Principal).
type Store struct {
	rest  ports.RESTClient
	prefs ports.PreferenceStore
	pub   ports.Publisher
	log   zerolog.Logger

	popup FlowConfig

	mu        sync.RWMutex
	principal *domain.Principal
}

// NewStore creates an anonymous session store.
func NewStore(rest ports.RESTClient, prefs ports.PreferenceStore, pub ports.Publisher, popup FlowConfig, log zerolog.Logger) *Store {
	return &Store{rest: rest, prefs: prefs, pub: pub, popup: popup, log: log}
}

// Principal returns a snapshot of the signed-in principal, or nil when the
// session is anonymous.
func (s *Store) Principal() *domain.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// set replaces the principal and publishes the new snapshot.
func (s *Store) set(p *domain.Principal) {
	s.mu.Lock()
	s.principal = p
	s.mu.Unlock()

	var snapshot *domain.Principal
	if p != nil {
		snap := *p
		snapshot = &snap
	}
	s.pub.Publish(Topic, snapshot)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with the API, loads the current principal and
// transitions to Authenticated. On failure the error propagates and the
// state is left unchanged.
func (s *Store) Login(ctx context.Context, email, password string) (*domain.Principal, error) {
	if _, err := s.rest.Do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Email: email, Password: password}); err != nil {
		return nil, err
	}

	p, err := s.fetchMe(ctx)
	if err != nil {
		return nil, err
	}

	s.set(p)
	s.log.Info().Int("principal_id", p.ID).Msg("signed in")

	snapshot := *p
	return &snapshot, nil
}

// Logout ends the server session. The principal is destroyed only when the
// call succeeds; otherwise the error propagates and the state is unchanged.
func (s *Store) Logout(ctx context.Context) error {
	if _, err := s.rest.Do(ctx, http.MethodPost, "/api/auth/logout", nil); err != nil {
		return err
	}
	s.set(nil)
	s.log.Info().Msg("signed out")
	return nil
}

// Restore detects an existing server session at startup. Best effort: any
// failure leaves the session anonymous without surfacing an error.
func (s *Store) Restore(ctx context.Context) *domain.Principal {
	p, err := s.fetchMe(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("no session to restore")
		return nil
	}
	s.set(p)
	snapshot := *p
	return &snapshot
}

// UpdatePrincipal shallow-merges the patch into the current principal.
// No-op when anonymous.
func (s *Store) UpdatePrincipal(patch domain.PrincipalPatch) {
	s.mu.Lock()
	if s.principal == nil {
		s.mu.Unlock()
		return
	}
	merged := s.principal.Apply(patch)
	s.principal = &merged
	s.mu.Unlock()

	snapshot := merged
	s.pub.Publish(Topic, &snapshot)
}

// SetShowAllTasks updates the preference on the principal and persists the
// per-principal flag locally. No-op when anonymous.
func (s *Store) SetShowAllTasks(ctx context.Context, value bool) error {
	s.mu.RLock()
	p := s.principal
	s.mu.RUnlock()
	if p == nil {
		return nil
	}

	key := fmt.Sprintf("%s%d", showAllTasksPrefix, p.ID)
	var err error
	if value {
		err = s.prefs.SetFlag(ctx, key)
	} else {
		err = s.prefs.DeleteFlag(ctx, key)
	}
	if err != nil {
		return err
	}

	s.UpdatePrincipal(domain.PrincipalPatch{ShowAllTasks: &value})
	return nil
}

// fetchMe loads the current principal and merges the locally persisted
// show-all-tasks preference into it.
func (s *Store) fetchMe(ctx context.Context) (*domain.Principal, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/users/me", nil)
	if err != nil {
		return nil, err
	}

	var p domain.Principal
	if err := payload.Decode(&p); err != nil {
		return nil, fmt.Errorf("session: decode principal: %w", err)
	}

	key := fmt.Sprintf("%s%d", showAllTasksPrefix, p.ID)
	enabled, err := s.prefs.HasFlag(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("preference lookup failed")
	} else if enabled {
		p.ShowAllTasks = true
	}

	return &p, nil
}
