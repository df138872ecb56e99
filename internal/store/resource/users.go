// Package resource implements the client-side resource collections: users
// with the stale-request guard and full-pagination drain, and the simpler
// task and client variants sharing the same fetch/error/loading shape.
package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
	"github.com/vykazy/timesheet-client/internal/metrics"
)

// UsersTopic is the notify-bus topic user snapshots are published on.
const UsersTopic = "users"

const defaultPerPage = 10

// listEnvelope is the API's list response shape.
type listEnvelope[T any] struct {
	Data []T             `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// Users is the paginated user collection. It is the single writer of its
// items; every mutation publishes an immutable snapshot.
type Users struct {
	rest ports.RESTClient
	pub  ports.Publisher
	log  zerolog.Logger

	// seq is the strictly increasing request-sequence counter backing the
	// stale-request guard. A fetch captures the value at call start and may
	// only apply its result while still the latest.
	seq atomic.Uint64

	mu      sync.RWMutex
	items   []domain.User
	meta    domain.PageMeta
	loading bool
	err     error
}

// NewUsers creates an empty user store.
func NewUsers(rest ports.RESTClient, pub ports.Publisher, log zerolog.Logger) *Users {
	return &Users{rest: rest, pub: pub, log: log}
}

// Snapshot returns an immutable copy of the current collection state.
func (s *Users) Snapshot() ports.UsersSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.UsersSnapshot{
		Items:   append([]domain.User(nil), s.items...),
		Meta:    s.meta,
		Loading: s.loading,
		Err:     s.err,
	}
}

func (s *Users) publish() {
	s.pub.Publish(UsersTopic, s.Snapshot())
}

// superseded reports whether a newer fetch was issued after token was taken.
func (s *Users) superseded(token uint64) bool {
	return s.seq.Load() != token
}

// begin flips the loading flag for the fetch holding token. It refuses when
// a newer fetch has already been issued: a superseded call that never ran
// must not touch the flag, or it would leave the snapshot stuck loading
// after the newer fetch settled.
func (s *Users) begin(token uint64) bool {
	s.mu.Lock()
	if s.superseded(token) {
		s.mu.Unlock()
		return false
	}
	s.loading = true
	s.err = nil
	s.mu.Unlock()
	s.publish()
	return true
}

// FetchPage loads one page of users, or drains every page when in.FetchAll
// is set. Only the most-recently-issued fetch may mutate the collection: a
// call that resolves after a newer one was issued discards its data and
// returns domain.ErrSuperseded.
func (s *Users) FetchPage(ctx context.Context, in ports.ListUsersInput) error {
	token := s.seq.Add(1)
	if !s.begin(token) {
		metrics.StaleResponsesDroppedTotal.WithLabelValues("users").Inc()
		return domain.ErrSuperseded
	}

	page := in.Page
	if page <= 0 {
		page = 1
	}
	perPage := in.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	var accumulated []domain.User
	for {
		env, err := s.fetchOne(ctx, page, perPage, in)
		if err != nil {
			err = flattenFieldErrors(err)
			if s.superseded(token) {
				metrics.StaleResponsesDroppedTotal.WithLabelValues("users").Inc()
				return fmt.Errorf("%w: %w", domain.ErrSuperseded, err)
			}
			s.mu.Lock()
			s.loading = false
			s.err = err
			s.mu.Unlock()
			s.publish()
			return err
		}

		if s.superseded(token) {
			metrics.StaleResponsesDroppedTotal.WithLabelValues("users").Inc()
			s.log.Debug().Uint64("token", token).Msg("stale user fetch dropped")
			return domain.ErrSuperseded
		}

		metrics.PagesFetchedTotal.WithLabelValues("users").Inc()

		if !in.FetchAll {
			s.mu.Lock()
			s.items = env.Data
			s.meta = env.Meta
			s.loading = false
			s.mu.Unlock()
			s.publish()
			return nil
		}

		accumulated = append(accumulated, env.Data...)
		if env.Meta.CurrentPage >= env.Meta.LastPage {
			s.mu.Lock()
			s.items = accumulated
			s.meta = domain.SyntheticPageMeta(len(accumulated))
			s.loading = false
			s.mu.Unlock()
			s.publish()
			return nil
		}
		page = env.Meta.CurrentPage + 1
	}
}

// fetchOne issues the list call for a single page. The active=true filter is
// always applied on top of the caller's filters.
func (s *Users) fetchOne(ctx context.Context, page, perPage int, in ports.ListUsersInput) (*listEnvelope[domain.User], error) {
	q := url.Values{}
	for k, v := range in.Filters {
		q.Set(k, v)
	}
	q.Set("active", "true")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if in.Sort != "" {
		q.Set("sort", in.Sort)
	}

	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var env listEnvelope[domain.User]
	if err := payload.Decode(&env); err != nil {
		return nil, fmt.Errorf("users: decode page: %w", err)
	}
	return &env, nil
}

// flattenFieldErrors converts a server validation payload into one joined
// message, per the list-fetch error contract. Other errors pass unchanged.
func flattenFieldErrors(err error) error {
	var httpErr *domain.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.FieldErrors) > 0 {
		return errors.New(joinFieldErrors(httpErr.FieldErrors))
	}
	return err
}

// FetchByID loads a single user without touching the collection.
func (s *Users) FetchByID(ctx context.Context, id int) (*domain.User, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/users/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := payload.Decode(&u); err != nil {
		return nil, fmt.Errorf("users: decode user: %w", err)
	}
	return &u, nil
}

// Create stores a new user and merges the server's reply into the
// collection. Validation failures, local or server-side, surface as errors.
func (s *Users) Create(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	payload, err := s.rest.Do(ctx, http.MethodPost, "/api/users", in)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := payload.Decode(&u); err != nil {
		return nil, fmt.Errorf("users: decode created user: %w", err)
	}

	s.merge(u)
	return &u, nil
}

// Update patches an existing user and merges the server's reply into the
// collection.
func (s *Users) Update(ctx context.Context, id int, in ports.UpdateUserInput) (*domain.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	payload, err := s.rest.Do(ctx, http.MethodPut, "/api/users/"+strconv.Itoa(id), in)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := payload.Decode(&u); err != nil {
		return nil, fmt.Errorf("users: decode updated user: %w", err)
	}

	s.merge(u)
	return &u, nil
}

// merge appends the entity, or replaces the entry with the same id. Id
// uniqueness within the collection holds after every mutation.
func (s *Users) merge(u domain.User) {
	s.mu.Lock()
	replaced := false
	for i := range s.items {
		if s.items[i].ID == u.ID {
			s.items[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		s.items = append(s.items, u)
	}
	s.mu.Unlock()
	s.publish()
}

// Remove deletes a user and drops it from the collection.
func (s *Users) Remove(ctx context.Context, id int) error {
	if _, err := s.rest.Do(ctx, http.MethodDelete, "/api/users/"+strconv.Itoa(id), nil); err != nil {
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	for _, u := range s.items {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.publish()
	return nil
}

// Supervisors lists the users that can be assigned as supervisors.
func (s *Users) Supervisors(ctx context.Context) ([]domain.Supervisor, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/users/supervisors", nil)
	if err != nil {
		return nil, err
	}
	var env struct {
		Data []domain.Supervisor `json:"data"`
	}
	if err := payload.Decode(&env); err != nil {
		return nil, fmt.Errorf("users: decode supervisors: %w", err)
	}
	return env.Data, nil
}
