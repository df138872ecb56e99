// Package lookup caches small reference-data tables (roles, job titles)
// fetched at most once per Principal lifetime and joined into other views
// for display.
package lookup

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
)

// IconUnknown is the fallback icon kind for ids missing from the table.
const IconUnknown = "unknown"

// roleIcons maps server role ids to local icon kinds.
var roleIcons = map[int]string{
	1: "admin",
	2: "supervisor",
	3: "employee",
}

// jobTitleIcons maps server job-title ids to local icon kinds.
var jobTitleIcons = map[int]string{
	1: "developer",
	2: "tester",
	3: "analyst",
	4: "manager",
}

// Descriptor is the display form of one reference entry.
type Descriptor struct {
	ID   int
	Name string
	Icon string
}

// Snapshot is the immutable view exposed to display code.
type Snapshot struct {
	Items   map[int]Descriptor
	Loading bool
	Err     error
}

// Store is one reference-data cache. Immutable after load; cleared when the
// Principal is destroyed, so the next Principal triggers a reload.
type Store struct {
	rest  ports.RESTClient
	path  string
	icons map[int]string
	log   zerolog.Logger

	sf singleflight.Group

	mu      sync.RWMutex
	items   map[int]Descriptor
	loading bool
	err     error
	// loadedFor is the principal id the table was loaded (or failed) for;
	// zero means never loaded. One attempt per principal lifetime.
	loadedFor int
}

// NewRoles creates the role lookup store backed by /api/roles.
func NewRoles(rest ports.RESTClient, log zerolog.Logger) *Store {
	return &Store{rest: rest, path: "/api/roles", icons: roleIcons, log: log}
}

// NewJobTitles creates the job-title lookup store backed by /api/job-titles.
func NewJobTitles(rest ports.RESTClient, log zerolog.Logger) *Store {
	return &Store{rest: rest, path: "/api/job-titles", icons: jobTitleIcons, log: log}
}

// Snapshot returns the current state. Items is shared but never mutated
// after load.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Items: s.items, Loading: s.loading, Err: s.err}
}

// Ensure loads the table for the given principal unless an attempt was
// already made during this principal's lifetime. Failures are recorded in
// the snapshot and returned; they are not retried until the principal
// changes.
func (s *Store) Ensure(ctx context.Context, principalID int) (map[int]Descriptor, error) {
	s.mu.RLock()
	if s.loadedFor == principalID {
		items, err := s.items, s.err
		s.mu.RUnlock()
		return items, err
	}
	s.mu.RUnlock()

	_, err, _ := s.sf.Do(strconv.Itoa(principalID), func() (any, error) {
		// Re-check under the flight: a concurrent caller may have loaded.
		s.mu.RLock()
		done := s.loadedFor == principalID
		s.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, s.load(ctx, principalID)
	})
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items, s.err
}

func (s *Store) load(ctx context.Context, principalID int) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	payload, fetchErr := s.rest.Do(ctx, http.MethodGet, s.path, nil)

	items := make(map[int]Descriptor)
	var err error
	if fetchErr != nil {
		err = fetchErr
	} else {
		var env struct {
			Data []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		}
		if decodeErr := payload.Decode(&env); decodeErr != nil {
			err = fmt.Errorf("lookup %s: decode: %w", s.path, decodeErr)
		} else {
			for _, entry := range env.Data {
				icon, ok := s.icons[entry.ID]
				if !ok {
					icon = IconUnknown
				}
				items[entry.ID] = Descriptor{ID: entry.ID, Name: entry.Name, Icon: icon}
			}
		}
	}

	s.mu.Lock()
	s.loading = false
	s.err = err
	s.loadedFor = principalID
	if err == nil {
		s.items = items
	} else {
		s.items = nil
		s.log.Warn().Err(err).Str("path", s.path).Msg("lookup load failed")
	}
	s.mu.Unlock()
	return err
}

// Reset clears the table when the Principal is destroyed.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = nil
	s.err = nil
	s.loading = false
	s.loadedFor = 0
	s.mu.Unlock()
}

// SessionSubscriber adapts the store to session-topic snapshots: a new
// principal triggers a load, an anonymous session clears the table. Loads
// run off the bus worker; failures stay in the snapshot (best-effort path).
func (s *Store) SessionSubscriber(ctx context.Context) func(topic string, snapshot any) {
	return func(_ string, snapshot any) {
		p, _ := snapshot.(*domain.Principal)
		if p == nil {
			s.Reset()
			return
		}
		go func() {
			_, _ = s.Ensure(ctx, p.ID)
		}()
	}
}
