package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
	"github.com/vykazy/timesheet-client/internal/metrics"
)

// ClientsTopic is the notify-bus topic client snapshots are published on.
const ClientsTopic = "clients"

// Clients is the client collection, structurally a Tasks sibling.
type Clients struct {
	rest ports.RESTClient
	pub  ports.Publisher
	log  zerolog.Logger

	mu      sync.RWMutex
	items   []domain.Client
	meta    domain.PageMeta
	loading bool
	err     error
}

// NewClients creates an empty client store.
func NewClients(rest ports.RESTClient, pub ports.Publisher, log zerolog.Logger) *Clients {
	return &Clients{rest: rest, pub: pub, log: log}
}

// Snapshot returns an immutable copy of the current collection state.
func (s *Clients) Snapshot() ports.ClientsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.ClientsSnapshot{
		Items:   append([]domain.Client(nil), s.items...),
		Meta:    s.meta,
		Loading: s.loading,
		Err:     s.err,
	}
}

func (s *Clients) publish() {
	s.pub.Publish(ClientsTopic, s.Snapshot())
}

// Fetch loads one page of clients and stores its metadata verbatim.
func (s *Clients) Fetch(ctx context.Context, page, perPage int) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()
	s.publish()

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	q := url.Values{}
	q.Set("active", "true")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/clients?"+q.Encode(), nil)
	if err != nil {
		err = flattenFieldErrors(err)
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.publish()
		return err
	}

	var env listEnvelope[domain.Client]
	if err := payload.Decode(&env); err != nil {
		err = fmt.Errorf("clients: decode page: %w", err)
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.publish()
		return err
	}

	metrics.PagesFetchedTotal.WithLabelValues("clients").Inc()

	s.mu.Lock()
	s.items = env.Data
	s.meta = env.Meta
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return nil
}

// FetchByID loads a single client.
func (s *Clients) FetchByID(ctx context.Context, id int) (*domain.Client, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/clients/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	var c domain.Client
	if err := payload.Decode(&c); err != nil {
		return nil, fmt.Errorf("clients: decode client: %w", err)
	}
	return &c, nil
}
