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

// TasksTopic is the notify-bus topic task snapshots are published on.
const TasksTopic = "tasks"

// Tasks is the task collection. Same fetch/error/loading shape as Users,
// without the stale-request guard and without the drain.
type Tasks struct {
	rest ports.RESTClient
	pub  ports.Publisher
	log  zerolog.Logger

	mu      sync.RWMutex
	items   []domain.Task
	meta    domain.PageMeta
	loading bool
	err     error
}

// NewTasks creates an empty task store.
func NewTasks(rest ports.RESTClient, pub ports.Publisher, log zerolog.Logger) *Tasks {
	return &Tasks{rest: rest, pub: pub, log: log}
}

// Snapshot returns an immutable copy of the current collection state.
func (s *Tasks) Snapshot() ports.TasksSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.TasksSnapshot{
		Items:   append([]domain.Task(nil), s.items...),
		Meta:    s.meta,
		Loading: s.loading,
		Err:     s.err,
	}
}

func (s *Tasks) publish() {
	s.pub.Publish(TasksTopic, s.Snapshot())
}

// Fetch loads one page of tasks and stores its metadata verbatim.
func (s *Tasks) Fetch(ctx context.Context, page, perPage int) error {
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

	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/tasks?"+q.Encode(), nil)
	if err != nil {
		err = flattenFieldErrors(err)
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.publish()
		return err
	}

	var env listEnvelope[domain.Task]
	if err := payload.Decode(&env); err != nil {
		err = fmt.Errorf("tasks: decode page: %w", err)
		s.mu.Lock()
		s.loading = false
		s.err = err
		s.mu.Unlock()
		s.publish()
		return err
	}

	metrics.PagesFetchedTotal.WithLabelValues("tasks").Inc()

	s.mu.Lock()
	s.items = env.Data
	s.meta = env.Meta
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return nil
}

// FetchByCode loads a single task by its code.
func (s *Tasks) FetchByCode(ctx context.Context, code string) (*domain.Task, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}
	var t domain.Task
	if err := payload.Decode(&t); err != nil {
		return nil, fmt.Errorf("tasks: decode task: %w", err)
	}
	return &t, nil
}

// Subtypes lists the task subtype reference data.
func (s *Tasks) Subtypes(ctx context.Context) ([]domain.TaskSubtype, error) {
	payload, err := s.rest.Do(ctx, http.MethodGet, "/api/tasks/subtypes", nil)
	if err != nil {
		return nil, err
	}
	var env struct {
		Data []domain.TaskSubtype `json:"data"`
	}
	if err := payload.Decode(&env); err != nil {
		return nil, fmt.Errorf("tasks: decode subtypes: %w", err)
	}
	return env.Data, nil
}
