package ports

import (
	"context"

	"github.com/vykazy/timesheet-client/internal/core/domain"
)

// Publisher fans out immutable store snapshots to observers. Stores publish
// on every mutation; UI-layer consumers subscribe by topic.
type Publisher interface {
	Publish(topic string, snapshot any)
}

// ListUsersInput carries all parameters for a paginated user fetch.
type ListUsersInput struct {
	Page    int
	PerPage int
	// Filters are passed through as query parameters. The store always
	// forces active=true on top of them.
	Filters map[string]string
	Sort    string
	// FetchAll drains every page from Page to the reported last page and
	// accumulates the results into one collection.
	FetchAll bool
}

// UsersSnapshot is the immutable view published after every user mutation.
type UsersSnapshot struct {
	Items   []domain.User
	Meta    domain.PageMeta
	Loading bool
	Err     error
}

// CreateUserInput carries the writable fields of a new user.
type CreateUserInput struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	RoleID       int    `json:"role_id" validate:"required,gt=0"`
	JobTitleID   int    `json:"job_title_id" validate:"required,gt=0"`
	SupervisorID int    `json:"supervisor_id,omitempty" validate:"omitempty,gt=0"`
	AutoApproved bool   `json:"auto_approved"`
}

// UpdateUserInput carries a partial user update; nil fields are omitted from
// the request body.
type UpdateUserInput struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	RoleID       *int    `json:"role_id,omitempty" validate:"omitempty,gt=0"`
	JobTitleID   *int    `json:"job_title_id,omitempty" validate:"omitempty,gt=0"`
	SupervisorID *int    `json:"supervisor_id,omitempty" validate:"omitempty,gt=0"`
	AutoApproved *bool   `json:"auto_approved,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// UserStore is the paginated user collection with the stale-request guard.
type UserStore interface {
	FetchPage(ctx context.Context, in ListUsersInput) error
	FetchByID(ctx context.Context, id int) (*domain.User, error)
	Create(ctx context.Context, in CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, id int, in UpdateUserInput) (*domain.User, error)
	Remove(ctx context.Context, id int) error
	Supervisors(ctx context.Context) ([]domain.Supervisor, error)
	Snapshot() UsersSnapshot
}

// TasksSnapshot is the immutable view published after every task mutation.
type TasksSnapshot struct {
	Items   []domain.Task
	Meta    domain.PageMeta
	Loading bool
	Err     error
}

// TaskStore is the task collection. It shares the fetch/error/loading shape
// of the user store but carries no stale-request guard and no drain.
type TaskStore interface {
	Fetch(ctx context.Context, page, perPage int) error
	FetchByCode(ctx context.Context, code string) (*domain.Task, error)
	Subtypes(ctx context.Context) ([]domain.TaskSubtype, error)
	Snapshot() TasksSnapshot
}

// ClientsSnapshot is the immutable view published after every client mutation.
type ClientsSnapshot struct {
	Items   []domain.Client
	Meta    domain.PageMeta
	Loading bool
	Err     error
}

// ClientStore is the client collection, structurally a TaskStore sibling.
type ClientStore interface {
	Fetch(ctx context.Context, page, perPage int) error
	FetchByID(ctx context.Context, id int) (*domain.Client, error)
	Snapshot() ClientsSnapshot
}
