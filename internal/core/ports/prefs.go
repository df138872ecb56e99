package ports

import "context"

// PreferenceStore persists flag-style preferences on the local machine,
// keyed by a namespaced string (e.g. "showAllTasks_42"). Presence of a key
// means the flag is enabled.
type PreferenceStore interface {
	SetFlag(ctx context.Context, key string) error
	DeleteFlag(ctx context.Context, key string) error
	HasFlag(ctx context.Context, key string) (bool, error)
}
