// Package app assembles the full client stack from configuration: REST
// transport, optional offline cache, preference persistence, notify bus and
// every store. Embedding programs construct one App and read snapshots or
// subscribe on the bus.
package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/cache"
	"github.com/vykazy/timesheet-client/internal/infrastructure/db/sqlite"
	"github.com/vykazy/timesheet-client/internal/infrastructure/notify"
	"github.com/vykazy/timesheet-client/internal/pkg/config"
	"github.com/vykazy/timesheet-client/internal/store/lookup"
	"github.com/vykazy/timesheet-client/internal/store/resource"
	"github.com/vykazy/timesheet-client/internal/store/session"
	"github.com/vykazy/timesheet-client/internal/transport/rest"
)

// App is the assembled client. Fields are set once during New and safe for
// concurrent use afterwards.
type App struct {
	Log  zerolog.Logger
	REST *rest.Client
	Bus  *notify.Bus

	Session   *session.Store
	Users     *resource.Users
	Tasks     *resource.Tasks
	Clients   *resource.Clients
	Roles     *lookup.Store
	JobTitles *lookup.Store

	// Offline is the installable cache policy mediating REST traffic, or
	// nil when the cache is disabled.
	Offline *cache.Policy

	prefs *sqlite.PrefStore
	redis interface{ Close() error }
}

// New wires the stack from cfg. The bus workers and lookup subscriptions are
// bound to ctx; cancelling it stops snapshot delivery.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	prefs, err := sqlite.Open(cfg.Prefs.SQLitePath)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		_ = prefs.Close()
		return nil, fmt.Errorf("app: cookie jar: %w", err)
	}
	upstream := rest.NewHTTPFetcher(&http.Client{Jar: jar})

	a := &App{Log: log, prefs: prefs}

	fetcher := upstream
	if cfg.Cache.Enabled {
		rdb, err := cache.Connect(ctx, cfg.Cache)
		if err != nil {
			_ = prefs.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.redis = rdb
		a.Offline = cache.NewPolicy(
			cache.NewRedisStore(rdb), upstream, cfg.Cache.Generation, cfg.APIBaseURL, log)
		fetcher = a.Offline
	}

	client, err := rest.NewClient(cfg.APIBaseURL, log, rest.WithFetcher(fetcher))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.REST = client

	bus := notify.NewBus(0, log)
	bus.Start(ctx)
	a.Bus = bus

	popup := session.FlowConfig{
		PollInterval: cfg.Popup.PollInterval,
		MaxWait:      cfg.Popup.MaxWait,
	}
	a.Session = session.NewStore(client, prefs, bus, popup, log)
	a.Users = resource.NewUsers(client, bus, log)
	a.Tasks = resource.NewTasks(client, bus, log)
	a.Clients = resource.NewClients(client, bus, log)

	a.Roles = lookup.NewRoles(client, log)
	a.JobTitles = lookup.NewJobTitles(client, log)
	bus.Subscribe(session.Topic, a.Roles.SessionSubscriber(ctx))
	bus.Subscribe(session.Topic, a.JobTitles.SessionSubscriber(ctx))

	return a, nil
}

// InstallOffline precaches the static shell and activates the configured
// cache generation. No-op when the offline cache is disabled.
func (a *App) InstallOffline(ctx context.Context) error {
	if a.Offline == nil {
		return nil
	}
	if err := a.Offline.Install(ctx); err != nil {
		return err
	}
	return a.Offline.Activate(ctx)
}

// Close releases the preference database and the cache backend connection.
func (a *App) Close() error {
	err := a.prefs.Close()
	if a.redis != nil {
		if cerr := a.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
