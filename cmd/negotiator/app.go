package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
	"github.com/fish-not-phish/RansomNegotiator/internal/config"
	"github.com/fish-not-phish/RansomNegotiator/internal/directory"
	"github.com/fish-not-phish/RansomNegotiator/internal/poller"
	"github.com/fish-not-phish/RansomNegotiator/internal/session"
	"github.com/fish-not-phish/RansomNegotiator/internal/settings"
	"github.com/fish-not-phish/RansomNegotiator/internal/store"
)

// app wires the components around the two shared contexts: the identity and
// the active session.
type app struct {
	cfg      config.Config
	cfgPath  string
	client   *api.Client
	identity *auth.Identity
	boot     *auth.Bootstrapper
	active   *session.Active
	dir      *directory.Directory
	settings *settings.Sync
	poller   *poller.Poller
	catalog  *store.Catalog
}

// consoleNavigator is the CLI stand-in for a browser navigation to the login
// surface: it can only tell the operator where to go.
type consoleNavigator struct{}

// Location is never under the login path for a CLI process.
func (consoleNavigator) Location() string { return "" }

func (consoleNavigator) Navigate(url string) error {
	fmt.Println("Not logged in. Open the login page in your browser:")
	fmt.Println("  " + url)
	return nil
}

// loadConfig resolves the config file path and flag overrides.
func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, err
	}
	if serverURL != "" {
		cfg.Server = serverURL
	}
	return cfg, path, nil
}

// newApp builds the component graph without touching the network.
func newApp() (*app, error) {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client, err := api.New(api.Config{BaseURL: cfg.Server, Timeout: cfg.RequestTimeout}, logger)
	if err != nil {
		return nil, err
	}

	identity := auth.NewIdentity()
	active := session.NewActive()
	boot := auth.New(client, consoleNavigator{}, identity, logger)
	sync := settings.New(client, identity, logger)

	var catalog *store.Catalog
	if cfg.CachePath != "" {
		catalog, err = store.Open(cfg.CachePath)
		if err != nil {
			// The mirror is an offline convenience, never a blocker.
			logger.Warn("catalog cache unavailable", zap.Error(err))
			catalog = nil
		}
	}

	var catalogStore directory.CatalogStore
	if catalog != nil {
		catalogStore = catalog
	}
	dir := directory.New(client, identity, active, sync, catalogStore, logger)

	p := poller.New(client, identity, active, sync, logger)
	p.SetInterval(cfg.PollInterval)
	p.OnSessionAdopted = func(ctx context.Context) {
		if err := dir.List(ctx); err != nil {
			logger.Warn("catalog refresh after session adoption failed", zap.Error(err))
		}
	}

	return &app{
		cfg:      cfg,
		cfgPath:  cfgPath,
		client:   client,
		identity: identity,
		boot:     boot,
		active:   active,
		dir:      dir,
		settings: sync,
		poller:   p,
		catalog:  catalog,
	}, nil
}

// bootstrap runs the auth sequence and, once authenticated, initializes the
// directory and settings in parallel. Bootstrap is a barrier: nothing else
// talks to the backend before it completes.
func (a *app) bootstrap(ctx context.Context) error {
	if err := a.boot.Run(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dir.List(gctx) })
	g.Go(func() error { return a.settings.Load(gctx) })
	return g.Wait()
}

// watchConfig live-reloads the config file for the duration of a
// long-running command. Returns a stop function; a watch that cannot start
// degrades to the config loaded at startup.
func (a *app) watchConfig() (stop func()) {
	w, err := config.NewWatcher(a.cfgPath, a.applyReload, logger)
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
		return func() {}
	}
	if err := w.Start(); err != nil {
		logger.Warn("config watch failed to start", zap.Error(err))
		return func() {}
	}
	return w.Stop
}

// applyReload applies the reloadable subset of a changed config. The client
// is built once per process, so a server change needs a restart.
func (a *app) applyReload(cfg config.Config) {
	a.poller.SetInterval(cfg.PollInterval)
	if cfg.Server != a.cfg.Server {
		logger.Warn("server changed in config; restart to apply",
			zap.String("server", cfg.Server))
	}
}

func (a *app) close() {
	if a.catalog != nil {
		_ = a.catalog.Close()
	}
}
