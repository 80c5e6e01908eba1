// Package app wires a workspace into a running engine: config, remote store,
// persisted session and the trash.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"tabtask/internal/config"
	"tabtask/internal/db"
	"tabtask/internal/engine"
	"tabtask/internal/logging"
	"tabtask/internal/migrate"
	"tabtask/internal/remote"
	"tabtask/internal/session"
	"tabtask/internal/store"
	"tabtask/internal/trash"
)

// Overrides are flag or environment values that win over tabtask.yml.
type Overrides struct {
	RemoteURL string
	Token     string
	APIKey    string
	Owner     string
}

// Context is an opened workspace.
type Context struct {
	Workspace string
	Config    *config.Config
	Remote    remote.Remote
	Session   *session.Session
	Engine    *engine.Engine
	Trash     *trash.Restorer

	conn *sql.DB
}

// LoadConfig reads the workspace config, falling back to defaults, and
// applies the overrides.
func LoadConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if o.RemoteURL != "" {
		cfg.Remote.URL = o.RemoteURL
	}
	if o.Token != "" {
		cfg.Remote.Token = o.Token
		cfg.Remote.APIKey = ""
	}
	if o.APIKey != "" {
		cfg.Remote.APIKey = o.APIKey
		cfg.Remote.Token = ""
	}
	if o.Owner != "" {
		cfg.Remote.Owner = o.Owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore opens and migrates the workspace database.
func OpenStore(workspace string, cfg *config.Config) (store.Store, *sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return store.Store{}, nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return store.Store{}, nil, fmt.Errorf("migrate: %w", err)
	}
	s := store.New(conn)
	if cfg != nil {
		s.DefaultTabTitle = cfg.Tabs.DefaultTitle
	}
	return s, conn, nil
}

// Open builds the engine for workspace and loads its state from the remote.
func Open(ctx context.Context, workspace string, o Overrides, log logging.Logger) (*Context, error) {
	if log == nil {
		log = logging.Nop()
	}
	cfg, err := LoadConfig(workspace, o)
	if err != nil {
		return nil, err
	}
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	c := &Context{Workspace: workspace, Config: cfg}
	if cfg.Remote.URL != "" {
		c.Remote = remote.NewHTTP(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.APIKey, cfg.Remote.Timeout)
		log.Debug(ctx, "using http remote", "url", cfg.Remote.URL)
	} else {
		s, conn, err := OpenStore(workspace, cfg)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		c.Remote = remote.NewLocal(s, cfg.Remote.Owner)
		log.Debug(ctx, "using workspace database", "path", db.Path(workspace), "owner", cfg.Remote.Owner)
	}
	c.Session = session.New(session.NewDiskvPersister(filepath.Join(dir, "session")))
	if err := c.Session.Load(); err != nil {
		log.Warn(ctx, "read saved selection", "err", err)
	}
	c.Engine = engine.New(c.Remote, engine.Options{
		Session:         c.Session,
		Logger:          log,
		PurgeHorizon:    cfg.Retention.PurgeHorizon,
		CompletedWindow: cfg.Retention.CompletedWindow,
	})
	c.Trash = trash.New(c.Engine)
	c.Trash.FallbackTitle = cfg.Tabs.RestoreFallbackTitle
	if err := c.Engine.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("load: %w", err)
	}
	return c, nil
}

// Close waits for in-flight mutations and releases the database.
func (c *Context) Close() error {
	if c.Engine != nil {
		c.Engine.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
