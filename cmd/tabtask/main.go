package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tabtask/internal/app"
	"tabtask/internal/config"
	"tabtask/internal/domain"
	"tabtask/internal/engine"
	"tabtask/internal/logging"
	"tabtask/internal/remote"
	"tabtask/internal/repo"
	"tabtask/internal/server"
	"tabtask/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tabtask",
	Short: "Tabtask CLI",
	Long: `Tabtask keeps tasks in tabs and syncs them with a remote store.
- Workspace: the .tabtask directory holds the local database and the saved tab selection; tabtask.yml sits next to it.
- Remote: with remote.url set, changes go to a tabtask server; otherwise the workspace database is the store.
- Tabs: ordered collections of tasks. Deleting a tab moves its tasks to the trash.
- Tasks: new tasks land at the top of their tab. Completed tasks stay listed for a week.
- Trash: deleted tasks are kept for 30 days and can be restored, recreating their tab if needed.
- Every change is applied at once and undone if the store rejects it.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TABTASK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("remote-url", "", "tabtask server url (overrides remote.url)")
	flags.String("token", "", "bearer token for the server")
	flags.String("api-key", "", "api key for the server")
	flags.String("owner", "", "owner of the workspace database (overrides remote.owner)")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "remote-url", "token", "api-key", "owner", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(tabCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(trashCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default tabtask.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace database as a remote store over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			s, conn, err := app.OpenStore(workspace, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:     jwtSecret(cfg),
				AllowDevLogin: cfg.Server.AllowDevLogin,
				Logger:        log,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TABTASK_JWT_SECRET or server.jwt_secret is required for bearer auth")
			}
			handler, err := server.New(server.Config{Store: s, BasePath: basePath, Auth: authCfg, Logger: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info(cmd.Context(), "serving api", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Tabtask API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var owner string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			token, err := server.SignToken(jwtSecret(cfg), owner, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime; 0 for none")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage api keys in the workspace database"}
	keys.AddCommand(apiKeyCreateCmd())
	keys.AddCommand(apiKeyListCmd())
	keys.AddCommand(apiKeyDeleteCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an api key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				key, plain, err := s.CreateAPIKey(ctx, owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "owner_id": key.OwnerID, "name": key.Name, "key": plain})
				}
				fmt.Printf("api key %s for %s: %s\n", key.ID, key.OwnerID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner the key authenticates")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List api keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Owner", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.OwnerID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only keys of this owner")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an api key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.RevokeAPIKey(ctx, owner, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the key")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the remote store's event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.LoadConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			var events []domain.Event
			if cfg.Remote.URL != "" {
				c := remote.NewHTTP(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.APIKey, cfg.Remote.Timeout).Client
				page, err := c.EventsPage(ctx, n, "")
				if err != nil {
					return err
				}
				for _, e := range page.Items {
					payload, _ := json.Marshal(e.Payload)
					events = append(events, domain.Event{ID: e.ID, TS: e.TS, Type: e.Type, EntityKind: e.EntityKind, EntityID: e.EntityID, Payload: string(payload)})
				}
			} else {
				err = withStore(ctx, func(ctx context.Context, s store.Store) error {
					events, err = s.Repo.LatestEvents(ctx, n, cfg.Remote.Owner, f)
					return err
				})
				if err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
			for _, e := range events {
				tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.Payload})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func newLogger() logging.Logger {
	return logging.NewText(os.Stderr, viper.GetString("log-level"))
}

func overrides() app.Overrides {
	return app.Overrides{
		RemoteURL: viper.GetString("remote-url"),
		Token:     viper.GetString("token"),
		APIKey:    viper.GetString("api-key"),
		Owner:     viper.GetString("owner"),
	}
}

func jwtSecret(cfg *config.Config) string {
	if s := viper.GetString("jwt-secret"); s != "" {
		return s
	}
	return cfg.Server.JWTSecret
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	c, err := app.Open(ctx, viper.GetString("workspace"), overrides(), newLogger())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	s, conn, err := app.OpenStore(workspace, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, s)
}

// settle waits for op and turns a rejected change into its user-facing text.
func settle(ctx context.Context, op *engine.Op) error {
	return describe(op.Wait(ctx))
}

func describe(err error) error {
	var failure *engine.SyncFailure
	if errors.As(err, &failure) {
		return fmt.Errorf("%s (%w)", failure.Message(), failure.Err)
	}
	return err
}

func parseRef(s string) (domain.Ref, error) {
	return domain.ParseRef(s)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
