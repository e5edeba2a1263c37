package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/mattn/go-sqlite3" // SQLite driver (cgo)
	_ "modernc.org/sqlite"          // SQLite driver (pure Go)

	"github.com/stevemurr/stac-server/config"
	"github.com/stevemurr/stac-server/handler"
	"github.com/stevemurr/stac-server/store"
	"github.com/stevemurr/stac-server/telemetry"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stac-server",
	Short: "STAC API server",
	Long: `stac-server serves a SpatioTemporal Asset Catalog API over a SQLite,
file, in-memory or Elasticsearch store. Without a subcommand it serves.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveFlags struct {
	host, port, backend, dataDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server. Settings come from STAC_* environment variables;
flags override them.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "stac-server "+version)
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&serveFlags.host, "host", "", "listen host (STAC_HOST)")
		c.Flags().StringVar(&serveFlags.port, "port", "", "listen port (STAC_PORT)")
		c.Flags().StringVar(&serveFlags.backend, "backend", "", "store backend: sqlite, file, memory or elasticsearch (STAC_BACKEND)")
		c.Flags().StringVar(&serveFlags.dataDir, "data-dir", "", "data directory of the sqlite and file backends (STAC_DATA_DIR)")
	}
	rootCmd.AddCommand(serveCmd, ingestCmd, validateCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if serveFlags.host != "" {
		cfg.Host = serveFlags.host
	}
	if serveFlags.port != "" {
		cfg.Port = serveFlags.port
	}
	if serveFlags.backend != "" {
		cfg.Backend = serveFlags.backend
	}
	if serveFlags.dataDir != "" {
		cfg.DataDir = serveFlags.dataDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "stac-server", version, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	opts, err := handlerOptions(cfg)
	if err != nil {
		return err
	}

	s, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("create store (backend=%s): %w", cfg.Backend, err)
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.New(s, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("STAC server starting on %s (store=%s, extensions=%v)", cfg.Addr(), cfg.Backend, cfg.Extensions)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func handlerOptions(cfg *config.Config) (handler.Options, error) {
	queryables, err := cfg.LoadQueryables()
	if err != nil {
		return handler.Options{}, err
	}
	itemSchema, err := cfg.LoadItemSchema()
	if err != nil {
		return handler.Options{}, err
	}
	return handler.Options{
		Title:           cfg.Title,
		Description:     cfg.Description,
		Extensions:      cfg.Extensions,
		DefaultIncludes: cfg.DefaultIncludes,
		DefaultLimit:    cfg.DefaultLimit,
		MaxLimit:        cfg.MaxLimit,
		Queryables:      queryables,
		ItemSchema:      itemSchema,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, nil
}
