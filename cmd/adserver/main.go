package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/adserving/internal/api"
	"github.com/ignite/adserving/internal/catalog"
	"github.com/ignite/adserving/internal/config"
	"github.com/ignite/adserving/internal/repository/postgres"
	"github.com/ignite/adserving/internal/targeting"
	"github.com/ignite/adserving/internal/worker"
	"github.com/ignite/adserving/migrations"
)

var (
	configPath     string
	purgeOlderThan time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "adserver",
	Short:         "adserver - notification ad serving core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the serving scheduler and the admin API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE:  runMigrate,
}

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Print the targeting segments for the configured profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printSegments(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

var importCatalogCmd = &cobra.Command{
	Use:   "import-catalog <location>",
	Short: "Replace the PostgreSQL catalog with a JSON catalog document (path or s3:// URI)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportCatalog,
}

var purgeEventsCmd = &cobra.Command{
	Use:   "purge-events",
	Short: "Delete PostgreSQL ad events older than the retention window",
	RunE:  runPurgeEvents,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (empty for defaults)")
	purgeEventsCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 90*24*time.Hour, "Retention window; older events are deleted")
	rootCmd.AddCommand(serveCmd, migrateCmd, segmentsCmd, importCatalogCmd, purgeEventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Printf("Config %s not found, using defaults", path)
			path = ""
		}
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Println("Starting ad server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.buildService(ctx)
	if err != nil {
		return err
	}

	if svc.auth != nil {
		if cfg.Auth.GoogleEnabled() {
			if err := svc.auth.ValidateCredentials(ctx); err != nil {
				log.Printf("WARNING: Google OAuth credential check failed: %v", err)
			}
		}
		svc.auth.CleanupExpiredSessions(ctx, 5*time.Minute)
		log.Printf("Admin API authentication enabled (google login: %v)", cfg.Auth.GoogleEnabled())
	}

	srv := api.NewServer(svc.apiOptions(cfg))
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Admin API listening on %s", cfg.Server.Addr())
		errCh <- srv.ListenAndServe(cfg.Server.Addr())
	}()

	if cfg.Serving.AutoStart {
		if err := svc.scheduler.MaybeServe(ctx); err != nil {
			log.Printf("Serving not started: %v", err)
		}
	}
	if svc.catalog != nil && cfg.Catalog.ReloadInterval() > 0 {
		go reloadCatalog(ctx, svc.catalog, cfg.Catalog.ReloadInterval())
	}
	if p, ok := svc.events.(worker.Purger); ok && cfg.Events.Retention() > 0 {
		go worker.NewRetentionWorker(p, cfg.Events.Retention()).Start(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			log.Printf("Admin API stopped: %v", err)
		}
	}

	log.Println("Shutting down ad server...")
	svc.scheduler.StopServing()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin API shutdown: %v", err)
	}
	log.Println("Ad server stopped")
	return nil
}

func reloadCatalog(ctx context.Context, m *catalog.Memory, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Reload(ctx); err != nil {
				log.Printf("[Catalog] Reload failed, keeping version %d: %v", m.Version(), err)
			}
		}
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := postgres.Migrate(ctx, db, migrations.FS)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "Schema up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "Applied %s\n", name)
	}
	return nil
}

func runImportCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.database(ctx)
	if err != nil {
		return err
	}
	loader, err := a.loader(ctx, args[0])
	if err != nil {
		return err
	}
	n, err := importCatalog(ctx, loader, args[0], postgres.NewCatalogRepo(db))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d creatives\n", n)
	return nil
}

func runPurgeEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	cutoff := time.Now().Add(-purgeOlderThan)
	n, err := postgres.NewEventRepo(db).PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events before %s\n", n, cutoff.UTC().Format(time.RFC3339))
	return nil
}

// printSegments writes the targeting tiers the next cycle would query.
func printSegments(ctx context.Context, cfg *config.Config, w io.Writer) error {
	p, err := profileSource(cfg).Profile(ctx)
	if err != nil {
		return err
	}
	n := cfg.Serving.MaxSegmentsPerCategory
	out := map[string][]string{
		"segments":        targeting.GetTopSegments(p.UserModel, n, false),
		"parent_segments": targeting.GetTopSegments(p.UserModel, n, true),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
