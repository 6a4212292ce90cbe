package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/alertd/internal/api"
	"github.com/good-yellow-bee/alertd/internal/blackout"
	"github.com/good-yellow-bee/alertd/internal/correlation"
	"github.com/good-yellow-bee/alertd/internal/engine"
	"github.com/good-yellow-bee/alertd/internal/metrics"
	"github.com/good-yellow-bee/alertd/internal/storage"
	"github.com/good-yellow-bee/alertd/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "alertd",
	Short: "alertd - Alert correlation and deduplication server",
	Long: `alertd receives monitoring events, deduplicates them into alerts,
correlates related alerts into issues, and suppresses events that fall
inside scheduled blackout windows.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("alertd %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP API listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	log.Printf("database initialized at %s", cfg.Database.Path)

	// Load rule snapshots
	var patterns correlation.PatternSource = correlation.Static()
	var patternFile *correlation.FileSource
	if cfg.Rules.PatternsFile != "" {
		var err error
		patternFile, err = correlation.NewFileSource(cfg.Rules.PatternsFile, cfg.GetRefreshInterval())
		if err != nil {
			return fmt.Errorf("load patterns: %w", err)
		}
		patterns = patternFile
		log.Printf("loaded %d correlation pattern(s) from %s", len(patternFile.Patterns()), cfg.Rules.PatternsFile)
	}

	var blackouts blackout.Source = blackout.Static()
	var blackoutFile *blackout.FileSource
	if cfg.Rules.BlackoutsFile != "" {
		var err error
		blackoutFile, err = blackout.NewFileSource(cfg.Rules.BlackoutsFile, cfg.GetRefreshInterval())
		if err != nil {
			return fmt.Errorf("load blackouts: %w", err)
		}
		blackouts = blackoutFile
		log.Printf("loaded %d blackout window(s) from %s", len(blackoutFile.Blackouts()), cfg.Rules.BlackoutsFile)
	}

	// Assemble the pipeline
	eng := engine.New(store, patterns, blackouts, engine.Options{
		StoreTimeout:         cfg.GetStoreTimeout(),
		HousekeepingInterval: cfg.GetSweepInterval(),
		MaxConflictRetries:   cfg.Database.MaxConflictRetries,
	})
	defer eng.Close()

	apiServer, err := api.New(&api.Config{
		Address:            cfg.Server.HTTPAddress,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		Verbose:            cfg.Verbose,
	}, eng)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.Server.MetricsAddress)
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	log.Printf("starting alertd %s", config.Version)

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Run(runCtx)
	})
	g.Go(func() error {
		go func() {
			<-runCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
		return metricsServer.Start()
	})
	g.Go(func() error {
		err := eng.RunHousekeeping(runCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	if patternFile != nil {
		g.Go(func() error {
			err := patternFile.Run(runCtx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	if blackoutFile != nil {
		g.Go(func() error {
			err := blackoutFile.Run(runCtx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}
