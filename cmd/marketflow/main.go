package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/marketflow/internal/config"
	httpapi "github.com/sawpanic/marketflow/internal/interfaces/http"
	"github.com/sawpanic/marketflow/internal/persistence"
	"github.com/sawpanic/marketflow/internal/persistence/postgres"
	"github.com/sawpanic/marketflow/internal/system"
)

const (
	appName = "marketflow"
	version = "v1.2.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time market data processing core",
		Version: version,
		Long: `marketflow routes tick, OHLCV, and fair-market-value streams through
typed processing channels, detects price and volume events, and persists
minute aggregates to a time-series store.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (trace|debug|info|warn|error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the processing core until interrupted",
		RunE:  runServe,
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}
	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	levelOverride, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, levelOverride)

	deps := system.Deps{}
	if cfg.Persistence.Enabled {
		repo, err := postgres.Open(context.Background(), cfg.Persistence.DSN,
			cfg.Persistence.MaxOpenConns, cfg.Persistence.MinIdleConns,
			time.Duration(cfg.Persistence.ConnectTimeoutSecs)*time.Second)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if err := repo.EnsureSchema(context.Background()); err != nil {
			return err
		}
		deps.Repository = persistence.Repository(repo)
	}

	sys, err := system.New(cfg, deps)
	if err != nil {
		return err
	}
	if err := sys.Start(); err != nil {
		return err
	}

	var srv *httpapi.Server
	if cfg.HTTP.Enabled {
		srv = httpapi.NewServer(cfg.HTTP.ListenAddr, sys)
		srv.Start()
	}

	log.Info().Str("version", version).Msg("marketflow running, ctrl-c to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Stop(ctx)
		cancel()
	}
	sys.Stop()
	return nil
}

// setupLogging configures zerolog: pretty console output on a terminal,
// JSON lines otherwise.
func setupLogging(cfg config.LoggingConfig, override string) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := cfg.Level
	if override != "" {
		level = override
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	if cfg.Pretty && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
