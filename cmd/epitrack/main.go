package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/epitrack/epitrack/internal/config"
	httpContracts "github.com/epitrack/epitrack/internal/http"
	httpserver "github.com/epitrack/epitrack/internal/interfaces/http"
	"github.com/epitrack/epitrack/internal/interfaces/http/handlers"
	"github.com/epitrack/epitrack/internal/models"
	"github.com/epitrack/epitrack/internal/predict"
	"github.com/epitrack/epitrack/internal/store"
)

const (
	appName = "epitrack"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Epidemic prediction serving API",
		Version: version,
		Long: `Epitrack serves historical epidemic time series and model forecasts
over a read-only HTTP API. Requests degrade gracefully: real data first,
then model inference, then synthetic generation, always flagged as such.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prediction API server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML configuration file")
	serveCmd.Flags().String("host", "", "Bind host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Bind port (overrides config)")
	serveCmd.Flags().String("data", "", "Historical data CSV (overrides config)")
	serveCmd.Flags().String("models", "", "Trained models directory (overrides config)")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if data, _ := cmd.Flags().GetString("data"); data != "" {
		cfg.Data.HistoryFile = data
	}
	if modelsDir, _ := cmd.Flags().GetString("models"); modelsDir != "" {
		cfg.Data.ModelsDir = modelsDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	metrics := httpContracts.NewMetrics()

	var historyStore store.HistoryStore = store.NewFileStore(cfg.Data.HistoryFile)
	var redisCache *store.RedisCache
	if cfg.Cache.Enabled {
		redisCache = store.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		historyStore = store.NewCachedStore(historyStore, redisCache, cfg.Cache.CacheTTL(), metrics)
		log.Info().Str("addr", cfg.Cache.Addr).Msg("history cache enabled")
	}

	registry, err := models.NewBuilder(cfg.Data.ModelsDir).Build()
	if err != nil {
		return err
	}

	engine := predict.NewEngine(registry)
	h := handlers.NewHandlers(historyStore, registry, engine, cfg.Quality.Policy(), metrics)

	server, err := httpserver.NewServer(cfg.Server, h, metrics)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close cache connection")
		}
	}
	return nil
}
