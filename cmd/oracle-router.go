package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oracle-router/config"
	"oracle-router/oracle"
	"oracle-router/oracle/ai"
	"oracle-router/oracle/history"
	"oracle-router/oracle/provider"
	"oracle-router/oracle/routing"
	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"
	v1 "oracle-router/router/v1"
)

const (
	logLevelJSON = "json"
	logLevelText = "text"

	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"

	defaultCacheDir       = "oracle-cache"
	defaultFileCacheBytes = 64 << 20
	redisCachePrefix      = "oracle-router"
)

var rootCmd = &cobra.Command{
	Use:   "oracle-router [config-file]",
	Args:  cobra.ExactArgs(1),
	Short: "oracle-router routes prediction market questions to oracle networks",
	Long: `A routing service for prediction market backends. The oracle-router
performs three primary functions. First, it classifies free-form market
questions and decides which oracle network can resolve them, optionally
cross-checked by an LLM. Secondly, it fans requests out across the configured
oracle providers and aggregates their answers into a single consensus value.
Finally, it exposes this routing, aggregation and market resolution via an
API.`,
	RunE: oracleRouterCmdHandler,
}

func init() {
	rootCmd.PersistentFlags().String(flagLogLevel, zerolog.InfoLevel.String(), "logging level")
	rootCmd.PersistentFlags().String(flagLogFormat, logLevelText, "logging format; must be either json or text")

	rootCmd.AddCommand(getVersionCmd())
	rootCmd.AddCommand(getRouteCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func oracleRouterCmdHandler(cmd *cobra.Command, args []string) error {
	// a local .env augments the process environment when present
	_ = godotenv.Load()

	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.ParseConfig(args[0])
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()

	// the configured level applies unless the flag was set explicitly
	if !cmd.Flags().Changed(flagLogLevel) {
		logLvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = logger.Level(logLvl)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	g, ctx := errgroup.WithContext(ctx)

	// listen for and trap any OS signal to gracefully shutdown and exit
	trapSignal(cancel, logger)

	requestTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse request timeout: %w", err)
	}

	healthInterval, err := time.ParseDuration(cfg.HealthInterval)
	if err != nil {
		return fmt.Errorf("failed to parse health interval: %w", err)
	}

	deviationThreshold, err := decimal.NewFromString(cfg.DeviationThreshold)
	if err != nil {
		return fmt.Errorf("failed to parse deviation threshold: %w", err)
	}

	cache, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}

	session := transport.NewSession(transport.SessionConfig{
		Timeout:   requestTimeout,
		APIKey:    cfg.APIKey,
		UserAgent: userAgent(),
	}, logger)

	registry := provider.NewRegistry(logger)
	if err := registerAdapters(ctx, logger, cfg, registry, session, cache); err != nil {
		return err
	}

	enhancer, resolver := buildAI(cfg, logger)

	var journal *history.RequestHistory
	if cfg.Journal.IsEnabled() {
		journal, err = history.NewRequestHistory(cfg.Journal.Db, logger)
		if err != nil {
			return fmt.Errorf("failed to init request journal db: %v", err)
		}
	}

	svc := oracle.New(
		logger,
		oracle.ServiceConfig{
			HealthInterval:     healthInterval,
			Concurrency:        cfg.Aggregation.Concurrency,
			AggregationMethod:  cfg.Aggregation.Method,
			DeviationThreshold: deviationThreshold,
			QualityThreshold:   cfg.AI.QualityThreshold,
		},
		registry,
		routing.NewEngine(logger),
		enhancer,
		resolver,
		cache,
		journal,
	)

	g.Go(func() error {
		// serve the routing, aggregation and resolution API
		return startServer(ctx, logger, cfg, svc)
	})

	g.Go(func() error {
		// run the health sweep loop over the registered adapters
		return startOracle(ctx, logger, svc)
	})

	// Block main process until all spawned goroutines have gracefully exited and
	// signal has been captured in the main process or if an error occurs.
	return g.Wait()
}

func buildLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	logLvlStr, err := cmd.Flags().GetString(flagLogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}

	logLvl, err := zerolog.ParseLevel(logLvlStr)
	if err != nil {
		return zerolog.Nop(), err
	}

	logFormatStr, err := cmd.Flags().GetString(flagLogFormat)
	if err != nil {
		return zerolog.Nop(), err
	}

	var logWriter io.Writer
	switch strings.ToLower(logFormatStr) {
	case logLevelJSON:
		logWriter = os.Stderr

	case logLevelText:
		logWriter = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.StampMilli,
		}

	default:
		return zerolog.Nop(), fmt.Errorf("invalid logging format: %s", logFormatStr)
	}

	zerolog.TimeFieldFormat = time.StampMilli
	return zerolog.New(logWriter).Level(logLvl).With().Timestamp().Logger(), nil
}

func buildCache(cfg config.Config, logger zerolog.Logger) (transport.Cache, error) {
	if !cfg.Cache.IsEnabled() {
		return nil, nil
	}

	ttl, err := time.ParseDuration(cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache ttl: %w", err)
	}

	switch cfg.Cache.Backend {
	case "file":
		dir := cfg.Cache.Dir
		if dir == "" {
			dir = defaultCacheDir
		}
		return transport.NewFileCache(dir, defaultFileCacheBytes, logger)

	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return transport.NewRedisCache(redis.NewClient(opts), redisCachePrefix, logger), nil

	default:
		return transport.NewMemoryCache(cfg.Cache.MaxSize, ttl)
	}
}

func registerAdapters(
	ctx context.Context,
	logger zerolog.Logger,
	cfg config.Config,
	registry *provider.Registry,
	session *transport.Session,
	cache transport.Cache,
) error {
	for _, p := range cfg.EnabledProviders() {
		endpoint, err := p.ToEndpoint()
		if err != nil {
			return err
		}

		var adapter provider.Adapter
		switch endpoint.Name {
		case types.ProviderChainlink:
			if endpoint.Rpc == "" {
				endpoint.Rpc = cfg.RPCURL("ethereum")
			}
			adapter, err = provider.NewChainlinkAdapter(ctx, logger, endpoint, session, cache)

		case types.ProviderPyth:
			adapter, err = provider.NewPythAdapter(ctx, logger, endpoint, session, cache)

		case types.ProviderBand:
			adapter, err = provider.NewBandAdapter(ctx, logger, endpoint, session, cache)

		case types.ProviderUMA:
			adapter, err = provider.NewUMAAdapter(ctx, logger, endpoint, session, cache)

		case types.ProviderAPI3:
			adapter, err = provider.NewAPI3Adapter(ctx, logger, endpoint, session, cache)

		default:
			return fmt.Errorf("unsupported provider: %s", endpoint.Name)
		}
		if err != nil {
			return err
		}

		registry.Register(adapter)
	}

	return nil
}

// buildAI assembles the LLM client chain. Without API keys both returns are
// nil and the service runs its deterministic paths only.
func buildAI(cfg config.Config, logger zerolog.Logger) (*ai.Enhancer, *ai.Resolver) {
	if !cfg.AI.IsEnabled() {
		return nil, nil
	}

	clients := []ai.Client{}
	if cfg.AI.OpenAIKey != "" {
		clients = append(clients, ai.NewOpenAIClient(ai.ClientConfig{
			APIKey: cfg.AI.OpenAIKey,
			Model:  cfg.AI.OpenAIModel,
		}, logger))
	}
	if cfg.AI.OpenRouterKey != "" {
		clients = append(clients, ai.NewOpenRouterClient(ai.ClientConfig{
			APIKey: cfg.AI.OpenRouterKey,
			Model:  cfg.AI.OpenRouterModel,
		}, logger))
	}

	if len(clients) == 0 {
		logger.Warn().Msg("ai routing enabled but no api keys are configured")
		return nil, nil
	}

	chain := ai.NewChain(logger, clients...)
	return ai.NewEnhancer(chain, cfg.AI.Preferred, logger),
		ai.NewResolver(chain, cfg.AI.Preferred, logger)
}

// trapSignal will listen for any OS signal and invoke Done on the main
// WaitGroup allowing the main process to gracefully exit.
func trapSignal(cancel context.CancelFunc, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh, syscall.SIGTERM)
	signal.Notify(sigCh, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("caught signal; shutting down...")
		cancel()
	}()
}

func startServer(
	ctx context.Context,
	logger zerolog.Logger,
	cfg config.Config,
	svc *oracle.Service,
) error {
	rtr := mux.NewRouter()
	v1Router := v1.New(logger, cfg, svc)
	v1Router.RegisterRoutes(rtr, v1.APIPathPrefix)

	writeTimeout, err := time.ParseDuration(cfg.Server.WriteTimeout)
	if err != nil {
		return err
	}
	readTimeout, err := time.ParseDuration(cfg.Server.ReadTimeout)
	if err != nil {
		return err
	}

	srvErrCh := make(chan error, 1)
	srv := &http.Server{
		Handler:           rtr,
		Addr:              cfg.Server.ListenAddr,
		WriteTimeout:      writeTimeout,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
	}

	go func() {
		logger.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("starting oracle-router server...")
		srvErrCh <- srv.ListenAndServe()
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			logger.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("shutting down oracle-router server...")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("failed to gracefully shutdown oracle-router server")
				return err
			}

			return nil

		case err := <-srvErrCh:
			logger.Error().Err(err).Msg("failed to start oracle-router server")
			return err
		}
	}
}

func startOracle(ctx context.Context, logger zerolog.Logger, svc *oracle.Service) error {
	srvErrCh := make(chan error, 1)

	go func() {
		logger.Info().Msg("starting oracle-router service...")
		srvErrCh <- svc.Start(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down oracle-router service...")
			return nil

		case err := <-srvErrCh:
			logger.Err(err).Msg("error starting the oracle-router service")
			svc.Stop()
			return err
		}
	}
}
