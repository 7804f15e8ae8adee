// Package main runs the signal engine service:
// - Ingestion (continuous): pump.fun creations via websocket, polling fallback
// - Analysis (continuous): gate pipeline over a bounded worker pool
// - Tracking and wallet discovery (scheduled)
// - HTTP API: signals, wallet curation, health, metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-signal-engine/internal/analyzer"
	"solana-signal-engine/internal/antirug"
	"solana-signal-engine/internal/api"
	"solana-signal-engine/internal/config"
	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/health"
	"solana-signal-engine/internal/httpclient"
	"solana-signal-engine/internal/ingestion"
	"solana-signal-engine/internal/ledger"
	"solana-signal-engine/internal/logger"
	"solana-signal-engine/internal/market"
	"solana-signal-engine/internal/notify"
	"solana-signal-engine/internal/scheduler"
	"solana-signal-engine/internal/scoring"
	"solana-signal-engine/internal/service"
	"solana-signal-engine/internal/solana"
	"solana-signal-engine/internal/storage"
	chstore "solana-signal-engine/internal/storage/clickhouse"
	"solana-signal-engine/internal/storage/memory"
	"solana-signal-engine/internal/storage/migrations"
	pgstore "solana-signal-engine/internal/storage/postgres"
	"solana-signal-engine/internal/tracker"
	"solana-signal-engine/internal/walletdiscovery"
)

// Server holds all components of the service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	stores    *allStores
	monitor   *health.Monitor
	ingestor  *ingestion.Ingestor
	pool      *analyzer.Pool
	recorder  *analyzer.Recorder
	notifier  *notify.Async
	scheduler *scheduler.Scheduler
	httpSrv   *http.Server
}

// allStores holds all storage implementations.
type allStores struct {
	wallets   storage.WalletStore
	signals   storage.SignalStore
	assets    storage.AssetStore
	winners   storage.WinnerStore
	buyers    storage.EarlyBuyerStore
	cursors   storage.CursorStore
	decisions storage.DecisionLog // nil when no audit log is configured
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: ./config.yaml if present)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.UseMemory = true
	}

	log, err := logger.NewLogger("signal-engine", cfg.Log.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if err := logger.SetLogLevel(cfg.Log.Level); err != nil {
		log.Fatal("invalid log level", zap.Error(err))
	}
	config.Watch(cfg, func(next *config.Config) {
		if err := logger.SetLogLevel(next.Log.Level); err != nil {
			log.Warn("config reload: bad log level", zap.String("level", next.Log.Level))
			return
		}
		log.Info("log level reloaded", zap.String("level", next.Log.Level))
	})

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		log.Fatal("failed to create stores", zap.Error(err))
	}
	defer cleanup()

	server, err := newServer(ctx, cfg, stores, log)
	if err != nil {
		cleanup()
		log.Fatal("failed to build server", zap.Error(err))
	}

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func createStores(ctx context.Context, cfg *config.Config) (*allStores, func(), error) {
	if cfg.UseMemory {
		signals := memory.NewSignalStore()
		winners := memory.NewWinnerStore()
		stores := &allStores{
			wallets:   memory.NewWalletStore(),
			signals:   signals,
			assets:    signals,
			winners:   winners,
			buyers:    memory.NewEarlyBuyerStore(winners),
			cursors:   memory.NewCursorStore(),
			decisions: memory.NewDecisionLog(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(cfg.Postgres.MaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	signals := pgstore.NewSignalStore(pool)
	stores := &allStores{
		wallets: pgstore.NewWalletStore(pool),
		signals: signals,
		assets:  signals,
		winners: pgstore.NewWinnerStore(pool),
		buyers:  pgstore.NewEarlyBuyerStore(pool),
		cursors: pgstore.NewCursorStore(pool),
	}

	var chConn *chstore.Conn
	if cfg.ClickHouse.DSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		stores.decisions = chstore.NewDecisionLog(chConn)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

func newServer(ctx context.Context, cfg *config.Config, stores *allStores, log *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: log, stores: stores}
	s.monitor = health.NewMonitor(cfg.Health.Threshold, log)

	// Ledger access
	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.Timeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithRateLimit(cfg.Solana.RateLimit, 1),
	)
	var dial ledger.Dialer
	if cfg.Solana.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.MaxReconnectAttempts = cfg.Solana.MaxReconnectAttempts
		dial = func(ctx context.Context) (solana.WSClient, error) {
			ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, &wsCfg, log)
			if err != nil {
				return nil, err
			}
			return ws, nil
		}
	} else {
		log.Warn("no websocket endpoint configured, ingestion will fall back to polling")
	}
	provider := ledger.New(rpc, dial, ledger.Config{ProgramID: cfg.Solana.ProgramID}, log)
	if slot, err := provider.HeadSlot(ctx); err != nil {
		log.Warn("solana rpc unreachable at startup", zap.Error(err))
	} else {
		log.Info("solana rpc reachable", zap.Int64("slot", slot))
	}

	// Market data
	httpCfg := httpclient.DefaultConfig()
	httpCfg.RateLimit = cfg.DexScreener.RateLimit
	dex := market.NewDexScreener(httpclient.New(httpCfg, log), market.Config{
		BaseURL:     cfg.DexScreener.BaseURL,
		SearchTerms: cfg.DexScreener.SearchTerms,
	}, log)
	marketData := market.NewCurveAware(dex, provider, log)

	// Credible wallets
	wallets := credibility.NewStore(stores.wallets, log)
	if err := wallets.Load(ctx); err != nil {
		return nil, fmt.Errorf("load credible wallets: %w", err)
	}

	narratives := cfg.Scoring.Narratives
	if len(narratives) == 0 {
		narratives = scoring.DefaultNarratives
	}
	matcher, err := scoring.NewNarrativeMatcher(narratives)
	if err != nil {
		return nil, fmt.Errorf("narratives: %w", err)
	}

	s.notifier, err = newNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	var notifier analyzer.Notifier
	if s.notifier != nil {
		notifier = s.notifier
	}

	// Analysis
	s.recorder = analyzer.NewRecorder(analyzer.RecorderOptions{Log: stores.decisions, Logger: log})
	an := analyzer.New(analyzer.Options{
		Signers: provider,
		Wallets: wallets,
		AntiRug: antirug.New(provider, antirug.Config{
			Threshold:   cfg.AntiRug.Threshold,
			SlotWindow:  cfg.AntiRug.SlotWindow,
			Lookback:    cfg.AntiRug.Lookback,
			Concurrency: cfg.AntiRug.Concurrency,
		}, log),
		Signals:    stores.signals,
		Narratives: matcher,
		Market:     marketData,
		Health:     s.monitor,
		Notifier:   notifier,
		Observer:   s.recorder,
		Config: analyzer.Config{
			MaxAge:      cfg.Analyzer.MaxAge,
			SignerLimit: cfg.Analyzer.SignerLimit,
			MinMatches:  cfg.Analyzer.MinMatches,
			Scorer: scoring.Scorer{
				BaseOffset:     cfg.Scoring.BaseOffset,
				PerMatch:       cfg.Scoring.PerMatch,
				BaseCeiling:    cfg.Scoring.BaseCeiling,
				NarrativeBonus: cfg.Scoring.NarrativeBonus,
			},
		},
		Logger: log,
	})
	s.pool = analyzer.NewPool(analyzer.PoolOptions{
		Analyzer:   an,
		Workers:    cfg.Analyzer.Workers,
		QueueSize:  cfg.Analyzer.QueueSize,
		Timeout:    cfg.Analyzer.Timeout,
		OnDecision: s.onDecision,
		Logger:     log,
	})

	// Ingestion
	deduper, err := newDeduper(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s.ingestor = ingestion.NewIngestor(ingestion.IngestorOptions{
		Subscription: ingestion.NewSubscriptionSource(provider),
		Polling: ingestion.NewPollingSource(ingestion.PollingSourceOptions{
			Poller:   provider,
			Cursors:  stores.cursors,
			Interval: cfg.Ingestion.PollInterval,
			Logger:   log,
		}),
		Deduper:                deduper,
		Sink:                   s.pool,
		Health:                 s.monitor,
		InitialBackoff:         cfg.Ingestion.InitialBackoff,
		MaxBackoff:             cfg.Ingestion.MaxBackoff,
		MaxConsecutiveFailures: cfg.Ingestion.MaxConsecutiveFailures,
		RecoverAfter:           cfg.Ingestion.RecoverAfter,
		Logger:                 log,
	})

	// Scheduled jobs
	s.scheduler = scheduler.New(log)
	track := tracker.New(stores.assets, marketData, s.monitor, tracker.Config{
		Interval:      cfg.Tracker.Interval,
		GraduateAbove: cfg.Tracker.GraduateAbove,
		RugBelow:      cfg.Tracker.RugBelow,
		MaxTrackAge:   cfg.Tracker.MaxTrackAge,
		Concurrency:   cfg.Tracker.Concurrency,
	}, log)
	s.scheduler.RegisterJob("status_tracker", track.Interval(), 0, func(ctx context.Context) error {
		_, err := track.RunOnce(ctx)
		return err
	})

	engine := newDiscoveryEngine(cfg, provider, dex, stores, wallets, log)
	if cfg.Discovery.Enabled {
		s.scheduler.RegisterJob("wallet_discovery", cfg.Discovery.Interval, cfg.Discovery.Interval/2, engine.RunJob)
	}

	// HTTP API
	svc := service.New(service.Options{
		Signals:   stores.signals,
		Wallets:   wallets,
		Decisions: stores.decisions,
		Discovery: engine,
		Health:    s.monitor,
		Backlog:   s.pool,
		Jobs:      s.scheduler,
		Context:   ctx,
		Logger:    log,
	})
	s.httpSrv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewHandler(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func newDiscoveryEngine(cfg *config.Config, signers walletdiscovery.SignerSource, gainers walletdiscovery.GainerSource,
	stores *allStores, wallets *credibility.Store, log *zap.Logger) *walletdiscovery.Engine {
	d := cfg.Discovery
	return walletdiscovery.NewEngine(walletdiscovery.Options{
		Finder: walletdiscovery.NewFinder(gainers, stores.winners, walletdiscovery.FinderConfig{
			MinGain:         d.MinGain,
			StartCapCeiling: d.StartCapCeiling,
			PeakCapFloor:    d.PeakCapFloor,
			MaxTimeToPeak:   d.MaxTimeToPeak,
			Lookback:        d.Lookback,
		}, log),
		Extractor: walletdiscovery.NewExtractor(signers, stores.winners, stores.buyers, walletdiscovery.ExtractorConfig{
			TxLimit:     d.TxLimit,
			MaxBuyers:   d.MaxBuyers,
			Concurrency: d.Concurrency,
		}, log),
		CrossRef: walletdiscovery.NewCrossReferencer(stores.buyers, wallets, walletdiscovery.CrossRefConfig{
			MinWinners: d.MinWinners,
			Window:     d.Lookback,
		}, log),
		Winners: stores.winners,
		Buyers:  stores.buyers,
		Logger:  log,
	})
}

func newNotifier(cfg *config.Config, log *zap.Logger) (*notify.Async, error) {
	var channels notify.Multi
	if cfg.Kafka.Brokers != "" {
		p, err := notify.NewKafkaPublisher(notify.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		if err != nil {
			return nil, err
		}
		channels = append(channels, p)
	}
	if cfg.Telegram.Token != "" {
		t, err := notify.NewTelegramNotifier(httpclient.New(httpclient.Config{RateLimit: 1, MaxRetries: 0}, log),
			notify.TelegramConfig{BaseURL: cfg.Telegram.BaseURL, Token: cfg.Telegram.Token, ChatID: cfg.Telegram.ChatID}, log)
		if err != nil {
			return nil, err
		}
		channels = append(channels, t)
	}
	if len(channels) == 0 {
		return nil, nil
	}
	return notify.NewAsync(channels, 10*time.Second, log), nil
}

func newDeduper(ctx context.Context, cfg *config.Config, log *zap.Logger) (ingestion.Deduper, error) {
	if cfg.Redis.Address == "" {
		return ingestion.NewMemoryDeduper(cfg.Redis.DedupTTL), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("using shared redis deduper", zap.String("address", cfg.Redis.Address))
	return ingestion.NewRedisDeduper(rdb, "signal:seen:", cfg.Redis.DedupTTL), nil
}

// onDecision re-opens an asset for delivery after a failed analysis.
func (s *Server) onDecision(ev domain.AssetCreated, d domain.Decision) {
	if d.Outcome != domain.OutcomeFailed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ingestor.Forget(ctx, ev.Address); err != nil {
		s.logger.Warn("forget failed asset", zap.String("address", ev.Address), zap.Error(err))
	}
}

// Run starts all components and blocks until ctx is cancelled or a
// component fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting signal engine",
		zap.Bool("use_memory", s.cfg.UseMemory),
		zap.Int("workers", s.cfg.Analyzer.Workers),
		zap.String("http_addr", s.cfg.HTTP.Addr),
	)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 2)

	go s.recorder.Run(runCtx)
	poolDone := make(chan struct{})
	go func() {
		s.pool.Run(runCtx)
		close(poolDone)
	}()

	go func() {
		err := s.ingestor.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()

	s.scheduler.Start(runCtx)

	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	stop()

	s.shutdown(poolDone)
	return err
}

func (s *Server) shutdown(poolDone <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	s.scheduler.Stop(ctx)

	select {
	case <-poolDone:
	case <-ctx.Done():
		s.logger.Warn("analysis workers did not stop in time")
	}
	if s.notifier != nil {
		if err := s.notifier.Wait(ctx); err != nil {
			s.logger.Warn("pending notifications abandoned", zap.Error(err))
		}
	}
	select {
	case <-s.recorder.Done():
	case <-ctx.Done():
		s.logger.Warn("decision log flush timed out")
	}
}
