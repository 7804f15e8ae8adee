// Command discover runs one wallet discovery pass and prints its summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"solana-signal-engine/internal/config"
	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/httpclient"
	"solana-signal-engine/internal/ledger"
	"solana-signal-engine/internal/logger"
	"solana-signal-engine/internal/market"
	"solana-signal-engine/internal/solana"
	"solana-signal-engine/internal/storage"
	"solana-signal-engine/internal/storage/memory"
	"solana-signal-engine/internal/storage/migrations"
	pgstore "solana-signal-engine/internal/storage/postgres"
	"solana-signal-engine/internal/walletdiscovery"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (results are discarded on exit)")
	statusOnly := flag.Bool("status", false, "Print stored discovery counts without running")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.UseMemory = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("discover", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	_ = logger.SetLogLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		walletStore storage.WalletStore
		winners     storage.WinnerStore
		buyers      storage.EarlyBuyerStore
	)
	if cfg.UseMemory {
		ws := memory.NewWinnerStore()
		walletStore, winners, buyers = memory.NewWalletStore(), ws, memory.NewEarlyBuyerStore(ws)
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(cfg.Postgres.MaxConns))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.Postgres.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				fmt.Fprintf(os.Stderr, "Error running migrations: %v\n", err)
				os.Exit(1)
			}
		}
		walletStore, winners, buyers = pgstore.NewWalletStore(pool), pgstore.NewWinnerStore(pool), pgstore.NewEarlyBuyerStore(pool)
	}

	wallets := credibility.NewStore(walletStore, log)
	if err := wallets.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading wallets: %v\n", err)
		os.Exit(1)
	}

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.Timeout),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithRateLimit(cfg.Solana.RateLimit, 1),
	)
	provider := ledger.New(rpc, nil, ledger.Config{ProgramID: cfg.Solana.ProgramID}, log)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.RateLimit = cfg.DexScreener.RateLimit
	dex := market.NewDexScreener(httpclient.New(httpCfg, log), market.Config{
		BaseURL:     cfg.DexScreener.BaseURL,
		SearchTerms: cfg.DexScreener.SearchTerms,
	}, log)

	d := cfg.Discovery
	engine := walletdiscovery.NewEngine(walletdiscovery.Options{
		Finder: walletdiscovery.NewFinder(dex, winners, walletdiscovery.FinderConfig{
			MinGain:         d.MinGain,
			StartCapCeiling: d.StartCapCeiling,
			PeakCapFloor:    d.PeakCapFloor,
			MaxTimeToPeak:   d.MaxTimeToPeak,
			Lookback:        d.Lookback,
		}, log),
		Extractor: walletdiscovery.NewExtractor(provider, winners, buyers, walletdiscovery.ExtractorConfig{
			TxLimit:     d.TxLimit,
			MaxBuyers:   d.MaxBuyers,
			Concurrency: d.Concurrency,
		}, log),
		CrossRef: walletdiscovery.NewCrossReferencer(buyers, wallets, walletdiscovery.CrossRefConfig{
			MinWinners: d.MinWinners,
			Window:     d.Lookback,
		}, log),
		Winners: winners,
		Buyers:  buyers,
		Logger:  log,
	})

	if !*statusOnly {
		summary, err := engine.Run(ctx)
		if summary != nil {
			printJSON(summary)
		}
		if err != nil {
			log.Error("discovery run failed", zap.Error(err))
			os.Exit(1)
		}
	}

	st, err := engine.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading status: %v\n", err)
		os.Exit(1)
	}
	st.LastRun = nil
	printJSON(st)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
