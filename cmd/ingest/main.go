// Command ingest streams newly created pump.fun assets to stdout as JSON
// lines, using the same failover ingestor as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/ingestion"
	"solana-signal-engine/internal/ledger"
	"solana-signal-engine/internal/logger"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/solana"
	"solana-signal-engine/internal/storage/memory"
)

// stdoutSink prints every candidate as one JSON line.
type stdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *stdoutSink) Submit(ev domain.AssetCreated) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(map[string]any{
		"address":    ev.Address,
		"creator":    ev.Creator,
		"symbol":     ev.Symbol,
		"name":       ev.Name,
		"created_at": time.UnixMilli(ev.CreatedAt).UTC(),
		"slot":       ev.Slot,
		"signature":  ev.Signature,
	}) == nil
}

func main() {
	mode := flag.String("mode", "live", "Ingestion mode: live (websocket with polling fallback) or poll")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SIGNAL_SOLANA_RPC_URL"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SIGNAL_SOLANA_WS_URL"), "Solana WebSocket endpoint")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "Polling interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	log, err := logger.NewLogger("ingest", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}

	if *rpcEndpoint == "" {
		log.Fatal("--rpc-endpoint is required")
	}
	if *mode == "live" && *wsEndpoint == "" {
		log.Fatal("--ws-endpoint is required in live mode")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			log.Info("starting metrics server", zap.String("addr", *metricsAddr))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server error", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	var dial ledger.Dialer
	if *wsEndpoint != "" {
		ws := *wsEndpoint
		dial = func(ctx context.Context) (solana.WSClient, error) {
			c, err := solana.NewWSClient(ctx, ws, nil, log)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	provider := ledger.New(rpc, dial, ledger.DefaultConfig(), log)
	if slot, err := provider.HeadSlot(ctx); err != nil {
		log.Warn("solana rpc unreachable at startup", zap.Error(err))
	} else {
		log.Info("solana rpc reachable", zap.Int64("slot", slot))
	}

	polling := ingestion.NewPollingSource(ingestion.PollingSourceOptions{
		Poller:   provider,
		Cursors:  memory.NewCursorStore(),
		Interval: *pollInterval,
		Logger:   log,
	})
	var src ingestion.Source = ingestion.NewSubscriptionSource(provider)
	if *mode == "poll" {
		src = polling
	}

	ing := ingestion.NewIngestor(ingestion.IngestorOptions{
		Subscription: src,
		Polling:      polling,
		Sink:         &stdoutSink{enc: json.NewEncoder(os.Stdout)},
		Logger:       log,
	})
	if err := ing.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("ingestion stopped", zap.Error(err))
	}
}
