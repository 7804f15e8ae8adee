// Package ingestion turns the ledger's asset creation stream into a
// deduplicated sequence of candidates for the analyzer.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
)

var (
	// ErrStoreUnavailable is returned by Run when the persistent store is degraded.
	ErrStoreUnavailable = errors.New("ingestion halted: store unavailable")

	// ErrStreamClosed is reported when a subscription ends without an error.
	ErrStreamClosed = errors.New("subscription stream closed")
)

// Sink receives candidates. Submit must not block; it reports false when
// the candidate was dropped.
type Sink interface {
	Submit(ev domain.AssetCreated) bool
}

// HealthChecker reports whether the persistent store is degraded.
type HealthChecker interface {
	Degraded() bool
}

// IngestorOptions contains configuration for creating an Ingestor.
type IngestorOptions struct {
	Subscription Source // required
	Polling      Source // optional; without it the ingestor only reconnects
	Deduper      Deduper
	Sink         Sink
	Health       HealthChecker

	InitialBackoff         time.Duration // Default: 1s
	MaxBackoff             time.Duration // Default: 30s
	MaxConsecutiveFailures int           // Default: 5 - subscription failures before polling
	RecoverAfter           time.Duration // Default: 5m - polling time before probing the subscription
	BufferSize             int           // Default: 256
	Logger                 *zap.Logger
}

// Ingestor runs the subscription with reconnect backoff and fails over to
// polling after repeated failures. Delivery is at-least-once; addresses are
// deduplicated before reaching the sink.
type Ingestor struct {
	subscription Source
	polling      Source
	dedup        Deduper
	sink         Sink
	health       HealthChecker

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxFailures    int
	recoverAfter   time.Duration
	bufferSize     int
	logger         *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewIngestor creates a new Ingestor.
func NewIngestor(opts IngestorOptions) *Ingestor {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 5
	}
	if opts.RecoverAfter <= 0 {
		opts.RecoverAfter = 5 * time.Minute
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Deduper == nil {
		opts.Deduper = NewMemoryDeduper(DefaultDedupTTL)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ingestor{
		subscription:   opts.Subscription,
		polling:        opts.Polling,
		dedup:          opts.Deduper,
		sink:           opts.Sink,
		health:         opts.Health,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		maxFailures:    opts.MaxConsecutiveFailures,
		recoverAfter:   opts.RecoverAfter,
		bufferSize:     opts.BufferSize,
		logger:         opts.Logger.Named("ingestor"),
		sleep:          sleepCtx,
	}
}

// Run ingests until ctx is cancelled (returning ctx.Err()) or the store
// becomes unavailable (returning ErrStoreUnavailable).
func (i *Ingestor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = i.initialBackoff
	bo.MaxInterval = i.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	mode := ModeSubscription
	failures := 0
	probing := false

	i.logger.Info("ingestor started", zap.String("mode", mode))
	for {
		if i.degraded() {
			i.logger.Error("store degraded, halting ingestion")
			return ErrStoreUnavailable
		}

		src := i.subscription
		if mode == ModePolling {
			src = i.polling
		}
		observability.SetIngestMode(mode, ModeSubscription, ModePolling)

		delivered, err := i.runSource(ctx, src, mode)
		if ctx.Err() != nil {
			i.logger.Info("ingestor stopping")
			return ctx.Err()
		}
		if errors.Is(err, ErrStoreUnavailable) {
			i.logger.Error("store degraded, halting ingestion")
			return err
		}

		switch mode {
		case ModeSubscription:
			if delivered > 0 {
				failures = 0
				bo.Reset()
			}
			failures++
			i.logger.Warn("subscription ended",
				zap.Error(err),
				zap.Int("consecutive_failures", failures),
				zap.Int("delivered", delivered),
			)
			if i.polling != nil && (failures >= i.maxFailures || (probing && delivered == 0)) {
				i.logger.Warn("failing over to polling", zap.Bool("probe_failed", probing))
				mode, failures, probing = ModePolling, 0, false
				bo.Reset()
				continue
			}
			probing = false

		case ModePolling:
			if errors.Is(err, context.DeadlineExceeded) {
				i.logger.Info("probing subscription")
				mode, failures, probing = ModeSubscription, 0, true
				bo.Reset()
				continue
			}
			i.logger.Warn("polling failed", zap.Error(err))
		}

		if err := i.sleep(ctx, bo.NextBackOff()); err != nil {
			return err
		}
	}
}

// runSource runs src until it ends and forwards its events. In polling mode
// the run is bounded by RecoverAfter, ending with context.DeadlineExceeded.
func (i *Ingestor) runSource(ctx context.Context, src Source, mode string) (int, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if mode == ModePolling {
		runCtx, cancel = context.WithTimeout(ctx, i.recoverAfter)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	events := make(chan domain.AssetCreated, i.bufferSize)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(runCtx, events)
	}()

	delivered := 0
	for {
		select {
		case ev := <-events:
			if i.degraded() {
				cancel()
				<-done
				return delivered, ErrStoreUnavailable
			}
			if i.forward(ctx, ev, mode) {
				delivered++
			}
		case err := <-done:
			// Drain what the source sent before it stopped.
			for {
				select {
				case ev := <-events:
					if i.forward(ctx, ev, mode) {
						delivered++
					}
				default:
					return delivered, err
				}
			}
		}
	}
}

// forward deduplicates ev and hands it to the sink.
func (i *Ingestor) forward(ctx context.Context, ev domain.AssetCreated, mode string) bool {
	if ev.Address == "" {
		return false
	}
	fresh, err := i.dedup.MarkSeen(ctx, ev.Address)
	if err != nil {
		// Redelivery is tolerated downstream; losing the event is not.
		i.logger.Warn("dedup lookup failed", zap.String("address", ev.Address), zap.Error(err))
		fresh = true
	}
	if !fresh {
		i.logger.Debug("duplicate asset", zap.String("address", ev.Address), zap.String("mode", mode))
		return false
	}

	observability.RecordAssetIngested(mode, ev.CreatedAt/1000)
	if !i.sink.Submit(ev) {
		observability.RecordAssetDropped()
		if err := i.dedup.Forget(ctx, ev.Address); err != nil {
			i.logger.Warn("forget dropped asset failed", zap.String("address", ev.Address), zap.Error(err))
		}
		return false
	}
	return true
}

// Forget re-opens address for delivery, used when its analysis failed.
func (i *Ingestor) Forget(ctx context.Context, address string) error {
	return i.dedup.Forget(ctx, address)
}

func (i *Ingestor) degraded() bool {
	return i.health != nil && i.health.Degraded()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
