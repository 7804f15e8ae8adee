package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// Ingestion modes.
const (
	ModeSubscription = "subscription"
	ModePolling      = "polling"
)

// Source produces asset creation events. Run blocks, sending events to out,
// until ctx is cancelled or the source fails. It always returns a non-nil error.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- domain.AssetCreated) error
}

// Subscriber streams creation events over a push subscription.
type Subscriber interface {
	SubscribeAssetCreation(ctx context.Context, out chan<- domain.AssetCreated) error
}

// Poller returns creation events newer than a cursor.
type Poller interface {
	PollAssetCreation(ctx context.Context, cursor string) ([]domain.AssetCreated, string, error)
}

// SubscriptionSource is the push mode Source.
type SubscriptionSource struct {
	sub Subscriber
}

// NewSubscriptionSource creates a SubscriptionSource.
func NewSubscriptionSource(sub Subscriber) *SubscriptionSource {
	return &SubscriptionSource{sub: sub}
}

// Name implements Source.
func (s *SubscriptionSource) Name() string { return ModeSubscription }

// Run implements Source.
func (s *SubscriptionSource) Run(ctx context.Context, out chan<- domain.AssetCreated) error {
	err := s.sub.SubscribeAssetCreation(ctx, out)
	if err == nil {
		err = ErrStreamClosed
	}
	return err
}

// PollingSourceOptions contains configuration for creating a PollingSource.
type PollingSourceOptions struct {
	Poller     Poller
	Cursors    storage.CursorStore // optional; cursor survives restarts when set
	CursorName string              // Default: "pumpfun_create"
	Interval   time.Duration       // Default: 5s
	Logger     *zap.Logger
}

// PollingSource is the pull mode Source. It keeps its cursor between runs so
// a failover back to polling resumes where it stopped.
type PollingSource struct {
	poller     Poller
	cursors    storage.CursorStore
	cursorName string
	interval   time.Duration
	logger     *zap.Logger

	cursor string
	loaded bool
}

// NewPollingSource creates a PollingSource.
func NewPollingSource(opts PollingSourceOptions) *PollingSource {
	if opts.CursorName == "" {
		opts.CursorName = "pumpfun_create"
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PollingSource{
		poller:     opts.Poller,
		cursors:    opts.Cursors,
		cursorName: opts.CursorName,
		interval:   opts.Interval,
		logger:     opts.Logger.Named("poller"),
	}
}

// Name implements Source.
func (s *PollingSource) Name() string { return ModePolling }

// Run implements Source. A poll error ends the run.
func (s *PollingSource) Run(ctx context.Context, out chan<- domain.AssetCreated) error {
	if err := s.loadCursor(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.pollOnce(ctx, out); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *PollingSource) pollOnce(ctx context.Context, out chan<- domain.AssetCreated) error {
	events, next, err := s.poller.PollAssetCreation(ctx, s.cursor)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	if err := ValidateOrdering(events); err != nil {
		s.logger.Debug("poll page out of ledger order, sorting", zap.Int("events", len(events)))
		SortAssetCreated(events)
	}
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			// Cursor is not advanced; the next run re-reads this page.
			return ctx.Err()
		}
	}

	if next == "" || next == s.cursor {
		return nil
	}
	s.cursor = next
	if s.cursors != nil {
		if err := s.cursors.SetCursor(ctx, s.cursorName, next); err != nil {
			s.logger.Warn("persist cursor failed", zap.Error(err))
		}
	}
	s.logger.Debug("polled", zap.Int("events", len(events)), zap.String("cursor", next))
	return nil
}

func (s *PollingSource) loadCursor(ctx context.Context) error {
	if s.loaded || s.cursors == nil {
		return nil
	}
	cursor, err := s.cursors.GetCursor(ctx, s.cursorName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load cursor: %w", err)
	default:
		s.cursor = cursor
	}
	s.loaded = true
	return nil
}

// Cursor returns the last cursor reached.
func (s *PollingSource) Cursor() string {
	return s.cursor
}
