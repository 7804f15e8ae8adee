// Package notify fans accepted signals out to external channels. Delivery
// is best effort: a failed notification never affects the stored signal.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
)

// Dispatcher delivers a signal to one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, v domain.SignalView) error
}

// SignalEvent is the published form of a signal.
type SignalEvent struct {
	SignalID       string  `json:"signal_id"`
	AssetAddress   string  `json:"asset_address"`
	Symbol         string  `json:"symbol,omitempty"`
	Name           string  `json:"name,omitempty"`
	Creator        string  `json:"creator"`
	MatchCount     int     `json:"match_count"`
	Score          int     `json:"score"`
	MarketCap      float64 `json:"market_cap_usd"`
	AssetCreatedAt int64   `json:"asset_created_at"`
	SignaledAt     int64   `json:"signaled_at"`
}

// NewSignalEvent builds the event for v.
func NewSignalEvent(v domain.SignalView) SignalEvent {
	return SignalEvent{
		SignalID:       v.Signal.ID,
		AssetAddress:   v.Signal.AssetAddress,
		Symbol:         v.Asset.Symbol,
		Name:           v.Asset.Name,
		Creator:        v.Asset.Creator,
		MatchCount:     v.Signal.MatchCount,
		Score:          v.Signal.Score,
		MarketCap:      v.Asset.MarketCapAtScan,
		AssetCreatedAt: v.Asset.CreatedAt,
		SignaledAt:     v.Signal.CreatedAt,
	}
}

// Multi dispatches to every channel and joins their errors.
type Multi []Dispatcher

// Dispatch implements Dispatcher.
func (m Multi) Dispatch(ctx context.Context, v domain.SignalView) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async dispatches in the background with a per-signal timeout. Errors are
// logged and never returned.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps next. A timeout <= 0 defaults to 10s.
func NewAsync(next Dispatcher, timeout time.Duration, logger *zap.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Async{next: next, timeout: timeout, logger: logger.Named("notify")}
}

// Dispatch implements Dispatcher. It returns immediately.
func (a *Async) Dispatch(ctx context.Context, v domain.SignalView) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if err := a.next.Dispatch(ctx, v); err != nil {
			a.logger.Warn("signal notification failed",
				zap.String("address", v.Signal.AssetAddress),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until pending notifications finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
