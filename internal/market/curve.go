package market

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
)

// CurveChecker reports whether an asset's bonding curve has migrated.
type CurveChecker interface {
	BondingCurveComplete(ctx context.Context, mint string) (bool, error)
}

// CurveAware marks assets as listed on an AMM once their on-chain bonding
// curve completes, even before an indexer reports the new pair.
type CurveAware struct {
	Provider
	curve  CurveChecker
	logger *zap.Logger
}

// NewCurveAware wraps p with an on-chain migration check.
func NewCurveAware(p Provider, curve CurveChecker, logger *zap.Logger) *CurveAware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurveAware{Provider: p, curve: curve, logger: logger.Named("curve")}
}

// GetCurrentMarketData returns the wrapped provider's data with ListedOnAMM
// also set from the bonding curve state. Curve lookup failures are ignored.
func (c *CurveAware) GetCurrentMarketData(ctx context.Context, address string) (domain.MarketData, error) {
	md, err := c.Provider.GetCurrentMarketData(ctx, address)
	if err != nil || md.ListedOnAMM {
		return md, err
	}
	complete, cerr := c.curve.BondingCurveComplete(ctx, address)
	if cerr != nil {
		c.logger.Debug("bonding curve check failed", zap.String("address", address), zap.Error(cerr))
		return md, nil
	}
	md.ListedOnAMM = complete
	return md, nil
}

// GetHistoricalGainers delegates to the wrapped provider.
func (c *CurveAware) GetHistoricalGainers(ctx context.Context, window time.Duration, minGain float64) ([]domain.Gainer, error) {
	return c.Provider.GetHistoricalGainers(ctx, window, minGain)
}
