package api

import (
	"time"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SignalResponse is one entry of the signal feed.
type SignalResponse struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Symbol     string    `json:"symbol,omitempty"`
	Name       string    `json:"name,omitempty"`
	Creator    string    `json:"creator"`
	MatchCount int       `json:"match_count"`
	Score      int       `json:"score"`
	MarketCap  float64   `json:"market_cap_usd"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	SignaledAt time.Time `json:"signaled_at"`
}

func newSignalResponse(v *domain.SignalView) SignalResponse {
	return SignalResponse{
		ID:         v.Signal.ID,
		Address:    v.Signal.AssetAddress,
		Symbol:     v.Asset.Symbol,
		Name:       v.Asset.Name,
		Creator:    v.Asset.Creator,
		MatchCount: v.Signal.MatchCount,
		Score:      v.Signal.Score,
		MarketCap:  v.Asset.MarketCapAtScan,
		Status:     v.Asset.Status.String(),
		CreatedAt:  millis(v.Asset.CreatedAt),
		SignaledAt: millis(v.Signal.CreatedAt),
	}
}

// WalletResponse is a credible wallet.
type WalletResponse struct {
	Address        string    `json:"address"`
	Label          string    `json:"label"`
	WinRate        *float64  `json:"win_rate,omitempty"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
	FirstTrackedAt time.Time `json:"first_tracked_at"`
}

func newWalletResponse(w domain.CredibleWallet) WalletResponse {
	return WalletResponse{
		Address:        w.Address,
		Label:          w.Label,
		WinRate:        w.WinRate,
		Status:         w.Status.String(),
		Source:         string(w.Source),
		FirstTrackedAt: millis(w.FirstTrackedAt),
	}
}

// UpsertWalletRequest is the body of POST /api/wallets.
type UpsertWalletRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

// SetStatusRequest is the body of PATCH /api/wallets/{address}.
type SetStatusRequest struct {
	Status string `json:"status"` // active | paused
}

// DecisionResponse is one audited analyzer decision.
type DecisionResponse struct {
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	MatchCount int       `json:"match_count"`
	Score      int       `json:"score"`
	Error      string    `json:"error,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

func newDecisionResponse(r *storage.DecisionRecord) DecisionResponse {
	return DecisionResponse{
		Outcome:    string(r.Outcome),
		Reason:     string(r.Reason),
		MatchCount: r.MatchCount,
		Score:      r.Score,
		Error:      r.Err,
		DecidedAt:  millis(r.DecidedAt),
	}
}
