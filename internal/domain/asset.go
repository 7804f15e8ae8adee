package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// AssetStatus is the lifecycle status of a tracked asset.
type AssetStatus string

const (
	AssetBonding   AssetStatus = "bonding"
	AssetGraduated AssetStatus = "graduated"
	AssetRugged    AssetStatus = "rugged"
)

// String returns the string representation of AssetStatus.
func (s AssetStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s AssetStatus) IsValid() bool {
	switch s {
	case AssetBonding, AssetGraduated, AssetRugged:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s AssetStatus) IsTerminal() bool {
	return s == AssetGraduated || s == AssetRugged
}

// TransitionTo returns next if the move from s is allowed.
// bonding -> graduated | rugged; terminal statuses never change.
// A transition to the current non-terminal status is a no-op.
func (s AssetStatus) TransitionTo(next AssetStatus) (AssetStatus, error) {
	if !next.IsValid() {
		return s, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if s == next && !s.IsTerminal() {
		return s, nil
	}
	if s == AssetBonding && next.IsTerminal() {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}

// Asset is a newly created tradable token that produced a signal.
// Corresponds to assets table in PostgreSQL.
type Asset struct {
	Address         string      // PRIMARY KEY, token mint address
	Symbol          string      // ticker symbol
	Name            string      // display name
	Creator         string      // creator (dev) wallet address
	CreatedAt       int64       // on-chain creation time (ms)
	MarketCapAtScan float64     // USD market cap, refreshed by the status tracker
	Status          AssetStatus // bonding | graduated | rugged
	UpdatedAt       int64       // last status/market cap update (ms)
}
