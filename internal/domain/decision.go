package domain

import "fmt"

// Outcome is the terminal state of an asset's analysis.
type Outcome string

const (
	OutcomeDiscovered Outcome = "discovered"
	OutcomeSignaled   Outcome = "signaled"
	OutcomeDiscarded  Outcome = "discarded"
	OutcomeFailed     Outcome = "analysis_failed"
)

// Reason explains a discard.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonStale              Reason = "stale"
	ReasonInsufficientSignal Reason = "insufficient-signal"
	ReasonBundleSuspected    Reason = "bundle-suspected"
	ReasonDuplicate          Reason = "duplicate"
)

// Gate names a step of the analysis pipeline.
type Gate string

const (
	GateFreshness Gate = "freshness"
	GateDuplicate Gate = "duplicate"
	GateSigners   Gate = "signers"
	GateCrossRef  Gate = "cross_reference"
	GateAntiRug   Gate = "anti_rug"
	GateNarrative Gate = "narrative"
	GateScore     Gate = "score"
	GateEmit      Gate = "emit"
)

// GateEvent is emitted for every gate evaluated, pass or fail.
type GateEvent struct {
	Address string
	Gate    Gate
	Passed  bool
	Detail  string
	At      int64 // ms
}

// Decision is the pipeline state of one candidate asset.
// Obtain it with Discovered and move it with Discard, Signal or Fail.
type Decision struct {
	Address    string
	Outcome    Outcome
	Reason     Reason
	MatchCount int
	Score      int
	Err        string
	DecidedAt  int64 // ms
}

// Discovered returns the initial state for an asset.
func Discovered(address string) Decision {
	return Decision{Address: address, Outcome: OutcomeDiscovered}
}

// IsTerminal reports whether the decision has left the discovered state.
func (d Decision) IsTerminal() bool {
	return d.Outcome != OutcomeDiscovered
}

// Discard moves a discovered asset to discarded.
func (d Decision) Discard(reason Reason, at int64) Decision {
	d.mustBeOpen()
	d.Outcome = OutcomeDiscarded
	d.Reason = reason
	d.DecidedAt = at
	return d
}

// Signal moves a discovered asset to signaled.
func (d Decision) Signal(matchCount, score int, at int64) Decision {
	d.mustBeOpen()
	d.Outcome = OutcomeSignaled
	d.MatchCount = matchCount
	d.Score = score
	d.DecidedAt = at
	return d
}

// Fail moves a discovered asset to analysis_failed.
func (d Decision) Fail(err error, at int64) Decision {
	d.mustBeOpen()
	d.Outcome = OutcomeFailed
	if err != nil {
		d.Err = err.Error()
	}
	d.DecidedAt = at
	return d
}

func (d Decision) mustBeOpen() {
	if d.IsTerminal() {
		panic(fmt.Sprintf("decision for %s already %s", d.Address, d.Outcome))
	}
}
