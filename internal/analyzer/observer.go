package analyzer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/idhash"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/storage"
)

// Observer receives every gate evaluation and terminal decision.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	OnGate(ev domain.GateEvent)
	OnDecision(d domain.Decision, elapsed time.Duration)
}

// NopObserver discards everything.
type NopObserver struct{}

// OnGate implements Observer.
func (NopObserver) OnGate(domain.GateEvent) {}

// OnDecision implements Observer.
func (NopObserver) OnDecision(domain.Decision, time.Duration) {}

// RecorderOptions contains configuration for creating a Recorder.
type RecorderOptions struct {
	Log           storage.DecisionLog // optional audit sink
	BatchSize     int                 // Default: 100
	FlushInterval time.Duration       // Default: 2s
	BufferSize    int                 // Default: 1024
	Logger        *zap.Logger
}

// Recorder is the production Observer: it logs gates at Debug, updates
// metrics and batches decisions into the audit log.
type Recorder struct {
	log           storage.DecisionLog
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	records chan *storage.DecisionRecord
	done    chan struct{}
}

// NewRecorder creates a Recorder. Call Run to start flushing.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Recorder{
		log:           opts.Log,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        opts.Logger.Named("decisions"),
		records:       make(chan *storage.DecisionRecord, opts.BufferSize),
		done:          make(chan struct{}),
	}
}

// OnGate implements Observer.
func (r *Recorder) OnGate(ev domain.GateEvent) {
	observability.RecordGate(string(ev.Gate), ev.Passed)
	r.logger.Debug("gate",
		zap.String("address", ev.Address),
		zap.String("gate", string(ev.Gate)),
		zap.Bool("passed", ev.Passed),
		zap.String("detail", ev.Detail),
	)
}

// OnDecision implements Observer.
func (r *Recorder) OnDecision(d domain.Decision, elapsed time.Duration) {
	observability.RecordDecision(string(d.Outcome), string(d.Reason), elapsed.Seconds(), d.DecidedAt/1000)
	if d.Outcome == domain.OutcomeSignaled {
		observability.RecordSignalScore(d.Score)
	}

	fields := []zap.Field{
		zap.String("address", d.Address),
		zap.String("outcome", string(d.Outcome)),
		zap.String("reason", string(d.Reason)),
		zap.Int("match_count", d.MatchCount),
		zap.Duration("elapsed", elapsed),
	}
	if d.Outcome == domain.OutcomeFailed {
		r.logger.Warn("analysis failed", append(fields, zap.String("error", d.Err))...)
	} else {
		r.logger.Debug("decision", fields...)
	}

	if r.log == nil {
		return
	}
	rec := &storage.DecisionRecord{
		ID:         idhash.ComputeDecisionID(d.Address, string(d.Outcome), string(d.Reason), d.DecidedAt),
		Address:    d.Address,
		Outcome:    d.Outcome,
		Reason:     d.Reason,
		MatchCount: d.MatchCount,
		Score:      d.Score,
		Err:        d.Err,
		DecidedAt:  d.DecidedAt,
	}
	select {
	case r.records <- rec:
	default:
		observability.RecordDecisionsLost(1)
		r.logger.Warn("decision buffer full, record dropped", zap.String("address", d.Address))
	}
}

// Run flushes batched records until ctx is cancelled, then flushes what
// is left with a short grace period.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	if r.log == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*storage.DecisionRecord, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.log.Record(ctx, batch); err != nil {
			observability.RecordDecisionsLost(len(batch))
			r.logger.Warn("decision log write failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-r.records:
			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-r.records:
					batch = append(batch, rec)
				default:
					flush(final)
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}
