package analyzer

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
)

// Runner analyzes one candidate.
type Runner interface {
	Analyze(ctx context.Context, ev domain.AssetCreated) domain.Decision
}

// PoolOptions contains configuration for creating a Pool.
type PoolOptions struct {
	Analyzer   Runner        // required
	Workers    int           // Default: 4
	QueueSize  int           // Default: 256
	Timeout    time.Duration // Default: 30s per analysis
	OnDecision func(ev domain.AssetCreated, d domain.Decision)
	Logger     *zap.Logger
}

// Pool runs analyses on a fixed number of workers fed by a bounded queue.
// Submit never blocks: a candidate arriving at a full queue is dropped.
type Pool struct {
	analyzer   Runner
	workers    int
	timeout    time.Duration
	onDecision func(ev domain.AssetCreated, d domain.Decision)
	logger     *zap.Logger

	queue chan domain.AssetCreated
}

// NewPool creates a Pool. Call Run to start the workers.
func NewPool(opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pool{
		analyzer:   opts.Analyzer,
		workers:    opts.Workers,
		timeout:    opts.Timeout,
		onDecision: opts.OnDecision,
		logger:     opts.Logger.Named("analyzer_pool"),
		queue:      make(chan domain.AssetCreated, opts.QueueSize),
	}
}

// Submit enqueues ev and reports whether it was accepted.
func (p *Pool) Submit(ev domain.AssetCreated) bool {
	select {
	case p.queue <- ev:
		observability.SetAnalysisBacklog(len(p.queue))
		return true
	default:
		p.logger.Warn("analysis backlog full, dropping candidate",
			zap.String("address", ev.Address),
			zap.Int("backlog", cap(p.queue)),
		)
		return false
	}
}

// Backlog returns the number of queued candidates.
func (p *Pool) Backlog() int {
	return len(p.queue)
}

// Run processes the queue until ctx is cancelled. Analyses in flight at
// cancellation run to completion or their own timeout; queued candidates
// that were not started are abandoned.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("analysis workers started", zap.Int("workers", p.workers), zap.Int("queue", cap(p.queue)))

	wp := pool.New().WithMaxGoroutines(p.workers)
	for i := 0; i < p.workers; i++ {
		wp.Go(func() { p.work(ctx) })
	}
	wp.Wait()

	p.logger.Info("analysis workers stopped", zap.Int("abandoned", len(p.queue)))
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			observability.SetAnalysisBacklog(len(p.queue))
			if ctx.Err() != nil {
				return
			}
			p.process(ctx, ev)
		}
	}
}

func (p *Pool) process(ctx context.Context, ev domain.AssetCreated) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	d := p.analyzer.Analyze(actx, ev)
	if p.onDecision != nil {
		p.onDecision(ev, d)
	}
}
