// Package scheduler runs periodic background jobs with graceful shutdown.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc is the body of a job.
type JobFunc func(ctx context.Context) error

// JobStatus reports the run history of a job.
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type job struct {
	name     string
	interval time.Duration // 0 for a one-time job
	timeout  time.Duration
	fn       JobFunc

	mu     sync.Mutex
	status JobStatus
}

// Scheduler runs registered jobs, each on its own goroutine. A periodic job
// runs immediately on Start and then every interval; a run that is still in
// progress when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: logger.Named("scheduler"),
	}
}

// RegisterJob registers a periodic job. Each run is bounded by timeout;
// timeout <= 0 uses half the interval.
func (s *Scheduler) RegisterJob(name string, interval, timeout time.Duration, fn JobFunc) {
	if timeout <= 0 {
		timeout = interval / 2
	}
	s.register(&job{name: name, interval: interval, timeout: timeout, fn: fn})
	s.logger.Info("registered job", zap.String("job", name), zap.Duration("interval", interval), zap.Duration("timeout", timeout))
}

// RegisterOnceJob registers a job that runs once on Start, without a timeout.
func (s *Scheduler) RegisterOnceJob(name string, fn JobFunc) {
	s.register(&job{name: name, fn: fn})
	s.logger.Info("registered once job", zap.String("job", name))
}

func (s *Scheduler) register(j *job) {
	j.status = JobStatus{Name: j.name, Interval: j.interval}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.name] = j
}

// Start launches every registered job. Jobs stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if j.interval <= 0 {
				s.execute(ctx, j)
				return
			}
			s.loop(ctx, j)
		}()
	}
}

// Stop stops scheduling new runs and waits for in-flight runs to finish or
// for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		s.logger.Info("all jobs stopped")
	case <-ctx.Done():
		s.logger.Warn("deadline exceeded while waiting for jobs to stop")
	}
}

// Status returns the status of every job sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		out = append(out, j.status)
		j.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.execute(ctx, j)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping job", zap.String("job", j.name))
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

// execute runs j once, bounded by its timeout.
func (s *Scheduler) execute(ctx context.Context, j *job) {
	j.mu.Lock()
	j.status.Running = true
	j.mu.Unlock()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	err := j.fn(runCtx)

	j.mu.Lock()
	j.status.Running = false
	j.status.Runs++
	j.status.LastRun = start
	j.status.LastError = ""
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
	}
	j.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", zap.String("job", j.name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("job completed", zap.String("job", j.name), zap.Duration("duration", time.Since(start)))
}
