// Package trigger runs periodic jobs on cron schedules. Every job also fires
// once shortly after startup through the same schedule, and a job never
// overlaps with itself.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"github.com/abhisek/skillissue/internal/logger"
)

// Func is the body of a periodic job.
type Func func(ctx context.Context)

// startupSchedule fires once at delay after the first Next call, then
// follows the wrapped schedule. cron calls Next from its run loop only.
type startupSchedule struct {
	delay time.Duration
	then  cron.Schedule
	fired bool
}

func (s *startupSchedule) Next(t time.Time) time.Time {
	if !s.fired {
		s.fired = true
		return t.Add(s.delay)
	}
	return s.then.Next(t)
}

// WithStartup wraps sched so the first activation happens delay after the
// cron starts.
func WithStartup(sched cron.Schedule, delay time.Duration) cron.Schedule {
	return &startupSchedule{delay: delay, then: sched}
}

// guardedJob adapts a Func to cron.Job. A run that starts while the
// previous one is still in progress is skipped.
type guardedJob struct {
	name    string
	fn      Func
	enter   func() (context.Context, bool)
	exit    func()
	running atomic.Bool
	log     *logger.Logger
}

func (j *guardedJob) Run() {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn("previous run still in progress, skipping", "trigger", j.name)
		return
	}
	defer j.running.Store(false)

	ctx, ok := j.enter()
	if !ok {
		return
	}
	defer j.exit()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	j.log.Debug("trigger fired", "trigger", j.name)
	j.fn(ctx)
	j.log.Debug("trigger finished", "trigger", j.name, "duration", time.Since(start).Round(time.Millisecond))
}

// Runner owns the cron and the registered jobs.
type Runner struct {
	cron *cron.Cron
	log  *logger.Logger
	wg   sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates a Runner whose schedules are evaluated in UTC.
func New(log *logger.Logger) *Runner {
	return &Runner{
		cron: cron.NewWithLocation(time.UTC),
		log:  logger.OrNop(log).With("component", "trigger"),
		ctx:  context.Background(),
	}
}

// Add registers fn under expr, a cron expression with a leading seconds
// field or a descriptor such as "@every 5m". The first run happens
// startupDelay after Start.
func (r *Runner) Add(name, expr string, startupDelay time.Duration, fn Func) error {
	sched, err := cron.Parse(expr)
	if err != nil {
		return fmt.Errorf("trigger %s: parse schedule %q: %w", name, expr, err)
	}
	r.cron.Schedule(WithStartup(sched, startupDelay), r.job(name, fn))
	r.log.Info("trigger registered", "trigger", name, "schedule", expr, "startup_delay", startupDelay)
	return nil
}

func (r *Runner) job(name string, fn Func) *guardedJob {
	return &guardedJob{
		name:  name,
		fn:    fn,
		enter: r.enter,
		exit:  r.wg.Done,
		log:   r.log,
	}
}

// enter registers a run with the wait group unless Stop has begun. The
// check and the Add share r.mu so no run is added once Stop is waiting.
func (r *Runner) enter() (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, false
	}
	r.wg.Add(1)
	return r.ctx, true
}

// Start begins scheduling. Jobs receive a context derived from ctx that is
// cancelled by Stop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()
	r.cron.Start()
}

// Stop halts scheduling, cancels in-progress runs and waits for them to
// return.
func (r *Runner) Stop() {
	r.cron.Stop()
	r.mu.Lock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
