// Package jobs runs the periodic sweeps on cron schedules and on demand.
// Each job name runs at most once at a time: a trigger that arrives while
// the job is running joins that run and receives its result.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRunnerStopped is returned for triggers after Stop was called.
	ErrRunnerStopped = errors.New("jobs: runner stopped")
	// ErrUnknownJob is returned when no job is registered under a name.
	ErrUnknownJob = errors.New("jobs: unknown job")
)

// Func is the body of a job. The result is handed to every caller that joined the run.
type Func func(ctx context.Context) (any, error)

// Runner schedules registered jobs and guards them against overlapping runs.
type Runner struct {
	mu      sync.Mutex
	cron    *cron.Cron
	parser  cron.Parser
	jobs    map[string]Func
	group   singleflight.Group
	running sync.WaitGroup
	started bool
	stopped bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner constructs a runner whose schedules are evaluated in loc.
func NewRunner(loc *time.Location, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "jobs")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLog := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		parser: parser,
		jobs:   make(map[string]Func),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a job. An empty spec registers an on-demand job with no schedule.
func (r *Runner) Register(name, spec string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("jobs: name and func are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("jobs: %q already registered", name)
	}

	if spec != "" {
		schedule, err := r.parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("jobs: invalid schedule %q for %s: %w", spec, name, err)
		}
		r.cron.Schedule(schedule, cron.FuncJob(func() { r.tick(name) }))
	}
	r.jobs[name] = fn
	r.logger.Debug("job registered", "job", name, "schedule", spec)
	return nil
}

// Names lists registered jobs in lexical order.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins evaluating schedules. It is a no-op after the first call.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.cron.Start()
	r.logger.Info("job runner started", "jobs", len(r.jobs))
}

// Trigger runs the named job now, or joins the run already in progress.
// shared reports whether the result came from a run started by another caller.
// The job runs detached from ctx cancellation so that a caller giving up does
// not abort work other callers are waiting on.
func (r *Runner) Trigger(ctx context.Context, name string) (result any, shared bool, err error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, false, ErrRunnerStopped
	}
	fn, ok := r.jobs[name]
	if !ok {
		r.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	r.running.Add(1)
	r.mu.Unlock()
	defer r.running.Done()

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		return r.run(detached, name, fn)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, name string, fn Func) (result any, err error) {
	logger := r.logger.With("job", name)
	started := r.now()
	logger.InfoContext(ctx, "job started")

	r.running.Add(1)
	defer r.running.Done()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jobs: %s panicked: %v", name, rec)
			logger.ErrorContext(ctx, "job panicked", "panic", rec, "stack", string(debug.Stack()))
		}
		elapsed := r.now().Sub(started)
		if err != nil {
			logger.ErrorContext(ctx, "job failed", "error", err, "duration", elapsed)
			return
		}
		logger.InfoContext(ctx, "job finished", "duration", elapsed)
	}()

	return fn(ctx)
}

func (r *Runner) tick(name string) {
	if _, _, err := r.Trigger(context.Background(), name); err != nil && !errors.Is(err, ErrRunnerStopped) {
		r.logger.Warn("scheduled run failed", "job", name, "error", err)
	}
}

// Stop refuses new runs and waits for in-flight runs to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	cronDone := r.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		r.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("job runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("job runner stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
