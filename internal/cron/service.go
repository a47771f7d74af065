package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/metrics"
)

var errAlreadyStarted = errors.New("scheduler already started")

// ServiceParams configure the scheduler.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
	Location *time.Location
	// RunOnStart fires every job once as soon as Start is called.
	RunOnStart bool
}

// Service runs registered jobs on their schedules. It is constructed by the
// binary and driven explicitly through Start and Stop.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	locks      LockFactory
	metrics    *metrics.CronJobMetrics
	location   *time.Location
	runOnStart bool

	mu      sync.Mutex
	cron    *robfig.Cron
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

// NewService builds a scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		locks:      params.Locks,
		metrics:    params.Metrics,
		location:   location,
		runOnStart: params.RunOnStart,
	}, nil
}

// Start schedules every registered job and returns immediately. Jobs run with
// a context derived from ctx that Stop cancels.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errAlreadyStarted
	}

	adapter := cronLogger{logg: s.logg, ctx: ctx}
	chain := robfig.NewChain(robfig.Recover(adapter), robfig.SkipIfStillRunning(adapter))
	scheduler := robfig.New(robfig.WithLocation(s.location), robfig.WithLogger(adapter))
	runCtx, cancel := context.WithCancel(ctx)

	wrapped := make([]robfig.Job, 0, len(s.registry.Jobs()))
	for _, job := range s.registry.Jobs() {
		schedule, err := robfig.ParseStandard(job.Schedule())
		if err != nil {
			cancel()
			return fmt.Errorf("parse schedule for %s: %w", job.Name(), err)
		}
		entry := chain.Then(robfig.FuncJob(func() { s.runJob(runCtx, job) }))
		scheduler.Schedule(schedule, entry)
		wrapped = append(wrapped, entry)
	}

	s.cron = scheduler
	s.cancel = cancel
	scheduler.Start()

	if s.runOnStart {
		for _, entry := range wrapped {
			s.pending.Add(1)
			go func(entry robfig.Job) {
				defer s.pending.Done()
				entry.Run()
			}(entry)
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(wrapped)), "scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx expires, after
// which in-flight jobs see their context canceled.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	scheduler, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if scheduler == nil {
		return nil
	}
	defer cancel()

	stopped := scheduler.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logg.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logg.Warn(ctx, "scheduler stop timed out; canceling running jobs")
		return ctx.Err()
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})

	lock, err := s.locks(job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "build job lock", err)
		s.recordFailure(job.Name())
		return
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "acquire job lock", err)
		s.recordFailure(job.Name())
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another instance is running this job; skipping")
		return
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(jobCtx)); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err = job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}

func (s *Service) recordFailure(job string) {
	s.metrics.IncFailure(job)
}

// cronLogger adapts the service logger to robfig/cron's logger interface.
type cronLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logg.Debug(l.withPairs(keysAndValues), "cron: "+msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logg.Error(l.withPairs(keysAndValues), "cron: "+msg, err)
}

func (l cronLogger) withPairs(keysAndValues []any) context.Context {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.logg.WithFields(l.ctx, fields)
}
