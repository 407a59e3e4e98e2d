package scheduler

import (
	"context"
	"errors"
	"time"

	"keyvault-glow/internal/metrics"

	"github.com/rs/zerolog"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the scheduler service.
type ServiceParams struct {
	Logger   zerolog.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.Jobs
	Interval time.Duration
}

// Service executes registered jobs on a fixed cadence.
type Service struct {
	logger   zerolog.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.Jobs
	interval time.Duration
}

// NewService builds a scheduler service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logger:   params.Logger.With().Str("component", "scheduler").Logger(),
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle.
func (s *Service) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to acquire scheduler lock")
		return
	}
	if !locked {
		s.logger.Info().Msg("another worker holds the scheduler lock, skipping cycle")
		return
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error().Err(err).Msg("failed to release scheduler lock")
		}
	}()

	s.logger.Debug().Msg("scheduled run starting")
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
	s.logger.Debug().Msg("scheduled run complete")
}

func (s *Service) runJob(ctx context.Context, job Job) {
	logger := s.logger.With().Str("job", job.Name()).Logger()

	start := time.Now()
	err := job.Run(logger.WithContext(ctx))
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("job failed")
		s.metrics.IncFailure(job.Name())
		return
	}
	logger.Info().Dur("duration", duration).Msg("job completed")
	s.metrics.IncSuccess(job.Name())
}
