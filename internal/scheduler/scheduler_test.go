package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"keyvault-glow/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

type fakeLockStore struct {
	values map[string]string
	err    error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

type escalatorFunc func(ctx context.Context) (int, error)

func (f escalatorFunc) EscalateOverdue(ctx context.Context) (int, error) { return f(ctx) }

type reconcilerFunc func(ctx context.Context) (int, error)

func (f reconcilerFunc) ReconcilePending(ctx context.Context) (int, error) { return f(ctx) }

func TestService_RunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobs(reg)
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}

	service, err := NewService(ServiceParams{
		Logger:   zerolog.Nop(),
		Registry: NewRegistry(ok, nil, failing),
		Lock:     &LocalLock{},
		Metrics:  jobMetrics,
	})
	require.NoError(t, err)

	service.RunOnce(context.Background())

	assert.EqualValues(t, 1, ok.runs.Load())
	assert.EqualValues(t, 1, failing.runs.Load())
	successes, err := testutil.GatherAndCount(reg, "keyvault_job_success_total")
	require.NoError(t, err)
	assert.Equal(t, 1, successes)
	failures, err := testutil.GatherAndCount(reg, "keyvault_job_failure_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestService_SkipsWhenLockHeld(t *testing.T) {
	lock := &LocalLock{}
	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{Logger: zerolog.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	service.RunOnce(context.Background())
	assert.EqualValues(t, 0, job.runs.Load())

	require.NoError(t, lock.Release(context.Background()))
	service.RunOnce(context.Background())
	assert.EqualValues(t, 1, job.runs.Load())
}

func TestService_RunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   zerolog.Nop(),
		Registry: NewRegistry(job),
		Lock:     &LocalLock{},
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewService_RequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	store := newFakeLockStore()

	first, err := NewRedisLock(store, "kv:scheduler", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "kv:scheduler", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "kv:scheduler")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "kv:scheduler")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Errors(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(newFakeLockStore(), "", time.Minute)
	assert.Error(t, err)

	store := newFakeLockStore()
	store.err = errors.New("connection refused")
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestJobs(t *testing.T) {
	ctx := zerolog.Nop().WithContext(context.Background())

	escalations := 0
	deadline, err := NewRefundDeadlineJob(escalatorFunc(func(context.Context) (int, error) {
		escalations++
		return 2, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "refund-deadline", deadline.Name())
	require.NoError(t, deadline.Run(ctx))
	assert.Equal(t, 1, escalations)

	reconcile, err := NewPaymentReconcileJob(reconcilerFunc(func(context.Context) (int, error) {
		return 1, errors.New("gateway unavailable")
	}))
	require.NoError(t, err)
	assert.Equal(t, "payment-reconcile", reconcile.Name())
	assert.ErrorContains(t, reconcile.Run(ctx), "gateway unavailable")

	_, err = NewRefundDeadlineJob(nil)
	assert.Error(t, err)
	_, err = NewPaymentReconcileJob(nil)
	assert.Error(t, err)
}
