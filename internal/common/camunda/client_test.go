package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"crop-claims/internal/common/config"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, maxRetries int) *Client {
	return &Client{
		config: &ClientConfig{
			RetryConfig: &RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		},
		logger: logger.NewTestLogger(t),
	}
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("rpc error: code = NotFound desc = process not found"), false},
		{errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableZeebeError(tt.err))
		})
	}
}

func TestExecuteWithRetry_RecoversFromTransientError(t *testing.T) {
	calls := 0
	err := testClient(t, 3).ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, "topology")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := testClient(t, 3).ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("permission denied")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestExecuteWithRetry_GivesUp(t *testing.T) {
	calls := 0
	err := testClient(t, 2).ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("unavailable")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRegistry_SkipsDisabledWorker(t *testing.T) {
	r := NewRegistry(nil, logger.NewTestLogger(t))

	r.Start("process-claim", config.WorkerConfig{Enabled: false}, func(worker.JobClient, entities.Job) {})

	assert.Empty(t, r.TaskTypes())
	r.Stop()
}

func TestInstrument_CountsHandledJobs(t *testing.T) {
	before := testutil.ToFloat64(metrics.WorkerJobsHandled.WithLabelValues("decide-claim"))
	called := false

	instrument("decide-claim", func(worker.JobClient, entities.Job) {
		called = true
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues("decide-claim")))
	})(nil, entities.Job{})

	assert.True(t, called)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.WorkerJobsHandled.WithLabelValues("decide-claim")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues("decide-claim")))
}
