// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"crop-claims/internal/common/config"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Registry opens job workers and closes them together on shutdown.
type Registry struct {
	client  zbc.Client
	logger  logger.Logger
	workers []registered
}

type registered struct {
	taskType string
	worker   worker.JobWorker
}

func NewRegistry(client zbc.Client, log logger.Logger) *Registry {
	return &Registry{client: client, logger: log}
}

// Start opens a worker for taskType unless wcfg disables it.
func (r *Registry) Start(taskType string, wcfg config.WorkerConfig, handler worker.JobHandler) {
	if !wcfg.Enabled {
		r.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return
	}

	jobWorker := r.client.NewJobWorker().
		JobType(taskType).
		Handler(instrument(taskType, handler)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	r.workers = append(r.workers, registered{taskType: taskType, worker: jobWorker})
	r.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeoutMs":     wcfg.Timeout,
	})
}

// TaskTypes lists the workers that were opened.
func (r *Registry) TaskTypes() []string {
	types := make([]string, 0, len(r.workers))
	for _, w := range r.workers {
		types = append(types, w.taskType)
	}
	return types
}

// Stop closes every worker and waits for in-flight jobs.
func (r *Registry) Stop() {
	for _, w := range r.workers {
		r.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
		w.worker.Close()
		w.worker.AwaitClose()
	}
	r.workers = nil
}

// instrument records active jobs and handling time. Failures are counted by
// the job error handler.
func instrument(taskType string, handler worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		start := time.Now()
		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			metrics.WorkerJobsHandled.WithLabelValues(taskType).Inc()
		}()
		handler(client, job)
	}
}
