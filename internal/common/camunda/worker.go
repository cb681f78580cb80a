// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"suburbmates-workers/internal/common/config"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// Handler is implemented by every worker package's Handler.
type Handler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Workers tracks the job workers opened by StartWorker so they can be closed
// together on shutdown.
type Workers struct {
	client  zbc.Client
	log     *zap.Logger
	running map[string]worker.JobWorker
}

func NewWorkers(client zbc.Client, log *zap.Logger) *Workers {
	return &Workers{client: client, log: log, running: make(map[string]worker.JobWorker)}
}

// Start opens a job worker for taskType unless it is disabled in wcfg.
func (w *Workers) Start(taskType string, wcfg config.WorkerConfig, handler Handler) bool {
	if !wcfg.Enabled {
		w.log.Info("worker disabled", zap.String("taskType", taskType))
		return false
	}

	w.running[taskType] = w.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	w.log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return true
}

// TaskTypes lists the running workers.
func (w *Workers) TaskTypes() []string {
	out := make([]string, 0, len(w.running))
	for t := range w.running {
		out = append(out, t)
	}
	return out
}

// Close stops every worker and waits for in-flight jobs.
func (w *Workers) Close() {
	for taskType, jw := range w.running {
		w.log.Info("stopping worker", zap.String("taskType", taskType))
		jw.Close()
		jw.AwaitClose()
	}
}
