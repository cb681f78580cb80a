// cmd/tools/worker-generator/templates.go
package main

const configTemplate = `package {{ .PackageName }}

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
`

const modelsTemplate = `package {{ .PackageName }}

import "suburbmates-workers/internal/common/validation"

type Input struct {
{{- range .InputFields }}
	{{ .Name }} {{ .GoType }} {{ bt }}json:"{{ .JSONName }}"{{ bt }}
{{- end }}
}

type Output struct {
{{- range .OutputFields }}
	{{ .Name }} {{ .GoType }} {{ bt }}json:"{{ .JSONName }}"{{ bt }}
{{- end }}
}

var inputSchema = validation.MustCompile({{ bt }}{{ .InputSchemaJSON }}{{ bt }})
`

const handlerTemplate = `package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "{{ .TaskType }}"
)

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := inputSchema.ValidateJSON(job.Variables); err != nil {
		h.fail(ctx, client, job, apperrors.NewInputValidationError(err.Error()))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewParseError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, apperrors.NewInternalError(err))
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}
	return &Output{}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suburbmates-workers/internal/common/logger"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestHandler_NilInput(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestInputSchema(t *testing.T) {
	assert.NoError(t, inputSchema.ValidateJSON({{ bt }}{}{{ bt }}))
	assert.Error(t, inputSchema.ValidateJSON({{ bt }}[]{{ bt }}))
}
`

const readmeTemplate = `# {{ .Name }}

{{ .Description }}

- Task type: {{ .TaskType }}
- Category: {{ .Category }}
- Timeout: {{ .Timeout }}
- Retries: {{ .Retries }}

## Input
{{ range .InputFields }}
- {{ .JSONName }} ({{ .JSONType }})
{{- else }}
No input fields registered.
{{- end }}

## Output
{{ range .OutputFields }}
- {{ .JSONName }} ({{ .JSONType }})
{{- else }}
No output fields registered.
{{- end }}

## Error codes
{{ range .ErrorCodes }}
- {{ . }}
{{- else }}
None registered.
{{- end }}

## Wiring

Start the worker in cmd/worker-manager/main.go:

    wcfg = config.GetWorkerConfig(cfg, {{ .PackageName }}.TaskType)
    workers.Start({{ .PackageName }}.TaskType, wcfg, {{ .PackageName }}.NewHandler(&{{ .PackageName }}.Config{
        Timeout: config.GetDuration(wcfg.Timeout),
    }, log))

and add a section under workers in configs/config.yaml:

    {{ .TaskType }}:
      enabled: true
      max_jobs_active: 5
      timeout: 10000
`
