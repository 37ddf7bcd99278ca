package answerfarmquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"krishmitra-advisor/internal/advisor/orchestrator"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "answer-farm-query"
)

// Advisor runs one advisory workflow.
type Advisor interface {
	Run(ctx context.Context, q models.Query) (models.SynthesizedAnswer, error)
}

// HistoryRecorder stores answers for later display. Failures are logged only.
type HistoryRecorder interface {
	Append(ctx context.Context, q models.Query, a models.SynthesizedAnswer) error
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config     *Config
	advisor    Advisor
	history    HistoryRecorder
	errHandler *commonerrors.ErrorHandler
	logger     Logger
}

func NewHandler(config *Config, advisor Advisor, history HistoryRecorder, log Logger) *Handler {
	return &Handler{
		config:     config,
		advisor:    advisor,
		history:    history,
		errHandler: commonerrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()
	h.logger.Info("processing job", map[string]interface{}{
		"taskType":    TaskType,
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, commonerrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Question) == "" {
		return nil, commonerrors.NewEmptyQueryError()
	}

	q := input.query()
	answer, err := h.advisor.Run(ctx, q)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) {
			return nil, commonerrors.NewEmptyQueryError()
		}
		return nil, commonerrors.NewWorkflowFaultError(err.Error())
	}

	if h.config.RecordSessions && h.history != nil && q.SessionID != "" {
		if err := h.history.Append(ctx, q, answer); err != nil {
			se := commonerrors.NewSessionStoreError(err)
			h.logger.Warn("session history not recorded", map[string]interface{}{
				"sessionId": q.SessionID,
				"code":      string(se.Code),
				"error":     se.Details,
			})
		}
	}

	h.logger.Info("farm query answered", map[string]interface{}{
		"runId":      answer.RunID,
		"confidence": answer.Confidence,
		"modules":    len(answer.ModulesConsulted),
		"degraded":   answer.Degraded,
	})
	return fromAnswer(answer), nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.Normalize(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

// Execute runs the job logic without a Zeebe client.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
