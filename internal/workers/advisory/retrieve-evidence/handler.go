package retrieveevidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/advisor/orchestrator"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "retrieve-evidence"

	dateLayout = "2006-01-02"
)

type Retriever interface {
	Retrieve(ctx context.Context, text string, f evidence.Filters) evidence.Result
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config     *Config
	retriever  Retriever
	errHandler *commonerrors.ErrorHandler
	logger     Logger
}

func NewHandler(config *Config, retriever Retriever, log Logger) *Handler {
	return &Handler{
		config:     config,
		retriever:  retriever,
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

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Query) == "" {
		return nil, commonerrors.NewEmptyQueryError()
	}
	for _, d := range []string{input.From, input.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, commonerrors.NewInvalidInputError(fmt.Sprintf("date %q is not YYYY-MM-DD", d))
		}
	}

	filters := orchestrator.FiltersFor(models.Query{Text: input.Query, Crop: input.Crop, Location: input.Location})
	filters.From, filters.To = input.From, input.To

	res := h.retriever.Retrieve(ctx, input.Query, filters)
	h.logger.Info("evidence retrieved", map[string]interface{}{
		"count":    len(res.Evidence),
		"backend":  res.Backend,
		"degraded": res.Degraded,
	})
	ev := res.Evidence
	if ev == nil {
		ev = []models.Evidence{}
	}
	return &Output{Evidence: ev, Count: len(ev), Backend: res.Backend, Degraded: res.Degraded}, nil
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.Normalize(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
