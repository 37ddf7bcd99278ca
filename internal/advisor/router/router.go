// Package router plans and dispatches advisory module calls.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/common/observability"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/pkg/registry"

	"go.opentelemetry.io/otel/attribute"
)

var ErrModuleNotRegistered = errors.New("MODULE_NOT_REGISTERED")

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// CallRecorder receives one record per module call. *observability.Observability implements it.
type CallRecorder interface {
	RecordModuleCall(ctx context.Context, module, status string)
}

type Config struct {
	ModuleTimeout time.Duration
	RequestBudget time.Duration
	// Timeouts overrides ModuleTimeout per module.
	Timeouts map[models.ModuleID]time.Duration
	Recorder CallRecorder
}

type Router struct {
	catalog *modules.Catalog
	deps    map[models.ModuleID][]models.ModuleID
	cfg     Config
	log     Logger
}

func New(catalog *modules.Catalog, reg *registry.ModuleRegistry, cfg Config, log Logger) *Router {
	if reg == nil {
		reg = registry.Default()
	}
	if cfg.ModuleTimeout <= 0 {
		cfg.ModuleTimeout = 10 * time.Second
	}
	if cfg.RequestBudget <= 0 {
		cfg.RequestBudget = 30 * time.Second
	}
	deps := make(map[models.ModuleID][]models.ModuleID)
	for id, ds := range reg.Dependencies() {
		for _, d := range ds {
			deps[models.ModuleID(id)] = append(deps[models.ModuleID(id)], models.ModuleID(d))
		}
	}
	return &Router{catalog: catalog, deps: deps, cfg: cfg, log: log}
}

// Budget is the overall deadline applied by Execute.
func (r *Router) Budget() time.Duration { return r.cfg.RequestBudget }

// Execute runs the plan layer by layer, modules within a layer concurrently. It always returns
// one response per plan step, in plan order.
func (r *Router) Execute(ctx context.Context, plan models.ModuleCallPlan, q models.Query) []models.ModuleResponse {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestBudget)
	defer cancel()

	done := make(map[models.ModuleID]models.ModuleResponse, len(plan.Steps))
	for _, layer := range plan.Layers() {
		if ctx.Err() != nil {
			for _, step := range layer {
				done[step.Module] = timedOut(step.Module, "request budget exhausted before start")
			}
			continue
		}

		out := make([]models.ModuleResponse, len(layer))
		var wg sync.WaitGroup
		for i, step := range layer {
			in := modules.Input{Text: q.Text, Location: q.Location, Crop: q.Crop, Facts: q.Facts[step.Module]}
			for _, dep := range step.DependsOn {
				if resp, ok := done[dep]; ok && resp.OK() {
					in.Upstream = append(in.Upstream, resp)
				}
			}
			wg.Add(1)
			go func(i int, id models.ModuleID, in modules.Input) {
				defer wg.Done()
				out[i] = r.call(ctx, id, in)
			}(i, step.Module, in)
		}
		wg.Wait()

		for i, step := range layer {
			done[step.Module] = out[i]
		}
	}

	responses := make([]models.ModuleResponse, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		responses = append(responses, done[step.Module])
	}
	return responses
}

type outcome struct {
	out modules.Output
	err error
}

func (r *Router) call(ctx context.Context, id models.ModuleID, in modules.Input) (resp models.ModuleResponse) {
	ctx, span := observability.StartSpan(ctx, "module."+string(id), attribute.String("module", string(id)))
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("status", string(resp.Status)))
		var spanErr error
		if !resp.OK() {
			spanErr = errors.New(resp.ErrorDetail)
		}
		observability.End(span, spanErr)
		metrics.ModuleCalls.WithLabelValues(string(id), string(resp.Status)).Inc()
		metrics.ModuleDuration.WithLabelValues(string(id)).Observe(time.Since(start).Seconds())
		if r.cfg.Recorder != nil {
			r.cfg.Recorder.RecordModuleCall(ctx, string(id), string(resp.Status))
		}
		if !resp.OK() {
			r.log.Warn("module call failed", map[string]interface{}{
				"module": string(id),
				"status": string(resp.Status),
				"kind":   resp.FailureKind,
				"error":  resp.ErrorDetail,
			})
		}
	}()

	adapter, ok := r.catalog.Get(id)
	if !ok {
		return failed(id, modules.NewFailure(modules.FailureInternal, ErrModuleNotRegistered))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeoutFor(id))
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: modules.NewFailure(modules.FailureInternal, fmt.Errorf("panic: %v", p))}
			}
		}()
		out, err := adapter.Advise(callCtx, in)
		ch <- outcome{out: out, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			if modules.KindOf(o.err) == modules.FailureTimeout || callCtx.Err() != nil {
				return timedOut(id, o.err.Error())
			}
			return failed(id, o.err)
		}
		return accept(id, o.out)
	case <-callCtx.Done():
		return timedOut(id, callCtx.Err().Error())
	}
}

func (r *Router) timeoutFor(id models.ModuleID) time.Duration {
	if d, ok := r.cfg.Timeouts[id]; ok && d > 0 {
		return d
	}
	return r.cfg.ModuleTimeout
}

// accept normalises a module output at the boundary.
func accept(id models.ModuleID, out modules.Output) models.ModuleResponse {
	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	evidence := make([]models.Evidence, 0, len(out.Evidence))
	for _, ev := range out.Evidence {
		if strings.TrimSpace(ev.Source) == "" {
			continue
		}
		evidence = append(evidence, ev)
	}
	urgency := out.Urgency
	if urgency.Weight() == 0 {
		urgency = models.UrgencyMedium
	}
	return models.ModuleResponse{
		ModuleID:   id,
		Advice:     strings.TrimSpace(out.Advice),
		Evidence:   evidence,
		Confidence: conf,
		Urgency:    urgency,
		Status:     models.StatusOK,
		Topic:      out.Topic,
		Stance:     out.Stance,

		Facts:         out.Facts,
		AwaitingReply: out.AwaitingReply,
	}
}

func failed(id models.ModuleID, err error) models.ModuleResponse {
	return models.ModuleResponse{
		ModuleID:    id,
		Status:      models.StatusFailed,
		ErrorDetail: err.Error(),
		FailureKind: string(modules.KindOf(err)),
	}
}

func timedOut(id models.ModuleID, detail string) models.ModuleResponse {
	return models.ModuleResponse{
		ModuleID:    id,
		Status:      models.StatusTimeout,
		ErrorDetail: detail,
		FailureKind: string(modules.FailureTimeout),
	}
}

// FailureTrace returns the module-failed annotations for every non-ok response, in order.
func FailureTrace(responses []models.ModuleResponse) []string {
	var out []string
	for _, r := range responses {
		if !r.OK() {
			out = append(out, fmt.Sprintf("module-failed:%s:%s", r.ModuleID, r.Status))
		}
	}
	return out
}
