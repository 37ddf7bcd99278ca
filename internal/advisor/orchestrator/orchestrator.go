// Package orchestrator drives one advisory run through intent analysis, routing, module
// execution with concurrent evidence retrieval, synthesis and validation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/advisor/router"
	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/common/observability"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/internal/modules/weather"
	"krishmitra-advisor/internal/sessions"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrEmptyQuery    = errors.New("EMPTY_QUERY")
	ErrWorkflowFault = errors.New("WORKFLOW_FAULT")
)

const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeErrored  = "errored"
	OutcomeRejected = "rejected"

	traceErrored  = "errored"
	traceFollowUp = "follow-up:"

	// followUpReplyTokens is the longest turn still read as a reply to a pending follow-up
	// when it also matches other modules.
	followUpReplyTokens = 12
)

type IntentAnalyzer interface {
	Analyze(ctx context.Context, q models.Query) models.IntentDecision
}

type ModuleRouter interface {
	Plan(d models.IntentDecision) (models.ModuleCallPlan, error)
	Execute(ctx context.Context, plan models.ModuleCallPlan, q models.Query) []models.ModuleResponse
}

type EvidenceRetriever interface {
	Retrieve(ctx context.Context, text string, f evidence.Filters) evidence.Result
}

type AnswerSynthesizer interface {
	Synthesize(intent models.IntentDecision, responses []models.ModuleResponse, retrieval evidence.Result) models.SynthesizedAnswer
	Degraded(ev []models.Evidence) models.SynthesizedAnswer
}

type AnswerValidator interface {
	Validate(a models.SynthesizedAnswer) models.SynthesizedAnswer
}

// SessionContext carries module state between turns of a session. *sessions.Store satisfies it.
type SessionContext interface {
	LoadContext(ctx context.Context, sessionID string) (sessions.Context, error)
	SaveContext(ctx context.Context, sessionID string, c sessions.Context) error
}

// RunRecorder receives one call per finished run. *observability.Observability satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, outcome string, duration time.Duration)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Deps struct {
	Intent      IntentAnalyzer
	Router      ModuleRouter
	Evidence    EvidenceRetriever
	Synthesizer AnswerSynthesizer
	Validator   AnswerValidator
	Recorder    RunRecorder
	// Sessions is optional. Without it every turn is answered on its own.
	Sessions SessionContext
}

type Orchestrator struct {
	deps   Deps
	budget time.Duration
	log    Logger
	newID  func() string
}

// New builds an orchestrator. budget bounds the evidence retrieval that runs alongside the
// module calls; the router applies its own budget to the calls themselves.
func New(deps Deps, budget time.Duration, log Logger) *Orchestrator {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &Orchestrator{deps: deps, budget: budget, log: log, newID: uuid.NewString}
}

// Run answers q. The only error it returns is ErrEmptyQuery; every other failure becomes a
// degraded answer whose trace records what went wrong.
func (o *Orchestrator) Run(ctx context.Context, q models.Query) (models.SynthesizedAnswer, error) {
	if strings.TrimSpace(q.Text) == "" {
		metrics.RunsTotal.WithLabelValues(OutcomeRejected).Inc()
		return models.SynthesizedAnswer{}, ErrEmptyQuery
	}

	start := time.Now()
	run := models.NewWorkflowRun(o.newID(), q)
	ctx, span := observability.StartSpan(ctx, "orchestrator.run",
		attribute.String("run_id", run.ID),
		attribute.String("session_id", q.SessionID),
	)

	answer, err := o.execute(ctx, run)
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeErrored
		o.log.Error("advisory run errored", map[string]interface{}{
			"runId": run.ID,
			"step":  string(run.Step),
			"error": err.Error(),
		})
		answer = o.errored(run)
	case answer.Degraded || hasDegradation(answer.Trace):
		outcome = OutcomeDegraded
	}
	answer.RunID = run.ID
	answer.SessionID = q.SessionID

	elapsed := time.Since(start)
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	if o.deps.Recorder != nil {
		o.deps.Recorder.RecordRun(ctx, outcome, elapsed)
	}
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Float64("confidence", answer.Confidence),
	)
	observability.End(span, err)

	o.log.Info("advisory run finished", map[string]interface{}{
		"runId":      run.ID,
		"outcome":    outcome,
		"modules":    len(answer.ModulesConsulted),
		"confidence": answer.Confidence,
		"durationMs": elapsed.Milliseconds(),
	})
	return answer, nil
}

// execute walks the state machine. A returned error means the run must end in errored.
func (o *Orchestrator) execute(ctx context.Context, run *models.WorkflowRun) (answer models.SynthesizedAnswer, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic at %s: %v", ErrWorkflowFault, run.Step, p)
		}
	}()

	if err := run.Advance(models.StepAnalyzing); err != nil {
		return answer, err
	}
	prior := o.loadContext(ctx, run)
	run.Query.Facts = prior.Facts
	run.Decision = o.deps.Intent.Analyze(ctx, run.Query)
	if run.Decision.Method == models.MethodKeywordFallback {
		run.Note(string(commonerrors.ErrCodeIntentAnalysisDegraded))
	}
	if d, ok := RouteFollowUp(run.Decision, prior.Pending, run.Query.Text); ok {
		run.Decision = d
		run.Note(traceFollowUp + string(prior.Pending))
	}

	if err := run.Advance(models.StepRouting); err != nil {
		return answer, err
	}
	plan, err := o.deps.Router.Plan(run.Decision)
	if err != nil {
		return answer, fmt.Errorf("%w: %v", ErrWorkflowFault, err)
	}
	run.Plan = plan

	if err := run.Advance(models.StepExecuting); err != nil {
		return answer, err
	}
	retrieved := o.retrieveAsync(ctx, run)
	run.Responses = o.deps.Router.Execute(ctx, plan, run.Query)
	retrieval := <-retrieved
	o.saveContext(ctx, run)
	for _, entry := range router.FailureTrace(run.Responses) {
		run.Note(entry)
	}
	if retrieval.Degraded {
		run.Note(string(commonerrors.ErrCodeRetrievalDegraded))
		o.log.Warn("evidence retrieval degraded", map[string]interface{}{
			"runId": run.ID,
			"cause": retrieval.Cause,
		})
	}

	if err := run.Advance(models.StepSynthesizing); err != nil {
		return answer, err
	}
	answer = o.deps.Synthesizer.Synthesize(run.Decision, run.Responses, retrieval)
	for _, entry := range answer.Trace {
		run.Note(entry)
	}

	if err := run.Advance(models.StepValidating); err != nil {
		return answer, err
	}
	answer.Trace = append([]string(nil), run.Trace...)
	answer = o.deps.Validator.Validate(answer)
	run.Trace = append([]string(nil), answer.Trace...)

	if err := run.Advance(models.StepDone); err != nil {
		return answer, err
	}
	answer.Trace = run.Trace
	return answer, nil
}

// retrieveAsync starts evidence retrieval for the run. The channel always yields one result.
func (o *Orchestrator) retrieveAsync(ctx context.Context, run *models.WorkflowRun) <-chan evidence.Result {
	out := make(chan evidence.Result, 1)
	if o.deps.Evidence == nil {
		out <- evidence.Result{}
		return out
	}
	filters := FiltersFor(run.Query)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, o.budget)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				out <- evidence.Result{Degraded: true, Backend: evidence.BackendLexical, Cause: fmt.Sprintf("panic: %v", p)}
			}
		}()
		out <- o.deps.Evidence.Retrieve(ctx, run.Query.Text, filters)
	}()
	return out
}

// loadContext reads what earlier turns of the session left behind. A store failure only costs
// the conversation its memory.
func (o *Orchestrator) loadContext(ctx context.Context, run *models.WorkflowRun) sessions.Context {
	id := strings.TrimSpace(run.Query.SessionID)
	if o.deps.Sessions == nil || id == "" {
		return sessions.Context{}
	}
	c, err := o.deps.Sessions.LoadContext(ctx, id)
	if err != nil {
		se := commonerrors.NewSessionStoreError(err)
		o.log.Warn("session context unavailable", map[string]interface{}{
			"runId": run.ID,
			"code":  string(se.Code),
			"error": se.Details,
		})
		return sessions.Context{}
	}
	return c
}

// saveContext stores the facts the modules asked to keep and which module, if any, waits for
// the farmer's reply. The first awaiting module in plan order wins.
func (o *Orchestrator) saveContext(ctx context.Context, run *models.WorkflowRun) {
	id := strings.TrimSpace(run.Query.SessionID)
	if o.deps.Sessions == nil || id == "" {
		return
	}
	next := sessions.Context{Facts: map[models.ModuleID]map[string]float64{}}
	for _, r := range run.Responses {
		if !r.OK() {
			continue
		}
		if len(r.Facts) > 0 {
			next.Facts[r.ModuleID] = r.Facts
		}
		if r.AwaitingReply && next.Pending == "" {
			next.Pending = r.ModuleID
		}
	}
	if err := o.deps.Sessions.SaveContext(ctx, id, next); err != nil {
		se := commonerrors.NewSessionStoreError(err)
		o.log.Warn("session context not saved", map[string]interface{}{
			"runId": run.ID,
			"code":  string(se.Code),
			"error": se.Details,
		})
	}
}

// RouteFollowUp adds the module that asked a follow-up question last turn to the decision and
// makes it primary. It applies when the new turn matched nothing specific, or is short enough
// to be a reply.
func RouteFollowUp(d models.IntentDecision, pending models.ModuleID, text string) (models.IntentDecision, bool) {
	if !pending.Valid() || pending == models.ModuleGeneral || d.Requires(pending) {
		return d, false
	}
	generalOnly := len(d.RequiredModules) == 1 && d.RequiredModules[0] == models.ModuleGeneral
	if !generalOnly && len(modules.Tokens(text)) > followUpReplyTokens {
		return d, false
	}

	set := map[models.ModuleID]bool{pending: true}
	if !generalOnly {
		for _, id := range d.RequiredModules {
			set[id] = true
		}
	}
	out := d
	out.RequiredModules = nil
	for _, id := range models.CanonicalModules {
		if set[id] {
			out.RequiredModules = append(out.RequiredModules, id)
		}
	}
	out.PrimaryIntent = pending
	return out, true
}

// errored converts a faulted run into the degraded answer. Retrieval and module output
// gathered before the fault are discarded.
func (o *Orchestrator) errored(run *models.WorkflowRun) models.SynthesizedAnswer {
	if !run.Step.Terminal() {
		_ = run.Advance(models.StepErrored)
	}
	run.Note(traceErrored)

	answer := o.deps.Synthesizer.Degraded(nil)
	answer.Trace = append([]string(nil), run.Trace...)
	return answer
}

// FiltersFor derives evidence filters from the query. Coordinates carry no place name, so
// they do not constrain geography.
func FiltersFor(q models.Query) evidence.Filters {
	f := evidence.Filters{Crop: modules.ResolveCrop(q.Crop, q.Text)}
	if _, isCoord := weather.ParseLocation(q.Location); !isCoord {
		f.Geo = strings.TrimSpace(q.Location)
	}
	return f
}

func hasDegradation(trace []string) bool {
	for _, entry := range trace {
		code := entry
		if i := strings.IndexByte(entry, ':'); i > 0 {
			code = entry[:i]
		}
		if commonerrors.IsDegradation(commonerrors.ErrorCode(code)) {
			return true
		}
	}
	return false
}
