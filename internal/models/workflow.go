// internal/models/workflow.go
package models

import "fmt"

type WorkflowStep string

const (
	StepStart        WorkflowStep = "start"
	StepAnalyzing    WorkflowStep = "analyzing"
	StepRouting      WorkflowStep = "routing"
	StepExecuting    WorkflowStep = "executing"
	StepSynthesizing WorkflowStep = "synthesizing"
	StepValidating   WorkflowStep = "validating"
	StepDone         WorkflowStep = "done"
	StepErrored      WorkflowStep = "errored"
)

// transitions lists the only legal next step for each state. errored is reachable from
// every non-terminal step and is handled separately in Advance.
var transitions = map[WorkflowStep]WorkflowStep{
	StepStart:        StepAnalyzing,
	StepAnalyzing:    StepRouting,
	StepRouting:      StepExecuting,
	StepExecuting:    StepSynthesizing,
	StepSynthesizing: StepValidating,
	StepValidating:   StepDone,
}

func (s WorkflowStep) Terminal() bool {
	return s == StepDone || s == StepErrored
}

// PlanStep is one module invocation in a ModuleCallPlan.
type PlanStep struct {
	Module    ModuleID   `json:"module"`
	DependsOn []ModuleID `json:"dependsOn,omitempty"`
	Layer     int        `json:"layer"`
}

type ModuleCallPlan struct {
	Steps []PlanStep `json:"steps"`
}

func (p ModuleCallPlan) Modules() []ModuleID {
	out := make([]ModuleID, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Module
	}
	return out
}

// Layers groups plan steps by layer, preserving plan order inside each layer.
func (p ModuleCallPlan) Layers() [][]PlanStep {
	var layers [][]PlanStep
	for _, s := range p.Steps {
		for len(layers) <= s.Layer {
			layers = append(layers, nil)
		}
		layers[s.Layer] = append(layers[s.Layer], s)
	}
	return layers
}

// WorkflowRun is owned by a single orchestration run and is never shared.
type WorkflowRun struct {
	ID        string
	Query     Query
	Step      WorkflowStep
	Decision  IntentDecision
	Plan      ModuleCallPlan
	Responses []ModuleResponse
	Trace     []string
}

func NewWorkflowRun(id string, q Query) *WorkflowRun {
	return &WorkflowRun{
		ID:    id,
		Query: q,
		Step:  StepStart,
		Trace: []string{"step:" + string(StepStart)},
	}
}

// Advance moves the run forward. Backward moves and moves out of a terminal step are rejected.
func (r *WorkflowRun) Advance(next WorkflowStep) error {
	if r.Step.Terminal() {
		return fmt.Errorf("workflow %s already terminal at %s", r.ID, r.Step)
	}
	if next != StepErrored && transitions[r.Step] != next {
		return fmt.Errorf("illegal transition %s -> %s", r.Step, next)
	}
	r.Step = next
	r.Note("step:" + string(next))
	return nil
}

func (r *WorkflowRun) Note(entry string) {
	r.Trace = append(r.Trace, entry)
}
