package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"krishmitra-advisor/internal/models"
)

var ErrDependencyCycle = errors.New("MODULE_DEPENDENCY_CYCLE")

// Plan orders the required modules into dependency layers. Edges count only when both ends
// are required; ties inside a layer follow canonical module order.
func (r *Router) Plan(d models.IntentDecision) (models.ModuleCallPlan, error) {
	required := map[models.ModuleID]bool{}
	var nodes []models.ModuleID
	for _, id := range d.RequiredModules {
		if !required[id] {
			required[id] = true
			nodes = append(nodes, id)
		}
	}
	if len(nodes) == 0 {
		nodes = []models.ModuleID{models.ModuleGeneral}
		required[models.ModuleGeneral] = true
	}

	indegree := make(map[models.ModuleID]int, len(nodes))
	dependents := make(map[models.ModuleID][]models.ModuleID)
	dependsOn := make(map[models.ModuleID][]models.ModuleID)
	for _, id := range nodes {
		for _, dep := range r.deps[id] {
			if !required[dep] {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
			dependsOn[id] = append(dependsOn[id], dep)
		}
	}

	var plan models.ModuleCallPlan
	var frontier []models.ModuleID
	for _, id := range nodes {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}
	for layer := 0; len(frontier) > 0; layer++ {
		sortCanonical(frontier)
		var next []models.ModuleID
		for _, id := range frontier {
			deps := append([]models.ModuleID(nil), dependsOn[id]...)
			sortCanonical(deps)
			plan.Steps = append(plan.Steps, models.PlanStep{Module: id, DependsOn: deps, Layer: layer})
			for _, child := range dependents[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		frontier = next
	}

	if len(plan.Steps) < len(nodes) {
		var stuck []string
		for _, id := range nodes {
			if indegree[id] > 0 {
				stuck = append(stuck, string(id))
			}
		}
		sort.Strings(stuck)
		return models.ModuleCallPlan{}, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(stuck, ", "))
	}
	return plan, nil
}

func sortCanonical(ids []models.ModuleID) {
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := ids[i].Rank(), ids[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}
