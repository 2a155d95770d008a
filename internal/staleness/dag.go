// Package staleness owns the pipeline step dependency graph and the
// propagation of "this is now stale" across it whenever an upstream step
// is regenerated.
package staleness

import (
	"fmt"
	"sort"
)

// Graph maps each step key to the steps it depends on. The graph is
// static configuration, validated acyclic at construction, and shared by
// every project.
type Graph map[string][]string

// Pipeline step keys, in generation order.
const (
	StepOverview = "overview"
	StepAccount  = "account"
	StepPersona  = "persona"
	StepEmail    = "email"
	StepPlan     = "plan"
)

// DefaultGraph returns the outreach pipeline dependency graph: company
// overview feeds target account, account feeds persona, and the email
// and strategic plan consume everything upstream of them.
func DefaultGraph() Graph {
	return Graph{
		StepOverview: {},
		StepAccount:  {StepOverview},
		StepPersona:  {StepAccount},
		StepEmail:    {StepPersona, StepAccount},
		StepPlan:     {StepEmail, StepPersona, StepAccount, StepOverview},
	}
}

// Validate checks that every dependency is a known step and that the
// graph has no cycles.
func (g Graph) Validate() error {
	for step, deps := range g {
		for _, dep := range deps {
			if _, ok := g[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", step, dep)
			}
		}
	}

	return g.checkAcyclic()
}

func (g Graph) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g))

	var visit func(step string) error
	visit = func(step string) error {
		switch state[step] {
		case visiting:
			return fmt.Errorf("dependency cycle through step %q", step)
		case done:
			return nil
		}
		state[step] = visiting
		for _, dep := range g[step] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[step] = done
		return nil
	}

	for step := range g {
		if err := visit(step); err != nil {
			return err
		}
	}
	return nil
}

// Dependents returns every step reachable from changed by following
// depends-on edges in reverse — all transitive downstream consumers,
// excluding changed itself. The result is sorted for determinism
// regardless of map iteration order.
func (g Graph) Dependents(changed string) []string {
	reverse := make(map[string][]string, len(g))
	for step, deps := range g {
		for _, dep := range deps {
			reverse[dep] = append(reverse[dep], step)
		}
	}

	seen := map[string]bool{}
	var walk func(step string)
	walk = func(step string) {
		for _, consumer := range reverse[step] {
			if !seen[consumer] {
				seen[consumer] = true
				walk(consumer)
			}
		}
	}
	walk(changed)
	delete(seen, changed)

	dependents := make([]string, 0, len(seen))
	for step := range seen {
		dependents = append(dependents, step)
	}
	sort.Slice(dependents, func(i, j int) bool {
		oi, oj := stepOrder(dependents[i]), stepOrder(dependents[j])
		if oi != oj {
			return oi < oj
		}
		return dependents[i] < dependents[j]
	})
	return dependents
}

// pipelineOrder fixes the reporting order of the default pipeline steps.
// Steps outside it sort after, alphabetically.
var pipelineOrder = map[string]int{
	StepOverview: 0,
	StepAccount:  1,
	StepPersona:  2,
	StepEmail:    3,
	StepPlan:     4,
}

func stepOrder(step string) int {
	if n, ok := pipelineOrder[step]; ok {
		return n
	}
	return len(pipelineOrder)
}
