package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
)

// Warning codes (W200-W299)
const (
	WarnLoop                = "W201" // steps that can revisit each other
	WarnDanglingDestination = "W202" // destination names no declared step
	WarnUnreachableStep     = "W203" // step cannot be reached from the first step
)

// Warning levels.
const (
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Warning is a finding of static analysis. Warnings never stop a task from
// building.
type Warning struct {
	Code    string   `json:"code"`
	Path    []string `json:"path,omitempty"` // loop path, or the step concerned
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// Analyze performs static analysis of a task definition.
//
// It builds the navigation graph a run could follow (rule destinations, plus
// the declared-order successor wherever a step has no rule or a predicate
// rule has no default) and reports:
//   - loops, found as strongly connected components with Tarjan's algorithm.
//     A loop with no way out is a warning, one with a conditional exit is info,
//     since a predicate may break it at runtime;
//   - destinations that name no declared step, which fail with
//     UNKNOWN_DESTINATION when traversed;
//   - steps that no path from the first step reaches.
//
// Results are ordered by declared step position so output is stable.
func Analyze(def *graph.Definition) []Warning {
	warnings := []Warning{}
	if len(def.Steps) == 0 {
		return warnings
	}

	nav := buildNavGraph(def)

	for _, d := range nav.dangling {
		warnings = append(warnings, Warning{
			Code:    WarnDanglingDestination,
			Path:    []string{string(d.from), string(d.to)},
			Message: fmt.Sprintf("Rule on %s names undeclared destination %s", d.from, d.to),
			Level:   LevelWarning,
		})
	}

	for _, scc := range tarjanSCC(nav) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], nav)) {
			warnings = append(warnings, loopWarning(scc, nav))
		}
	}

	reached := nav.reachable(def.Steps[0].ID)
	for _, step := range def.Steps {
		if step.ID == "" || reached[step.ID] {
			continue
		}
		warnings = append(warnings, Warning{
			Code:    WarnUnreachableStep,
			Path:    []string{string(step.ID)},
			Message: fmt.Sprintf("Step %s is not reachable from %s", step.ID, def.Steps[0].ID),
			Level:   LevelInfo,
		})
	}

	return warnings
}

type danglingEdge struct {
	from, to ir.StepID
}

// navGraph maps step → steps a run may move to next. Only declared steps
// appear as nodes; the null step and undeclared destinations are dropped.
type navGraph struct {
	order    []ir.StepID
	edges    map[ir.StepID][]ir.StepID
	dangling []danglingEdge
}

func buildNavGraph(def *graph.Definition) *navGraph {
	g := &navGraph{edges: make(map[ir.StepID][]ir.StepID)}

	declared := make(map[ir.StepID]bool, len(def.Steps))
	next := make(map[ir.StepID]ir.StepID, len(def.Steps))
	for i, s := range def.Steps {
		if declared[s.ID] {
			continue
		}
		declared[s.ID] = true
		g.order = append(g.order, s.ID)
		if i+1 < len(def.Steps) {
			next[s.ID] = def.Steps[i+1].ID
		}
	}

	// Last registration wins, as in a permissive graph.
	rules := make(map[ir.StepID]graph.Rule, len(def.Rules))
	for _, tr := range def.Rules {
		rules[tr.Trigger] = tr.Rule
	}

	add := func(from, to ir.StepID) {
		switch {
		case to == "" || to.IsNull():
		case !declared[to]:
			g.dangling = append(g.dangling, danglingEdge{from: from, to: to})
		case !slices.Contains(g.edges[from], to):
			g.edges[from] = append(g.edges[from], to)
		}
	}

	for _, id := range g.order {
		g.edges[id] = []ir.StepID{}
		rule, ok := rules[id]
		if !ok {
			add(id, next[id])
			continue
		}
		for _, dest := range rule.Destinations() {
			add(id, dest)
		}
		if pr, ok := rule.(graph.PredicateRule); ok && pr.Default == "" {
			add(id, next[id])
		}
	}

	return g
}

func (g *navGraph) reachable(start ir.StepID) map[ir.StepID]bool {
	seen := map[ir.StepID]bool{start: true}
	queue := []ir.StepID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.edges[cur] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return seen
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node ir.StepID, g *navGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT loops. Components are returned
// ordered by their earliest declared member.
func tarjanSCC(g *navGraph) [][]ir.StepID {
	var (
		index   = 0
		stack   []ir.StepID
		indices = make(map[ir.StepID]int)
		lowlink = make(map[ir.StepID]int)
		onStack = make(map[ir.StepID]bool)
		sccs    [][]ir.StepID
	)

	var strongConnect func(ir.StepID)
	strongConnect = func(v ir.StepID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root node: pop the component.
		if lowlink[v] == indices[v] {
			var scc []ir.StepID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	position := make(map[ir.StepID]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}
	for _, scc := range sccs {
		slices.SortFunc(scc, func(a, b ir.StepID) int { return position[a] - position[b] })
	}
	slices.SortFunc(sccs, func(a, b []ir.StepID) int { return position[a[0]] - position[b[0]] })

	return sccs
}

// loopWarning converts an SCC to a Warning. A loop whose members each have a
// single successor can never be left once entered.
func loopWarning(scc []ir.StepID, g *navGraph) Warning {
	path := reconstructCyclePath(scc, g)
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = string(id)
	}

	trapped := true
	for _, id := range scc {
		if len(g.edges[id]) != 1 {
			trapped = false
			break
		}
	}

	if trapped {
		return Warning{
			Code:    WarnLoop,
			Path:    names,
			Message: fmt.Sprintf("Navigation loop with no exit: %s", strings.Join(names, " → ")),
			Level:   LevelWarning,
		}
	}
	return Warning{
		Code:    WarnLoop,
		Path:    names,
		Message: fmt.Sprintf("Conditional navigation loop: %s", strings.Join(names, " → ")),
		Level:   LevelInfo,
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Start at the first node, follow edges to other members until we return to
// the start.
func reconstructCyclePath(scc []ir.StepID, g *navGraph) []ir.StepID {
	if len(scc) == 0 {
		return []ir.StepID{}
	}

	members := make(map[ir.StepID]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []ir.StepID{current}
	visited := make(map[ir.StepID]bool)

	for {
		visited[current] = true

		var next ir.StepID
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
