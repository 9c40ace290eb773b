package domain

import (
	"encoding/json"
	"fmt"
)

// TaskGraph is an ordered collection of TaskSpecs with dependency edges.
// It is built once per job, validated at construction, and immutable while
// the job executes. All methods are pure; the graph performs no I/O.
type TaskGraph struct {
	specs []TaskSpec
	index map[string]int // task id -> position in specs
}

// NewTaskGraph creates an empty task graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{index: make(map[string]int)}
}

// BuildGraph constructs a graph from a complete set of specs. Unlike AddTask
// it tolerates forward references: all tasks are registered first, then every
// dependency is checked and the graph is validated for cycles.
func BuildGraph(specs []TaskSpec) (*TaskGraph, error) {
	g := NewTaskGraph()
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("task id is required")
		}
		if _, exists := g.index[spec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, spec.ID)
		}
		g.index[spec.ID] = len(g.specs)
		g.specs = append(g.specs, spec)
	}
	for _, spec := range g.specs {
		for _, dep := range spec.DependsOn {
			if _, exists := g.index[dep]; !exists {
				return nil, fmt.Errorf("%w: task %s depends on unknown task %s", ErrInvalidDependency, spec.ID, dep)
			}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// AddTask appends a spec to the graph. Dependencies must reference tasks
// already present; use BuildGraph when specs arrive unordered.
func (g *TaskGraph) AddTask(spec TaskSpec) (string, error) {
	if spec.ID == "" {
		return "", fmt.Errorf("task id is required")
	}
	if _, exists := g.index[spec.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, spec.ID)
	}
	for _, dep := range spec.DependsOn {
		if _, exists := g.index[dep]; !exists {
			return "", fmt.Errorf("%w: task %s depends on unknown task %s", ErrInvalidDependency, spec.ID, dep)
		}
	}
	g.index[spec.ID] = len(g.specs)
	g.specs = append(g.specs, spec)
	return spec.ID, nil
}

// Len returns the number of tasks in the graph.
func (g *TaskGraph) Len() int {
	return len(g.specs)
}

// Task returns the spec with the given id.
func (g *TaskGraph) Task(id string) (TaskSpec, bool) {
	pos, ok := g.index[id]
	if !ok {
		return TaskSpec{}, false
	}
	return g.specs[pos], true
}

// Tasks returns all specs in insertion order.
func (g *TaskGraph) Tasks() []TaskSpec {
	out := make([]TaskSpec, len(g.specs))
	copy(out, g.specs)
	return out
}

// Validate runs cycle detection using depth-first search with three-color
// marking. A cycle is reported as a CycleError carrying the participating
// task ids.
func (g *TaskGraph) Validate() error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully processed
	)
	colors := make(map[string]int, len(g.specs))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		colors[id] = gray
		stack = append(stack, id)
		spec := g.specs[g.index[id]]
		for _, dep := range spec.DependsOn {
			switch colors[dep] {
			case gray:
				// Back edge: slice the stack from the first occurrence of
				// dep to close the reported cycle.
				path := []string{}
				for i, node := range stack {
					if node == dep {
						path = append(path, stack[i:]...)
						break
					}
				}
				path = append(path, dep)
				return &CycleError{Path: path}
			case white:
				if cerr := visit(dep); cerr != nil {
					return cerr
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, spec := range g.specs {
		if colors[spec.ID] == white {
			if cerr := visit(spec.ID); cerr != nil {
				return cerr
			}
		}
	}
	return nil
}

// TopologicalOrder returns a valid linearization of the graph using Kahn's
// algorithm. Ties among simultaneously ready tasks are broken by insertion
// order, so the result is deterministic.
func (g *TaskGraph) TopologicalOrder() ([]string, error) {
	indegree, dependents := g.edges()

	order := make([]string, 0, len(g.specs))
	placed := make(map[string]bool, len(g.specs))
	for len(order) < len(g.specs) {
		progressed := false
		for _, spec := range g.specs {
			if placed[spec.ID] || indegree[spec.ID] != 0 {
				continue
			}
			placed[spec.ID] = true
			order = append(order, spec.ID)
			for _, next := range dependents[spec.ID] {
				indegree[next]--
			}
			progressed = true
		}
		if !progressed {
			// Kahn's algorithm could not consume every node.
			return nil, ErrCycleDetected
		}
	}
	return order, nil
}

// ParallelBatches groups tasks into successive levels: batch k contains
// exactly the tasks whose dependencies all sit in batches 0..k-1. Tasks
// within a batch may be dispatched concurrently; batches are strictly
// sequential. An empty graph yields zero batches.
func (g *TaskGraph) ParallelBatches() ([][]string, error) {
	indegree, dependents := g.edges()

	var batches [][]string
	remaining := len(g.specs)
	placed := make(map[string]bool, len(g.specs))
	for remaining > 0 {
		var batch []string
		for _, spec := range g.specs {
			if !placed[spec.ID] && indegree[spec.ID] == 0 {
				batch = append(batch, spec.ID)
			}
		}
		if len(batch) == 0 {
			return nil, ErrCycleDetected
		}
		for _, id := range batch {
			placed[id] = true
			for _, next := range dependents[id] {
				indegree[next]--
			}
		}
		remaining -= len(batch)
		batches = append(batches, batch)
	}
	return batches, nil
}

// edges derives the in-degree map and the reverse adjacency (dependency ->
// dependents) used by the scheduling algorithms.
func (g *TaskGraph) edges() (map[string]int, map[string][]string) {
	indegree := make(map[string]int, len(g.specs))
	dependents := make(map[string][]string, len(g.specs))
	for _, spec := range g.specs {
		indegree[spec.ID] += 0
		for _, dep := range spec.DependsOn {
			indegree[spec.ID]++
			dependents[dep] = append(dependents[dep], spec.ID)
		}
	}
	return indegree, dependents
}

// graphJSON is the serialized form of a TaskGraph. Insertion order is
// preserved by storing the specs as an array.
type graphJSON struct {
	Tasks []TaskSpec `json:"tasks"`
}

// MarshalJSON serializes the graph for job persistence.
func (g *TaskGraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{Tasks: g.specs})
}

// UnmarshalJSON restores a persisted graph. The stored graph was validated at
// construction time, so dependency and cycle checks are not repeated here.
func (g *TaskGraph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.specs = raw.Tasks
	g.index = make(map[string]int, len(raw.Tasks))
	for i, spec := range raw.Tasks {
		g.index[spec.ID] = i
	}
	return nil
}
