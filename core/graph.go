package core

import (
	"context"
	"fmt"

	"sync"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"
)

// Graph is the arena for operations and their dependency edges. The edge set must
// stay acyclic: AddDependency rejects any edge that would close a cycle, leaving
// the graph unchanged.
type Graph struct {
	mu         sync.Mutex
	ops        map[uuid.UUID]*Operation
	deps       map[uuid.UUID]map[uuid.UUID]struct{} // id -> ids it depends on
	dependents map[uuid.UUID][]uuid.UUID            // id -> ids depending on it
	finished   map[uuid.UUID]Result
}

// NewGraph creates an empty operation graph.
func NewGraph() *Graph {
	return &Graph{
		ops:        make(map[uuid.UUID]*Operation),
		deps:       make(map[uuid.UUID]map[uuid.UUID]struct{}),
		dependents: make(map[uuid.UUID][]uuid.UUID),
		finished:   make(map[uuid.UUID]Result),
	}
}

// NewOperation creates an operation in this graph. The operation is not submitted
// to any queue yet; dependencies may be added until submission.
func (g *Graph) NewOperation(action Action, opts ...OperationOption) *Operation {
	ctx, cancel := context.WithCancel(context.Background())
	op := &Operation{
		graph:     g,
		ctx:       ctx,
		cancelCtx: cancel,
	}
	op.item = newWorkItem(resolveActionName(action, ""), action)
	op.item.op = op
	for _, opt := range opts {
		opt(op)
	}

	g.mu.Lock()
	g.ops[op.item.id] = op
	g.mu.Unlock()
	return op
}

// Len returns the number of operations in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ops)
}

// AddDependency records that op must not start before dependsOn has finished.
// It fails with ErrCycleDetected when the edge would create a cycle (checked by a
// reachability probe from dependsOn back to op before the edge commits), with
// ErrUnknownOperation when either operation belongs to another graph, and with
// ErrOperationSubmitted when op has already been handed to a queue. On any error
// the graph is left unchanged.
func (g *Graph) AddDependency(op, dependsOn *Operation) error {
	if op == nil || dependsOn == nil {
		return ErrUnknownOperation
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ops[op.item.id] != op || g.ops[dependsOn.item.id] != dependsOn {
		return ErrUnknownOperation
	}
	if op == dependsOn {
		return fmt.Errorf("%w: operation cannot depend on itself", ErrCycleDetected)
	}
	op.mu.Lock()
	submitted := op.submitted
	op.mu.Unlock()
	if submitted {
		return ErrOperationSubmitted
	}
	if g.reachableLocked(dependsOn.item.id, op.item.id) {
		return ErrCycleDetected
	}

	edges := g.deps[op.item.id]
	if edges == nil {
		edges = make(map[uuid.UUID]struct{})
		g.deps[op.item.id] = edges
	}
	if _, dup := edges[dependsOn.item.id]; dup {
		return nil
	}
	edges[dependsOn.item.id] = struct{}{}

	if res, done := g.finished[dependsOn.item.id]; done {
		// Dependency already terminal; the ordering constraint is satisfied,
		// only a propagated fault is still of interest.
		op.noteFinishedDep(res)
		return nil
	}
	g.dependents[dependsOn.item.id] = append(g.dependents[dependsOn.item.id], op.item.id)
	op.addPendingDep()
	return nil
}

// reachableLocked walks dependency edges depth-first from one operation and
// reports whether it can reach the target.
func (g *Graph) reachableLocked(from, target uuid.UUID) bool {
	if from == target {
		return true
	}
	seen := map[uuid.UUID]struct{}{from: {}}
	stack := []uuid.UUID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dep := range g.deps[id] {
			if dep == target {
				return true
			}
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			stack = append(stack, dep)
		}
	}
	return false
}

// Dependencies returns the ids op depends on.
func (g *Graph) Dependencies(op *Operation) []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uuid.UUID, 0, len(g.deps[op.item.id]))
	for id := range g.deps[op.item.id] {
		out = append(out, id)
	}
	return out
}

// Order returns the operations in a topological order: every operation appears
// after all of its dependencies.
func (g *Graph) Order() ([]*Operation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var edges []toposort.Edge
	for id := range g.ops {
		if len(g.deps[id]) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for dep := range g.deps[id] {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}

	order := make([]*Operation, 0, len(g.ops))
	for _, v := range sorted {
		if v == nil {
			continue
		}
		if op, ok := g.ops[v.(uuid.UUID)]; ok {
			order = append(order, op)
		}
	}
	return order, nil
}

// operationFinished records the terminal result and releases dependents whose last
// dependency this was. Queue kicks happen outside the graph lock; they take the
// queue's own mutex.
func (g *Graph) operationFinished(op *Operation, res Result) {
	g.mu.Lock()
	g.finished[op.item.id] = res
	waiting := g.dependents[op.item.id]
	delete(g.dependents, op.item.id)

	var kicks []*Queue
	for _, id := range waiting {
		dependent, ok := g.ops[id]
		if !ok {
			continue
		}
		if q := dependent.depSatisfied(res); q != nil {
			kicks = append(kicks, q)
		}
	}
	g.mu.Unlock()

	for _, q := range kicks {
		q.kick()
	}
}
