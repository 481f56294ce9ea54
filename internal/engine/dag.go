package engine

import (
	"errors"

	"github.com/somauser/workflow-engine/pkg/types"
)

// ErrInvalidWorkflow is returned when a submitted workflow's declared
// dependencies, combined with the implicit transfer<->job edges, do not
// form a DAG.
var ErrInvalidWorkflow = errors.New("engine: invalid workflow (cycle or dangling reference)")

func nodeKey(n types.NodeID) string {
	if n.Kind == types.NodeKindJob {
		return "j:" + string(n.Job)
	}
	return "t:" + string(n.Xfer)
}

// closureFor builds the complete full-dependency-closure for a workflow:
// declared edges plus, for every job in the workflow, its implicit
// transfer<->job edges.
func closureFor(jobs []*types.Job, declared []types.DependencyEdge) []types.DependencyEdge {
	closure := append([]types.DependencyEdge(nil), declared...)
	for _, j := range jobs {
		for _, in := range j.InputTransfers {
			closure = append(closure, types.DependencyEdge{From: types.TransferNode(in), To: types.JobNode(j.ID)})
		}
		for _, out := range j.OutputTransfers {
			closure = append(closure, types.DependencyEdge{From: types.JobNode(j.ID), To: types.TransferNode(out)})
		}
	}
	return closure
}

// validateDAG runs Kahn's algorithm over the closure restricted to the
// given node set; a cycle is detected when not every node can be removed.
func validateDAG(nodes []types.NodeID, edges []types.DependencyEdge) error {
	inDegree := make(map[string]int, len(nodes))
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inDegree[nodeKey(n)] = 0
		present[nodeKey(n)] = true
	}

	adj := make(map[string][]string)
	for _, e := range edges {
		fk, tk := nodeKey(e.From), nodeKey(e.To)
		if !present[fk] || !present[tk] {
			return ErrInvalidWorkflow
		}
		adj[fk] = append(adj[fk], tk)
		inDegree[tk]++
	}

	var queue []string
	for k, d := range inDegree {
		if d == 0 {
			queue = append(queue, k)
		}
	}

	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[n] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodes) {
		return ErrInvalidWorkflow
	}
	return nil
}

// predecessors returns the nodes u with an edge u -> n in edges; a node is
// ready once every one of them is in a terminal success state (§4.4's
// readiness rule).
func predecessors(edges []types.DependencyEdge, n types.NodeID) []types.NodeID {
	var preds []types.NodeID
	key := nodeKey(n)
	for _, e := range edges {
		if nodeKey(e.To) == key {
			preds = append(preds, e.From)
		}
	}
	return preds
}

func successors(edges []types.DependencyEdge, n types.NodeID) []types.NodeID {
	var succ []types.NodeID
	key := nodeKey(n)
	for _, e := range edges {
		if nodeKey(e.From) == key {
			succ = append(succ, e.To)
		}
	}
	return succ
}
