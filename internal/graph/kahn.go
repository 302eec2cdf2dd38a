package graph

import (
	"container/list"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ProcessingQueue wraps a list-based queue for Kahn's algorithm processing.
// It holds nodes that are ready to be processed (have in-degree of 0).
type ProcessingQueue struct {
	queue *list.List
}

// NewProcessingQueue creates a new empty processing queue.
func NewProcessingQueue() *ProcessingQueue {
	return &ProcessingQueue{
		queue: list.New(),
	}
}

// InitializeQueue creates a processing queue populated with all nodes that
// have in-degree of 0 (no subtypes), in name order.
func (h *Hierarchy) InitializeQueue(inDegree map[string]int) *ProcessingQueue {
	pq := NewProcessingQueue()

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	slices.Sort(ready)
	for _, name := range ready {
		pq.Enqueue(name)
	}

	return pq
}

// Enqueue adds a node to the back of the queue.
func (pq *ProcessingQueue) Enqueue(node string) {
	pq.queue.PushBack(node)
}

// Dequeue removes and returns the node at the front of the queue.
// Returns empty string and false if queue is empty.
func (pq *ProcessingQueue) Dequeue() (string, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(string), true
}

// Len returns the number of nodes in the queue.
func (pq *ProcessingQueue) Len() int {
	return pq.queue.Len()
}

// IsEmpty returns true if the queue has no nodes.
func (pq *ProcessingQueue) IsEmpty() bool {
	return pq.queue.Len() == 0
}

// CalculateInDegrees computes the number of incoming edges (direct subtypes)
// for each node. This is the first step of Kahn's algorithm.
func (h *Hierarchy) CalculateInDegrees() map[string]int {
	inDegree := make(map[string]int, len(h.Nodes))

	// Initialize all nodes with 0
	for name := range h.Nodes {
		inDegree[name] = 0
	}

	// Count incoming edges by iterating through all supertype relationships
	for _, supers := range h.Supers {
		for _, super := range supers {
			inDegree[super]++
		}
	}

	return inDegree
}

// ErrCycleDetected is returned when the type hierarchy contains a cycle,
// making topological sorting impossible.
var ErrCycleDetected = errors.New("cycle detected in type hierarchy")

// CycleInfo contains information about incomplete processing due to cycles.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the hierarchy
	ProcessedNodes    int      // Number of nodes successfully processed
	UnprocessedNodes  []string // Nodes that couldn't be processed (part of or blocked by cycle)
	CycleParticipants []string // Nodes that are actually part of a cycle (subset of UnprocessedNodes)
	CyclePath         []string // Ordered path showing the cycle (e.g., [A, B, C, A])
}

// CycleError represents a cycle detection error with detailed information about
// which types are involved and which are blocked by the cycle.
type CycleError struct {
	Info *CycleInfo
}

// Error implements the error interface with a descriptive message that includes
// the types in the cycle and any types blocked by the cycle.
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("%s: %d of %d types could not be ordered",
		ErrCycleDetected.Error(), len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	// Show the cycle path if available
	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}

	// List types that are actually part of the cycle
	if len(e.Info.CycleParticipants) > 0 {
		msg += fmt.Sprintf("\nTypes in cycle: %s", strings.Join(e.Info.CycleParticipants, ", "))
	}

	// List types that are blocked by the cycle but not part of it
	if len(e.Info.UnprocessedNodes) > len(e.Info.CycleParticipants) {
		participantSet := make(map[string]bool)
		for _, p := range e.Info.CycleParticipants {
			participantSet[p] = true
		}

		var blocked []string
		for _, u := range e.Info.UnprocessedNodes {
			if !participantSet[u] {
				blocked = append(blocked, u)
			}
		}

		if len(blocked) > 0 {
			msg += fmt.Sprintf("\nTypes blocked by cycle: %s", strings.Join(blocked, ", "))
		}
	}

	return msg
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// DetectIncompleteProcessing runs Kahn's algorithm and returns information
// about any nodes that couldn't be processed. If all nodes are processed,
// returns nil (no cycle).
func (h *Hierarchy) DetectIncompleteProcessing() *CycleInfo {
	inDegree := h.CalculateInDegrees()
	queue := h.InitializeQueue(inDegree)

	processed := make(map[string]bool)

	// Process all reachable nodes
	for !queue.IsEmpty() {
		node, _ := queue.Dequeue()
		processed[node] = true

		for _, super := range h.GetSupers(node) {
			inDegree[super]--
			if inDegree[super] == 0 {
				queue.Enqueue(super)
			}
		}
	}

	// Check if all nodes were processed
	if len(processed) == len(h.Nodes) {
		return nil // No cycle detected
	}

	// Collect unprocessed nodes
	var unprocessed []string
	for _, name := range h.AllNodes() {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
		}
	}

	unprocessedSet := make(map[string]bool)
	for _, node := range unprocessed {
		unprocessedSet[node] = true
	}

	// Find actual cycle participants
	var cycleParticipants []string
	for _, node := range unprocessed {
		if h.canReachSelf(node, unprocessedSet) {
			cycleParticipants = append(cycleParticipants, node)
		}
	}

	// Find the actual cycle path for better error messages
	var cyclePath []string
	if len(cycleParticipants) > 0 {
		cyclePath = h.FindCyclePath(cycleParticipants[0], unprocessedSet)
	}

	return &CycleInfo{
		TotalNodes:        len(h.Nodes),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: cycleParticipants,
		CyclePath:         cyclePath,
	}
}

// HasCycle returns true if the hierarchy contains a cycle.
func (h *Hierarchy) HasCycle() bool {
	return h.DetectIncompleteProcessing() != nil
}

// FindCyclePath finds the actual path that forms a cycle starting from the given node.
// Returns the ordered list of nodes forming the cycle (including the start node at both ends).
func (h *Hierarchy) FindCyclePath(start string, allowedNodes map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}

	if h.dfsFindPath(start, start, visited, allowedNodes, &path) {
		return path
	}

	return nil
}

// dfsFindPath performs DFS to find a path back to the target node.
func (h *Hierarchy) dfsFindPath(current, target string, visited, allowedNodes map[string]bool, path *[]string) bool {
	for _, super := range h.GetSupers(current) {
		if !allowedNodes[super] {
			continue
		}

		// Found path back to target - append target to complete the cycle
		if super == target {
			*path = append(*path, target)
			return true
		}

		if visited[super] {
			continue
		}

		visited[super] = true
		*path = append(*path, super)

		if h.dfsFindPath(super, target, visited, allowedNodes, path) {
			return true
		}

		// Backtrack
		*path = (*path)[:len(*path)-1]
	}

	return false
}

// canReachSelf checks if a node can reach itself through the subgraph
// defined by the allowedNodes set.
func (h *Hierarchy) canReachSelf(start string, allowedNodes map[string]bool) bool {
	visited := make(map[string]bool)
	return h.dfsCanReach(start, start, visited, allowedNodes, true)
}

// dfsCanReach performs DFS to check if we can reach the target node.
// isStart is true only for the initial call to avoid immediate self-match.
func (h *Hierarchy) dfsCanReach(current, target string, visited, allowedNodes map[string]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}

	if visited[current] || !allowedNodes[current] {
		return false
	}

	visited[current] = true

	for _, super := range h.GetSupers(current) {
		if h.dfsCanReach(super, target, visited, allowedNodes, false) {
			return true
		}
	}

	return false
}

// TopologicalSort returns types in topological order using Kahn's algorithm:
// every type appears before its supertypes. Ties are broken by name so the
// order is deterministic. Returns a *CycleError if the hierarchy has a cycle.
func (h *Hierarchy) TopologicalSort() ([]string, error) {
	inDegree := h.CalculateInDegrees()
	queue := h.InitializeQueue(inDegree)

	result := make([]string, 0, len(h.Nodes))

	for !queue.IsEmpty() {
		node, _ := queue.Dequeue()
		result = append(result, node)

		for _, super := range h.GetSupers(node) {
			inDegree[super]--
			if inDegree[super] == 0 {
				queue.Enqueue(super)
			}
		}
	}

	if len(result) != len(h.Nodes) {
		return nil, &CycleError{Info: h.DetectIncompleteProcessing()}
	}

	return result, nil
}

// SupertypesFirst returns the reverse topological order: every type appears
// after all of its supertypes.
func (h *Hierarchy) SupertypesFirst() ([]string, error) {
	order, err := h.TopologicalSort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}

// Validate checks the hierarchy for cycles. A cycle does not stop discovery;
// it is reported as a diagnostic.
func (h *Hierarchy) Validate() error {
	if cycleInfo := h.DetectIncompleteProcessing(); cycleInfo != nil {
		return &CycleError{Info: cycleInfo}
	}
	return nil
}
