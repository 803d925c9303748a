package graph

// Producer derives one or more resources from their dependencies. A producer
// is attached to every resource it owns; when any of those outputs is stale,
// Ensure runs Compute exactly once and then verifies that every output was
// committed fresh.
//
// Compute reads inputs through handles (peeking or forcing as appropriate)
// and must write every declared output via a commit before returning.
type Producer interface {
	// Name identifies the producer in logs and errors.
	Name() string

	// Outputs lists the resource names this producer owns.
	Outputs() []string

	// Compute fills all outputs from the current dependency buffers.
	Compute(g *Graph) error
}
