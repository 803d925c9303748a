// Package graph implements a dependency-tracked computation graph over named,
// versioned resource slots. Resources hold typed numeric buffers; producers
// derive downstream resources lazily, and explicit version snapshots decide
// what is stale, so repeated evaluations recompute only what changed.
package graph

import (
	"errors"
	"fmt"
	"sort"

	graphlib "github.com/dominikbraun/graph"
)

// Resource is a named slot in the graph: a buffer, its validation spec, the
// names it depends on, an optional producer, a monotonically increasing
// version, and a snapshot of dependency versions taken at the last bump.
type Resource struct {
	Name string
	Spec Spec
	Deps []string

	producer    Producer
	buffer      any
	version     uint64
	depVersions map[string]uint64
}

// Version returns the resource's current version. Zero means never committed.
func (r *Resource) Version() uint64 { return r.version }

// Buffer returns the current buffer without forcing a recompute.
func (r *Resource) Buffer() any { return r.buffer }

// stale reports whether the resource needs its producer to run. A resource
// with no producer is never stale; its writer decides when to bump it.
func (r *Resource) stale(g *Graph) bool {
	if r.producer == nil {
		return false
	}
	if r.version == 0 {
		return true
	}
	for _, dep := range r.Deps {
		snap, ok := r.depVersions[dep]
		if !ok {
			return true
		}
		var cur uint64
		if d, exists := g.resources[dep]; exists {
			cur = d.version
		}
		if cur != snap {
			return true
		}
	}
	return false
}

// Graph owns a set of resources and evaluates them on demand. It is not safe
// for concurrent mutation; one evaluation context per instance is assumed.
type Graph struct {
	resources map[string]*Resource
	names     []string // declaration order

	// deps mirrors the dependency edges for topological ordering and
	// export. Cycle detection during Ensure uses the visitation stack, not
	// this mirror, because edges to not-yet-declared names stay pending.
	deps    graphlib.Graph[string, string]
	pending map[string][]string // dep name -> dependents declared first

	stack []string // visitation stack of the current Ensure pass
}

// New creates an empty resource graph.
func New() *Graph {
	return &Graph{
		resources: make(map[string]*Resource),
		deps:      graphlib.New(graphlib.StringHash, graphlib.Directed()),
		pending:   make(map[string][]string),
	}
}

// Declare registers a new resource slot. The producer may be nil for
// externally written resources, or attached later with BindProducer.
// Declaring an existing name fails.
func (g *Graph) Declare(name string, spec Spec, deps []string, p Producer) (*Resource, error) {
	if _, exists := g.resources[name]; exists {
		return nil, &ValidationError{Resource: name, Reason: "already declared"}
	}

	r := &Resource{
		Name:     name,
		Spec:     spec,
		Deps:     append([]string(nil), deps...),
		producer: p,
	}
	g.resources[name] = r
	g.names = append(g.names, name)

	_ = g.deps.AddVertex(name)
	for _, dep := range deps {
		if _, exists := g.resources[dep]; exists {
			g.addDepEdge(dep, name)
		} else {
			g.pending[dep] = append(g.pending[dep], name)
		}
	}
	for _, dependent := range g.pending[name] {
		g.addDepEdge(name, dependent)
	}
	delete(g.pending, name)

	return r, nil
}

func (g *Graph) addDepEdge(dep, dependent string) {
	err := g.deps.AddEdge(dep, dependent)
	if err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) &&
		!errors.Is(err, graphlib.ErrEdgeCreatesCycle) {
		// Vertices are added eagerly, so only duplicate/cycle edges can
		// fail; cycles surface as CycleError at ensure time instead.
		panic(fmt.Sprintf("graph: add edge %s -> %s: %v", dep, dependent, err))
	}
}

// BindProducer attaches a producer to every resource it lists as an output.
// All outputs must already be declared.
func (g *Graph) BindProducer(p Producer) error {
	for _, name := range p.Outputs() {
		r, ok := g.resources[name]
		if !ok {
			return &NotFoundError{Resource: name}
		}
		r.producer = p
	}
	return nil
}

// Names returns all resource names in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// DepsOf returns the declared dependency names of a resource.
func (g *Graph) DepsOf(name string) ([]string, error) {
	r, ok := g.resources[name]
	if !ok {
		return nil, &NotFoundError{Resource: name}
	}
	return append([]string(nil), r.Deps...), nil
}

// HasProducer reports whether a resource is derived by a producer.
func (g *Graph) HasProducer(name string) bool {
	if r, ok := g.resources[name]; ok {
		return r.producer != nil
	}
	return false
}

// Version returns the current version of a resource, or zero if undeclared.
func (g *Graph) Version(name string) uint64 {
	if r, ok := g.resources[name]; ok {
		return r.version
	}
	return 0
}

// Stale reports whether a resource would recompute on the next Ensure.
func (g *Graph) Stale(name string) (bool, error) {
	r, ok := g.resources[name]
	if !ok {
		return false, &NotFoundError{Resource: name}
	}
	return r.stale(g), nil
}

// Peek returns the current buffer without ensuring freshness. A nil buffer is
// returned as nil; no error is raised.
func (g *Graph) Peek(name string) (any, error) {
	r, ok := g.resources[name]
	if !ok {
		return nil, &NotFoundError{Resource: name}
	}
	return r.buffer, nil
}

// Read returns the buffer of a resource. When ensure is set, the resource and
// its transitive dependencies are freshened first. A nil buffer on a
// non-nullable resource is a MissingInputError.
func (g *Graph) Read(name string, ensure bool) (any, error) {
	r, ok := g.resources[name]
	if !ok {
		return nil, &NotFoundError{Resource: name}
	}
	if ensure {
		if err := g.Ensure(name); err != nil {
			return nil, err
		}
	}
	if r.buffer == nil && !r.Spec.AllowNil {
		return nil, &MissingInputError{Resource: name}
	}
	return r.buffer, nil
}

// SetBuffer validates and replaces the stored buffer without marking the
// resource fresh. Use Commit (or a following Bump) to publish the change.
func (g *Graph) SetBuffer(name string, buf any) error {
	r, ok := g.resources[name]
	if !ok {
		return &NotFoundError{Resource: name}
	}
	if err := r.Spec.validate(g, name, buf); err != nil {
		return err
	}
	r.buffer = buf
	return nil
}

// SetBufferUnchecked replaces the stored buffer bypassing spec validation.
func (g *Graph) SetBufferUnchecked(name string, buf any) error {
	r, ok := g.resources[name]
	if !ok {
		return &NotFoundError{Resource: name}
	}
	r.buffer = buf
	return nil
}

// Commit optionally replaces the buffer, then bumps the resource.
func (g *Graph) Commit(name string, buf any) error {
	if buf != nil {
		if err := g.SetBuffer(name, buf); err != nil {
			return err
		}
	}
	return g.Bump(name)
}

// Bump validates the current buffer, increments the version, and snapshots
// the dependencies' current versions as the new freshness baseline. Producers
// call this (via Commit) after filling their outputs; external writers call
// it after mutating a leaf buffer in place.
func (g *Graph) Bump(name string) error {
	r, ok := g.resources[name]
	if !ok {
		return &NotFoundError{Resource: name}
	}
	if err := r.Spec.validate(g, name, r.buffer); err != nil {
		return err
	}
	r.version++
	r.depVersions = make(map[string]uint64, len(r.Deps))
	for _, dep := range r.Deps {
		if d, exists := g.resources[dep]; exists {
			r.depVersions[dep] = d.version
		} else {
			r.depVersions[dep] = 0
		}
	}
	return nil
}

// Ensure freshens a resource: dependencies are ensured recursively, and the
// resource's producer runs if any of its outputs is stale. Revisiting a name
// already on the visitation stack raises a CycleError. A producer that
// returns with a stale declared output raises a ContractError.
func (g *Graph) Ensure(name string) error {
	r, ok := g.resources[name]
	if !ok {
		return &NotFoundError{Resource: name}
	}
	for i, s := range g.stack {
		if s == name {
			path := append(append([]string(nil), g.stack[i:]...), name)
			return &CycleError{Path: path}
		}
	}
	if r.producer == nil {
		return nil
	}

	g.stack = append(g.stack, name)
	defer func() { g.stack = g.stack[:len(g.stack)-1] }()

	outs, err := g.producerOutputs(r.producer)
	if err != nil {
		return err
	}
	for _, dep := range unionDeps(outs) {
		if err := g.Ensure(dep); err != nil {
			return err
		}
	}

	stale := false
	for _, o := range outs {
		if o.stale(g) {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}

	if err := r.producer.Compute(g); err != nil {
		return fmt.Errorf("producer %s: %w", r.producer.Name(), err)
	}
	for _, o := range outs {
		if o.stale(g) {
			return &ContractError{Producer: r.producer.Name(), Output: o.Name}
		}
	}
	return nil
}

// producerOutputs resolves every declared output of a producer.
func (g *Graph) producerOutputs(p Producer) ([]*Resource, error) {
	names := p.Outputs()
	outs := make([]*Resource, 0, len(names))
	for _, name := range names {
		r, ok := g.resources[name]
		if !ok {
			return nil, &NotFoundError{Resource: name}
		}
		outs = append(outs, r)
	}
	return outs, nil
}

// unionDeps merges the dependency lists of a producer's outputs into a
// sorted, deduplicated evaluation list.
func unionDeps(outs []*Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, o := range outs {
		for _, dep := range o.Deps {
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
	}
	sort.Strings(deps)
	return deps
}

// TopoOrder returns a deterministic topological ordering of all resources.
// A cyclic declaration surfaces as a CycleError.
func (g *Graph) TopoOrder() ([]string, error) {
	order, err := graphlib.StableTopologicalSort(g.deps, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("topological order: %w", err)
	}
	return order, nil
}
