// Package session wires the DEC resource scope: it declares the mesh,
// metric, constraint and solution resources on one resource graph, binds the
// topology, metric and Poisson producers, and gives callers an explicit
// create/reset/close lifecycle around that evaluation context.
package session

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/RudreshVeerkhare/rheidos/dispatch"
	"github.com/RudreshVeerkhare/rheidos/graph"
	"github.com/RudreshVeerkhare/rheidos/mesh"
	"github.com/RudreshVeerkhare/rheidos/metric"
	"github.com/RudreshVeerkhare/rheidos/solver"
)

// Resource names of the DEC scope. External collaborators write the leaves
// (x, tris, mask, value, rhs) and read back u.
const (
	ResPositions = "x"
	ResFaces     = "tris"
	ResMask      = "mask"
	ResValue     = "value"
	ResRHS       = "rhs"

	ResEdges        = "edges"
	ResEdgeFaces    = "edgeFaces"
	ResEdgeOpp      = "edgeOpp"
	ResFaceEdges    = "faceEdges"
	ResFaceEdgeSign = "faceEdgeSign"

	ResFaceArea   = "faceArea"
	ResFaceNormal = "faceNormal"
	ResStar0      = "star0"
	ResStar1      = "star1"

	ResSolution = "u"
)

// Session is one evaluation context: a resource graph, its producers, and
// the dispatch pool they share. A session is single-threaded; create one per
// concurrent evaluation context.
type Session struct {
	ID uuid.UUID

	cfg  Config
	log  *log.Logger
	pool *dispatch.Pool

	g    *graph.Graph
	topo *mesh.Builder
	met  *metric.Producer
	poi  *solver.Poisson
}

// New creates a session with a freshly wired DEC scope.
func New(cfg Config, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		ID:   uuid.New(),
		cfg:  cfg,
		log:  logger,
		pool: dispatch.NewPool(cfg.Workers),
	}
	if err := s.build(); err != nil {
		s.pool.Close()
		return nil, err
	}
	s.log.Debug("session created", "id", s.ID)
	return s, nil
}

// Reset discards all graph state (buffers, versions, caches) and rewires the
// scope. The session keeps its identity and worker pool.
func (s *Session) Reset() error {
	if err := s.build(); err != nil {
		return err
	}
	s.log.Debug("session reset", "id", s.ID)
	return nil
}

// Close releases the worker pool. The session must not be used afterwards.
func (s *Session) Close() {
	s.pool.Close()
}

// Graph exposes the underlying resource graph for direct declare/read/commit
// access.
func (s *Session) Graph() *graph.Graph { return s.g }

func (s *Session) build() error {
	g := graph.New()

	leaf := func(name string, spec graph.Spec) error {
		_, err := g.Declare(name, spec, nil, nil)
		return err
	}
	derived := func(name string, spec graph.Spec, deps []string) error {
		_, err := g.Declare(name, spec, deps, nil)
		return err
	}

	vertexShape := countShape(ResPositions, 3)
	faceShape := countShape(ResFaces, 3)
	edgeShape := countShape(ResEdges, 2)

	decls := []error{
		leaf(ResPositions, graph.Spec{DType: graph.Float64, Lanes: 3}),
		leaf(ResFaces, graph.Spec{DType: graph.Int32, Lanes: 3}),
		leaf(ResMask, graph.Spec{DType: graph.Int32, ShapeFn: vertexShape}),
		leaf(ResValue, graph.Spec{DType: graph.Float64, ShapeFn: vertexShape}),
		leaf(ResRHS, graph.Spec{DType: graph.Float64, ShapeFn: vertexShape, AllowNil: true}),

		derived(ResEdges, graph.Spec{DType: graph.Int32, Lanes: 2}, []string{ResFaces}),
		derived(ResEdgeFaces, graph.Spec{DType: graph.Int32, Lanes: 2, ShapeFn: edgeShape}, []string{ResFaces}),
		derived(ResEdgeOpp, graph.Spec{DType: graph.Int32, Lanes: 2, ShapeFn: edgeShape}, []string{ResFaces}),
		derived(ResFaceEdges, graph.Spec{DType: graph.Int32, Lanes: 3, ShapeFn: faceShape}, []string{ResFaces}),
		derived(ResFaceEdgeSign, graph.Spec{DType: graph.Int32, Lanes: 3, ShapeFn: faceShape}, []string{ResFaces}),

		derived(ResFaceArea, graph.Spec{DType: graph.Float64, ShapeFn: faceShape}, []string{ResPositions, ResFaces}),
		derived(ResFaceNormal, graph.Spec{DType: graph.Float64, Lanes: 3, ShapeFn: faceShape}, []string{ResPositions, ResFaces}),
		derived(ResStar0, graph.Spec{DType: graph.Float64, ShapeFn: vertexShape}, []string{ResPositions, ResFaces}),
		derived(ResStar1, graph.Spec{DType: graph.Float64, ShapeFn: edgeShape}, []string{ResPositions, ResEdges, ResEdgeOpp}),

		derived(ResSolution, graph.Spec{DType: graph.Float64, ShapeFn: vertexShape},
			[]string{ResEdges, ResStar1, ResMask, ResValue, ResRHS}),
	}
	for _, err := range decls {
		if err != nil {
			return fmt.Errorf("declare scope: %w", err)
		}
	}

	topo, err := mesh.NewBuilder(g, mesh.Names{
		Faces:        ResFaces,
		Edges:        ResEdges,
		EdgeFaces:    ResEdgeFaces,
		EdgeOpp:      ResEdgeOpp,
		FaceEdges:    ResFaceEdges,
		FaceEdgeSign: ResFaceEdgeSign,
	}, true, s.log)
	if err != nil {
		return err
	}

	met, err := metric.NewProducer(g, metric.Names{
		Positions:  ResPositions,
		Faces:      ResFaces,
		Edges:      ResEdges,
		EdgeOpp:    ResEdgeOpp,
		FaceArea:   ResFaceArea,
		FaceNormal: ResFaceNormal,
		Star0:      ResStar0,
		Star1:      ResStar1,
	}, s.pool, s.cfg.Solver.Grain, s.log)
	if err != nil {
		return err
	}

	poi, err := solver.NewPoisson(g, solver.Names{
		Edges:    ResEdges,
		Weights:  ResStar1,
		Mask:     ResMask,
		Value:    ResValue,
		RHS:      ResRHS,
		Solution: ResSolution,
	}, s.cfg.Solver, s.pool, s.log)
	if err != nil {
		return err
	}

	for _, p := range []graph.Producer{topo, met, poi} {
		if err := g.BindProducer(p); err != nil {
			return err
		}
	}

	s.g = g
	s.topo = topo
	s.met = met
	s.poi = poi
	return nil
}

// countShape builds a ShapeFunc returning the element count of an upstream
// buffer (its length divided by the lane width).
func countShape(name string, lanes int) graph.ShapeFunc {
	return func(g *graph.Graph) ([]int, error) {
		buf, err := g.Peek(name)
		if err != nil {
			return nil, err
		}
		switch v := buf.(type) {
		case []float64:
			return []int{len(v) / lanes}, nil
		case []int32:
			return []int{len(v) / lanes}, nil
		case nil:
			return nil, &graph.MissingInputError{Resource: name}
		default:
			return nil, &graph.ValidationError{Resource: name, Reason: fmt.Sprintf("unexpected buffer type %T", buf)}
		}
	}
}

// SetMesh writes the raw vertex and triangle buffers. Everything derived
// from them becomes stale and recomputes on the next Solve.
func (s *Session) SetMesh(x []float64, tris []int32) error {
	if err := s.g.Commit(ResPositions, x); err != nil {
		return err
	}
	return s.g.Commit(ResFaces, tris)
}

// SetConstraints writes the Dirichlet mask and values. Any nonzero mask
// entry marks its vertex constrained. The mesh must be set first; lengths
// are validated against the current vertex count.
func (s *Session) SetConstraints(mask []int32, value []float64) error {
	if err := s.g.Commit(ResMask, mask); err != nil {
		return err
	}
	return s.g.Commit(ResValue, value)
}

// SetRHS writes the optional right-hand side; nil restores the harmonic
// (zero) default.
func (s *Session) SetRHS(rhs []float64) error {
	if rhs == nil {
		if err := s.g.SetBuffer(ResRHS, nil); err != nil {
			return err
		}
		return s.g.Bump(ResRHS)
	}
	return s.g.Commit(ResRHS, rhs)
}

// Solve ensures the solution field and returns it. Recomputes only what is
// stale; an unchanged scope returns the cached field untouched.
func (s *Session) Solve() ([]float64, error) {
	buf, err := s.g.Read(ResSolution, true)
	if err != nil {
		return nil, err
	}
	return buf.([]float64), nil
}

// Field returns the current solution buffer without forcing a recompute.
// Nil until the first Solve.
func (s *Session) Field() []float64 {
	buf, err := s.g.Peek(ResSolution)
	if err != nil {
		return nil
	}
	u, _ := buf.([]float64)
	return u
}

// Status returns the solver stop code and iteration count of the last
// solve, so consumers can distinguish converged from best-effort fields.
func (s *Session) Status() (solver.Stop, int) {
	return s.poi.Status()
}

// Plan returns the deterministic evaluation order of the scope.
func (s *Session) Plan() ([]string, error) {
	return s.g.TopoOrder()
}
