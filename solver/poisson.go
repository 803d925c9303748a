// Package solver solves the Dirichlet-constrained Poisson problem on the
// vertex cotangent Laplacian: on free vertices sum_j w_ij*(u_i - u_j) =
// rhs_i, with u fixed on constrained vertices. The linear solve is a
// warm-started, optionally Jacobi-preconditioned conjugate gradient over a
// cached CSR-like adjacency.
package solver

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"

	"github.com/RudreshVeerkhare/rheidos/dispatch"
	"github.com/RudreshVeerkhare/rheidos/graph"
)

// Stop is the solver's stop code. Breakdown and max-iterations are states,
// not errors: the best-effort field is still committed.
type Stop int32

const (
	StopRunning Stop = iota
	StopConverged
	StopMaxIter
	StopBreakdown
)

func (s Stop) String() string {
	switch s {
	case StopRunning:
		return "running"
	case StopConverged:
		return "converged"
	case StopMaxIter:
		return "max-iterations"
	case StopBreakdown:
		return "breakdown"
	default:
		return fmt.Sprintf("Stop(%d)", int32(s))
	}
}

// Absolute thresholds of the stop tests. Deliberately not scaled by mesh
// size or weight magnitude; see DESIGN.md before changing.
const (
	energyFloor  = 1e-30 // initial residual energy below this: already solved
	breakdownEps = 1e-30 // pAp at or below this: operator not SPD here
)

// Names binds the solver's input and output slots to resource names.
type Names struct {
	Edges    string
	Weights  string
	Mask     string
	Value    string
	RHS      string
	Solution string
}

// Poisson is the solver producer. It owns the solution buffer (previous free
// values seed the next solve), the adjacency cache, the CG scratch vectors,
// and the scalar reduction registers read back at block boundaries.
type Poisson struct {
	cfg  Config
	pool *dispatch.Pool
	log  *log.Logger

	edges   graph.Handle
	weights graph.Handle
	mask    graph.Handle
	value   graph.Handle
	rhs     graph.Handle
	u       graph.Handle

	adj  Adjacency
	uBuf []float64

	// CG scratch: residual, search direction, preconditioned residual,
	// operator application, Jacobi diagonal.
	r, p, z, ap, diag []float64

	// Reduction registers and stop state, polled every PollBlock
	// iterations.
	stop  Stop
	iters int
	rz    float64
	rz0   float64
}

// NewPoisson resolves handles for all slots once.
func NewPoisson(g *graph.Graph, names Names, cfg Config, pool *dispatch.Pool, logger *log.Logger) (*Poisson, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Poisson{cfg: cfg.withDefaults(), pool: pool, log: logger}

	var err error
	if s.edges, err = g.Handle(names.Edges, graph.Int32, 2); err != nil {
		return nil, err
	}
	if s.weights, err = g.Handle(names.Weights, graph.Float64, 1); err != nil {
		return nil, err
	}
	if s.mask, err = g.Handle(names.Mask, graph.Int32, 1); err != nil {
		return nil, err
	}
	if s.value, err = g.Handle(names.Value, graph.Float64, 1); err != nil {
		return nil, err
	}
	if s.rhs, err = g.Handle(names.RHS, graph.Float64, 1); err != nil {
		return nil, err
	}
	if s.u, err = g.Handle(names.Solution, graph.Float64, 1); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Poisson) Name() string { return "poisson" }

func (s *Poisson) Outputs() []string { return []string{s.u.Name()} }

// Status returns the stop code and iteration count of the last solve.
func (s *Poisson) Status() (Stop, int) { return s.stop, s.iters }

// ResidualEnergy returns dot(r,z) at the last poll, relative to its initial
// value. Zero when the initial residual already satisfied the system.
func (s *Poisson) ResidualEnergy() float64 {
	if s.rz0 <= energyFloor {
		return 0
	}
	return s.rz / s.rz0
}

func (s *Poisson) Compute(g *graph.Graph) error {
	edges, err := s.edges.Int32s(true)
	if err != nil {
		return err
	}
	w, err := s.weights.Float64s(true)
	if err != nil {
		return err
	}
	mask, err := s.mask.Int32s(true)
	if err != nil {
		return err
	}
	value, err := s.value.Float64s(true)
	if err != nil {
		return err
	}
	rhs, err := s.rhs.Float64s(true) // nullable: nil means zero
	if err != nil {
		return err
	}

	nV := len(mask)
	nE := len(edges) / 2
	if len(value) != nV {
		return fmt.Errorf("constraint value length %d does not match mask length %d", len(value), nV)
	}
	if len(w) != nE {
		return fmt.Errorf("weight length %d does not match edge count %d", len(w), nE)
	}
	if rhs != nil && len(rhs) != nV {
		return fmt.Errorf("rhs length %d does not match vertex count %d", len(rhs), nV)
	}

	// Warm start: keep previous free values when the vertex count is
	// unchanged.
	if len(s.uBuf) != nV {
		s.uBuf = make([]float64, nV)
	}
	if len(s.r) != nV {
		s.r = make([]float64, nV)
		s.p = make([]float64, nV)
		s.z = make([]float64, nV)
		s.ap = make([]float64, nV)
		s.diag = make([]float64, nV)
	}

	if s.cfg.AlwaysRebuildTopology || !s.adj.Matches(nV, edges) {
		s.adj.Build(nV, edges, w)
		s.log.Debug("adjacency rebuilt", "verts", nV, "edges", nE)
	} else {
		s.adj.Refresh(w)
		s.log.Debug("weights refreshed", "edges", nE)
	}

	s.initIteration(mask, value, rhs)

	if s.rz0 <= energyFloor {
		// Nothing to solve: every row is either constrained or already
		// satisfied by the warm-started field.
		s.stop = StopConverged
		return s.u.Commit(s.uBuf)
	}

	for s.stop == StopRunning {
		s.runBlock(mask)
		// Host sync point: the stop register and residual energy are
		// read back only here, once per block.
		s.log.Debug("cg block", "iters", s.iters, "relative_energy", s.rz/s.rz0, "stop", s.stop)
	}

	s.log.Debug("solve finished", "stop", s.stop, "iters", s.iters)

	// The field is committed on every stop condition; breakdown and
	// max-iterations yield a usable best-effort field.
	return s.u.Commit(s.uBuf)
}

// initIteration enforces the Dirichlet values, computes the initial residual
// and preconditioned direction, and loads the reduction registers.
func (s *Poisson) initIteration(mask []int32, value, rhs []float64) {
	nV := len(mask)

	// Constrained rows take their fixed value; free rows keep the previous
	// solution as the warm start.
	s.pool.For(nV, s.cfg.Grain, func(start, end int) {
		for i := start; i < end; i++ {
			if mask[i] != 0 {
				s.uBuf[i] = value[i]
			}
		}
	})

	s.adj.Apply(s.uBuf, s.ap, mask, s.pool, s.cfg.Grain)
	s.pool.For(nV, s.cfg.Grain, func(start, end int) {
		for i := start; i < end; i++ {
			if mask[i] != 0 {
				s.r[i] = 0
				continue
			}
			b := 0.0
			if rhs != nil {
				b = rhs[i]
			}
			s.r[i] = b - s.ap[i]
		}
	})

	if s.cfg.UseJacobi {
		s.adj.RowSums(s.diag, s.pool, s.cfg.Grain)
	}
	s.applyPreconditioner(mask)
	copy(s.p, s.z)

	s.rz = floats.Dot(s.r, s.z)
	s.rz0 = s.rz
	s.stop = StopRunning
	s.iters = 0
}

// applyPreconditioner sets z = r/diag (Jacobi) or z = r on free rows and
// z = 0 on constrained rows. A vanishing diagonal falls back to the
// unpreconditioned residual.
func (s *Poisson) applyPreconditioner(mask []int32) {
	s.pool.For(len(mask), s.cfg.Grain, func(start, end int) {
		for i := start; i < end; i++ {
			if mask[i] != 0 {
				s.z[i] = 0
				continue
			}
			if s.cfg.UseJacobi {
				d := s.diag[i]
				if math.Abs(d) > energyFloor {
					s.z[i] = s.r[i] / d
					continue
				}
			}
			s.z[i] = s.r[i]
		}
	})
}

// runBlock issues up to PollBlock CG iterations. Each iteration updates the
// stop register device-side; the host only reads it back after the block.
// r, z, p and ap are identically zero on constrained rows, so the whole-
// vector dot products and axpy updates never move a constrained value.
func (s *Poisson) runBlock(mask []int32) {
	for it := 0; it < s.cfg.PollBlock && s.stop == StopRunning; it++ {
		s.adj.Apply(s.p, s.ap, mask, s.pool, s.cfg.Grain)
		pAp := floats.Dot(s.p, s.ap)
		if pAp <= breakdownEps {
			// Operator not positive-definite on this configuration,
			// e.g. non-Delaunay cotangent weights went negative.
			s.stop = StopBreakdown
			return
		}

		alpha := s.rz / pAp
		floats.AddScaled(s.uBuf, alpha, s.p)
		floats.AddScaled(s.r, -alpha, s.ap)

		s.applyPreconditioner(mask)
		rzNew := floats.Dot(s.r, s.z)
		s.iters++

		switch {
		case rzNew <= s.cfg.Tol*s.cfg.Tol*s.rz0:
			s.rz = rzNew
			s.stop = StopConverged
		case s.iters >= s.cfg.MaxIter:
			s.rz = rzNew
			s.stop = StopMaxIter
		default:
			beta := rzNew / s.rz
			floats.Scale(beta, s.p)
			floats.Add(s.p, s.z)
			s.rz = rzNew
		}
	}
}
