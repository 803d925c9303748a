package solver

import (
	"github.com/RudreshVeerkhare/rheidos/dispatch"
)

// Adjacency is the CSR-like neighbor structure behind the Laplacian: per
// vertex a degree, prefix-sum offsets, and flattened neighbor/weight arrays.
// edgeSlots maps each undirected edge to its two directed slots so weights
// can be refreshed in place when only the geometry changed.
type Adjacency struct {
	NVerts int
	NEdges int

	Degree  []int32
	Offsets []int32 // len NVerts+1
	Cols    []int32 // len 2*NEdges
	Weights []float64

	edgeSlots  []int32 // len 2*NEdges
	cursor     []int32
	edgesFirst *int32 // identity of the edge array of the last build
}

// Matches reports whether the cached structure fits the given mesh: same
// vertex and edge counts and the same edge-array identity. A topology
// producer that did not rerun hands out the same backing array, so identity
// is a sound cheap proxy for unchanged connectivity. Config's
// AlwaysRebuildTopology bypasses this heuristic entirely.
func (a *Adjacency) Matches(nV int, edges []int32) bool {
	if a.NVerts != nV || a.NEdges != len(edges)/2 {
		return false
	}
	if len(edges) == 0 {
		return a.edgesFirst == nil
	}
	return a.edgesFirst == &edges[0]
}

// Build reconstructs the CSR structure: count incident half-edges, prefix-sum
// degrees into offsets, then allocate one directed slot per endpoint of each
// edge via per-vertex fill cursors.
func (a *Adjacency) Build(nV int, edges []int32, w []float64) {
	nE := len(edges) / 2
	a.NVerts, a.NEdges = nV, nE
	if nE > 0 {
		a.edgesFirst = &edges[0]
	} else {
		a.edgesFirst = nil
	}

	if len(a.Degree) != nV {
		a.Degree = make([]int32, nV)
		a.Offsets = make([]int32, nV+1)
		a.cursor = make([]int32, nV)
	}
	if len(a.Cols) != 2*nE {
		a.Cols = make([]int32, 2*nE)
		a.Weights = make([]float64, 2*nE)
		a.edgeSlots = make([]int32, 2*nE)
	}

	for i := range a.Degree {
		a.Degree[i] = 0
	}
	for e := 0; e < nE; e++ {
		a.Degree[edges[2*e]]++
		a.Degree[edges[2*e+1]]++
	}

	a.Offsets[0] = 0
	for i := 0; i < nV; i++ {
		a.Offsets[i+1] = a.Offsets[i] + a.Degree[i]
		a.cursor[i] = a.Offsets[i]
	}

	for e := 0; e < nE; e++ {
		i, j := edges[2*e], edges[2*e+1]
		si := a.cursor[i]
		a.cursor[i]++
		a.Cols[si] = j
		a.Weights[si] = w[e]
		a.edgeSlots[2*e] = si

		sj := a.cursor[j]
		a.cursor[j]++
		a.Cols[sj] = i
		a.Weights[sj] = w[e]
		a.edgeSlots[2*e+1] = sj
	}
}

// Refresh rewrites the weight values into the existing slots without touching
// the topology. Valid only while Matches holds for the edge array the
// structure was built from.
func (a *Adjacency) Refresh(w []float64) {
	for e := 0; e < a.NEdges; e++ {
		a.Weights[a.edgeSlots[2*e]] = w[e]
		a.Weights[a.edgeSlots[2*e+1]] = w[e]
	}
}

// Apply computes y = K*x restricted to free rows: for each unconstrained
// vertex i, y_i = sum_j w_ij*(x_i - x_j). Constrained rows are forced to
// zero so the iteration stays on the free subspace.
func (a *Adjacency) Apply(x, y []float64, mask []int32, pool *dispatch.Pool, grain int) {
	pool.For(a.NVerts, grain, func(start, end int) {
		for i := start; i < end; i++ {
			if mask[i] != 0 {
				y[i] = 0
				continue
			}
			var sum float64
			xi := x[i]
			for s := a.Offsets[i]; s < a.Offsets[i+1]; s++ {
				sum += a.Weights[s] * (xi - x[a.Cols[s]])
			}
			y[i] = sum
		}
	})
}

// RowSums fills diag with the per-row sum of incident weights, the diagonal
// of the operator used by the Jacobi preconditioner.
func (a *Adjacency) RowSums(diag []float64, pool *dispatch.Pool, grain int) {
	pool.For(a.NVerts, grain, func(start, end int) {
		for i := start; i < end; i++ {
			var sum float64
			for s := a.Offsets[i]; s < a.Offsets[i+1]; s++ {
				sum += a.Weights[s]
			}
			diag[i] = sum
		}
	})
}
