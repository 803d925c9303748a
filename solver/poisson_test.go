package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/RudreshVeerkhare/rheidos/dispatch"
	"github.com/RudreshVeerkhare/rheidos/graph"
	"github.com/RudreshVeerkhare/rheidos/mesh"
	"github.com/RudreshVeerkhare/rheidos/metric"
)

var testNames = Names{
	Edges:    "edges",
	Weights:  "star1",
	Mask:     "mask",
	Value:    "value",
	RHS:      "rhs",
	Solution: "u",
}

// fixture is the full pipeline: positions and faces in, solution out.
type fixture struct {
	g   *graph.Graph
	poi *Poisson
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	g := graph.New()

	declareI := func(name string, lanes int, deps []string) {
		_, err := g.Declare(name, graph.Spec{DType: graph.Int32, Lanes: lanes}, deps, nil)
		require.NoError(t, err)
	}
	declareF := func(name string, allowNil bool, deps []string) {
		_, err := g.Declare(name, graph.Spec{DType: graph.Float64, AllowNil: allowNil}, deps, nil)
		require.NoError(t, err)
	}
	_, err := g.Declare("x", graph.Spec{DType: graph.Float64, Lanes: 3}, nil, nil)
	require.NoError(t, err)
	declareI("tris", 3, nil)
	declareI("mask", 1, nil)
	declareF("value", false, nil)
	declareF("rhs", true, nil)
	declareI("edges", 2, []string{"tris"})
	declareI("edgeFaces", 2, []string{"tris"})
	declareI("edgeOpp", 2, []string{"tris"})
	declareF("faceArea", false, []string{"x", "tris"})
	_, err = g.Declare("faceNormal", graph.Spec{DType: graph.Float64, Lanes: 3}, []string{"x", "tris"}, nil)
	require.NoError(t, err)
	declareF("star0", false, []string{"x", "tris"})
	declareF("star1", false, []string{"x", "edges", "edgeOpp"})
	declareF("u", false, []string{"edges", "star1", "mask", "value", "rhs"})

	pool := dispatch.NewPool(2)
	t.Cleanup(pool.Close)

	b, err := mesh.NewBuilder(g, mesh.Names{
		Faces:     "tris",
		Edges:     "edges",
		EdgeFaces: "edgeFaces",
		EdgeOpp:   "edgeOpp",
	}, false, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(b))

	m, err := metric.NewProducer(g, metric.Names{
		Positions:  "x",
		Faces:      "tris",
		Edges:      "edges",
		EdgeOpp:    "edgeOpp",
		FaceArea:   "faceArea",
		FaceNormal: "faceNormal",
		Star0:      "star0",
		Star1:      "star1",
	}, pool, 0, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(m))

	poi, err := NewPoisson(g, testNames, cfg, pool, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(poi))

	return &fixture{g: g, poi: poi}
}

func (f *fixture) set(t *testing.T, x []float64, tris []int32, mask []int32, value []float64) {
	t.Helper()
	require.NoError(t, f.g.Commit("x", x))
	require.NoError(t, f.g.Commit("tris", tris))
	require.NoError(t, f.g.Commit("mask", mask))
	require.NoError(t, f.g.Commit("value", value))
}

func (f *fixture) solve(t *testing.T) []float64 {
	t.Helper()
	buf, err := f.g.Read("u", true)
	require.NoError(t, err)
	return buf.([]float64)
}

func TestEquilateralInterpolation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	h := math.Sqrt(3) / 2
	f.set(t,
		[]float64{0, 0, 0, 1, 0, 0, 0.5, h, 0},
		[]int32{0, 1, 2},
		[]int32{1, 1, 0},
		[]float64{0, 1, 0},
	)

	u := f.solve(t)
	assert.InDelta(t, 0.0, u[0], 1e-12)
	assert.InDelta(t, 1.0, u[1], 1e-12)
	// Equal weights to both constrained neighbors: the free vertex lands on
	// their mean.
	assert.InDelta(t, 0.5, u[2], 1e-6)

	stop, iters := f.poi.Status()
	assert.Equal(t, StopConverged, stop)
	assert.LessOrEqual(t, f.poi.ResidualEnergy(), DefaultConfig().Tol*DefaultConfig().Tol)
	assert.Greater(t, iters, 0)
}

// gridStrip is a 3x2 vertex grid triangulated into four faces. The left
// column is held at 0 and the right at 1.
func gridStrip() (x []float64, tris []int32, mask []int32, value []float64) {
	x = []float64{
		0, 0, 0, 1, 0, 0, 2, 0, 0,
		0, 1, 0, 1, 1, 0, 2, 1, 0,
	}
	tris = []int32{
		0, 1, 4, 0, 4, 3,
		1, 2, 5, 1, 5, 4,
	}
	mask = []int32{1, 0, 1, 1, 0, 1}
	value = []float64{0, 0, 1, 0, 0, 1}
	return
}

func TestGridHarmonicIsLinear(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	x, tris, mask, value := gridStrip()
	f.set(t, x, tris, mask, value)

	u := f.solve(t)
	// The linear ramp is representable exactly, so the middle column sits
	// at its midpoint value.
	assert.InDelta(t, 0.5, u[1], 1e-6)
	assert.InDelta(t, 0.5, u[4], 1e-6)

	stop, iters := f.poi.Status()
	assert.Equal(t, StopConverged, stop)
	assert.LessOrEqual(t, iters, 50)
}

func TestWarmStartReconvergesCheaply(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	x, tris, mask, value := gridStrip()
	f.set(t, x, tris, mask, value)
	u1 := append([]float64(nil), f.solve(t)...)

	// Re-bumping the constraints forces the producer to run again. The
	// previous field seeds the iteration, so the rerun settles in at most a
	// handful of iterations and lands on the same solution.
	require.NoError(t, f.g.Bump("mask"))
	u2 := f.solve(t)
	assert.InDeltaSlice(t, u1, u2, 1e-6)

	stop, iters := f.poi.Status()
	assert.Equal(t, StopConverged, stop)
	assert.LessOrEqual(t, iters, 5)
}

func TestAllConstrained(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	h := math.Sqrt(3) / 2
	f.set(t,
		[]float64{0, 0, 0, 1, 0, 0, 0.5, h, 0},
		[]int32{0, 1, 2},
		[]int32{1, 1, 1},
		[]float64{3, 4, 5},
	)

	u := f.solve(t)
	assert.Equal(t, []float64{3, 4, 5}, u)

	stop, iters := f.poi.Status()
	assert.Equal(t, StopConverged, stop)
	assert.Zero(t, iters)
	assert.Zero(t, f.poi.ResidualEnergy())
}

func TestRHSAgainstDenseReference(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	x, tris, mask, value := gridStrip()
	f.set(t, x, tris, mask, value)
	rhs := []float64{0, 0.3, 0, 0, -0.7, 0}
	require.NoError(t, f.g.Commit("rhs", rhs))

	u := f.solve(t)
	stop, _ := f.poi.Status()
	require.Equal(t, StopConverged, stop)

	want := denseReference(t, f.g, mask, value, rhs)
	assert.InDeltaSlice(t, want, u, 1e-5)
}

// denseReference solves the reduced free-vertex system directly with a dense
// factorization.
func denseReference(t *testing.T, g *graph.Graph, mask []int32, value, rhs []float64) []float64 {
	t.Helper()
	buf, err := g.Read("edges", true)
	require.NoError(t, err)
	edges := buf.([]int32)
	buf, err = g.Read("star1", true)
	require.NoError(t, err)
	w := buf.([]float64)

	nV := len(mask)
	var free []int
	col := make([]int, nV)
	for i := 0; i < nV; i++ {
		col[i] = -1
		if mask[i] == 0 {
			col[i] = len(free)
			free = append(free, i)
		}
	}

	nf := len(free)
	A := mat.NewDense(nf, nf, nil)
	b := mat.NewVecDense(nf, nil)
	for k, i := range free {
		b.SetVec(k, rhs[i])
	}
	for e := 0; e < len(edges)/2; e++ {
		i, j := int(edges[2*e]), int(edges[2*e+1])
		we := w[e]
		for _, pair := range [2][2]int{{i, j}, {j, i}} {
			a, c := pair[0], pair[1]
			if mask[a] != 0 {
				continue
			}
			ka := col[a]
			A.Set(ka, ka, A.At(ka, ka)+we)
			if mask[c] != 0 {
				b.SetVec(ka, b.AtVec(ka)+we*value[c])
			} else {
				kc := col[c]
				A.Set(ka, kc, A.At(ka, kc)-we)
			}
		}
	}

	var uf mat.VecDense
	require.NoError(t, uf.SolveVec(A, b))

	u := make([]float64, nV)
	for i := 0; i < nV; i++ {
		if mask[i] != 0 {
			u[i] = value[i]
		} else {
			u[i] = uf.AtVec(col[i])
		}
	}
	return u
}

// newWeightFixture bypasses the metric pipeline so tests can inject weights
// directly.
func newWeightFixture(t *testing.T, cfg Config) (*graph.Graph, *Poisson) {
	t.Helper()
	g := graph.New()
	_, err := g.Declare("edges", graph.Spec{DType: graph.Int32, Lanes: 2}, nil, nil)
	require.NoError(t, err)
	for _, d := range []struct {
		name     string
		dt       graph.DataType
		allowNil bool
	}{
		{"star1", graph.Float64, false},
		{"mask", graph.Int32, false},
		{"value", graph.Float64, false},
		{"rhs", graph.Float64, true},
	} {
		_, err := g.Declare(d.name, graph.Spec{DType: d.dt, AllowNil: d.allowNil}, nil, nil)
		require.NoError(t, err)
	}
	_, err = g.Declare("u", graph.Spec{DType: graph.Float64},
		[]string{"edges", "star1", "mask", "value", "rhs"}, nil)
	require.NoError(t, err)

	pool := dispatch.NewPool(1)
	t.Cleanup(pool.Close)
	poi, err := NewPoisson(g, testNames, cfg, pool, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(poi))
	return g, poi
}

func TestBreakdownOnIndefiniteOperator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseJacobi = false
	g, poi := newWeightFixture(t, cfg)

	// A negative weight makes p'Kp negative on the first iteration.
	require.NoError(t, g.Commit("edges", []int32{0, 1}))
	require.NoError(t, g.Commit("star1", []float64{-1}))
	require.NoError(t, g.Commit("mask", []int32{1, 0}))
	require.NoError(t, g.Commit("value", []float64{0, 0}))
	require.NoError(t, g.Commit("rhs", []float64{0, 1}))

	buf, err := g.Read("u", true)
	require.NoError(t, err)
	u := buf.([]float64)

	stop, _ := poi.Status()
	assert.Equal(t, StopBreakdown, stop)
	for _, v := range u {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}

func TestMaxIterCommitsBestEffort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIter = 1
	cfg.Tol = 1e-14
	f := newFixture(t, cfg)
	x, tris, mask, value := gridStrip()
	f.set(t, x, tris, mask, value)
	rhs := []float64{0, 2, 0, 0, -1, 0}
	require.NoError(t, f.g.Commit("rhs", rhs))

	u := f.solve(t)
	require.Len(t, u, 6)

	stop, iters := f.poi.Status()
	assert.Equal(t, StopMaxIter, stop)
	assert.Equal(t, 1, iters)
	assert.Greater(t, f.poi.ResidualEnergy(), 0.0)
}

func TestInputLengthMismatch(t *testing.T) {
	g, _ := newWeightFixture(t, DefaultConfig())
	require.NoError(t, g.Commit("edges", []int32{0, 1}))
	require.NoError(t, g.Commit("star1", []float64{1, 2}))
	require.NoError(t, g.Commit("mask", []int32{1, 0}))
	require.NoError(t, g.Commit("value", []float64{0, 0}))

	_, err := g.Read("u", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight length")
}
