// Package metric computes the differential-geometry weights of a triangle
// mesh: face areas and normals, the vertex dual areas (Hodge star on
// 0-forms), and the edge cotangent weights (Hodge star on 1-forms).
package metric

import (
	"math"

	"github.com/charmbracelet/log"

	"github.com/RudreshVeerkhare/rheidos/dispatch"
	"github.com/RudreshVeerkhare/rheidos/graph"
)

// degenerateEps floors denominators so degenerate triangles produce large
// but finite weights instead of dividing by zero.
const degenerateEps = 1e-12

// Names binds the producer's input and output slots to resource names.
type Names struct {
	Positions string
	Faces     string
	Edges     string
	EdgeOpp   string

	FaceArea   string
	FaceNormal string
	Star0      string
	Star1      string
}

// Producer derives the metric quantities from vertex positions and the edge
// topology. Output buffers are owned by the producer and reallocated only
// when the mesh dimensions change.
type Producer struct {
	x       graph.Handle
	tris    graph.Handle
	edges   graph.Handle
	edgeOpp graph.Handle

	faceArea   graph.Handle
	faceNormal graph.Handle
	star0      graph.Handle
	star1      graph.Handle

	pool  *dispatch.Pool
	grain int
	log   *log.Logger

	areaBuf   []float64
	normalBuf []float64
	star0Buf  []float64
	star1Buf  []float64
}

// NewProducer resolves handles for all slots once. grain tunes the parallel
// chunk size; zero picks the dispatch default.
func NewProducer(g *graph.Graph, names Names, pool *dispatch.Pool, grain int, logger *log.Logger) (*Producer, error) {
	if logger == nil {
		logger = log.Default()
	}
	p := &Producer{pool: pool, grain: grain, log: logger}

	var err error
	if p.x, err = g.Handle(names.Positions, graph.Float64, 3); err != nil {
		return nil, err
	}
	if p.tris, err = g.Handle(names.Faces, graph.Int32, 3); err != nil {
		return nil, err
	}
	if p.edges, err = g.Handle(names.Edges, graph.Int32, 2); err != nil {
		return nil, err
	}
	if p.edgeOpp, err = g.Handle(names.EdgeOpp, graph.Int32, 2); err != nil {
		return nil, err
	}
	if p.faceArea, err = g.Handle(names.FaceArea, graph.Float64, 1); err != nil {
		return nil, err
	}
	if p.faceNormal, err = g.Handle(names.FaceNormal, graph.Float64, 3); err != nil {
		return nil, err
	}
	if p.star0, err = g.Handle(names.Star0, graph.Float64, 1); err != nil {
		return nil, err
	}
	if p.star1, err = g.Handle(names.Star1, graph.Float64, 1); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Producer) Name() string { return "metric" }

func (p *Producer) Outputs() []string {
	return []string{p.faceArea.Name(), p.faceNormal.Name(), p.star0.Name(), p.star1.Name()}
}

func (p *Producer) Compute(g *graph.Graph) error {
	x, err := p.x.Float64s(true)
	if err != nil {
		return err
	}
	tris, err := p.tris.Int32s(true)
	if err != nil {
		return err
	}
	edges, err := p.edges.Int32s(true)
	if err != nil {
		return err
	}
	eopp, err := p.edgeOpp.Int32s(true)
	if err != nil {
		return err
	}

	nV := len(x) / 3
	nF := len(tris) / 3
	nE := len(edges) / 2

	if len(p.areaBuf) != nF {
		p.areaBuf = make([]float64, nF)
		p.normalBuf = make([]float64, 3*nF)
	}
	if len(p.star0Buf) != nV {
		p.star0Buf = make([]float64, nV)
	}
	if len(p.star1Buf) != nE {
		p.star1Buf = make([]float64, nE)
	}

	p.faceAreasNormals(x, tris)
	p.dualAreas(tris, nF)
	p.cotanWeights(x, edges, eopp, nE)

	if err := p.faceArea.Commit(p.areaBuf); err != nil {
		return err
	}
	if err := p.faceNormal.Commit(p.normalBuf); err != nil {
		return err
	}
	if err := p.star0.Commit(p.star0Buf); err != nil {
		return err
	}
	if err := p.star1.Commit(p.star1Buf); err != nil {
		return err
	}

	p.log.Debug("metric computed", "verts", nV, "faces", nF, "edges", nE)
	return nil
}

// faceAreasNormals fills per-face area and unit normal. The normal of a
// degenerate face is left at zero.
func (p *Producer) faceAreasNormals(x []float64, tris []int32) {
	nF := len(tris) / 3
	p.pool.For(nF, p.grain, func(start, end int) {
		for f := start; f < end; f++ {
			i, j, k := int(tris[3*f]), int(tris[3*f+1]), int(tris[3*f+2])
			var e1, e2 [3]float64
			for d := 0; d < 3; d++ {
				e1[d] = x[3*j+d] - x[3*i+d]
				e2[d] = x[3*k+d] - x[3*i+d]
			}
			c := cross(e1, e2)
			m := math.Sqrt(dot(c, c))
			p.areaBuf[f] = 0.5 * m
			if m > degenerateEps {
				p.normalBuf[3*f] = c[0] / m
				p.normalBuf[3*f+1] = c[1] / m
				p.normalBuf[3*f+2] = c[2] / m
			} else {
				p.normalBuf[3*f] = 0
				p.normalBuf[3*f+1] = 0
				p.normalBuf[3*f+2] = 0
			}
		}
	})
}

// dualAreas scatters one third of each face's area to its three vertices.
// Chunks race on shared vertices, hence the atomic accumulation.
func (p *Producer) dualAreas(tris []int32, nF int) {
	for i := range p.star0Buf {
		p.star0Buf[i] = 0
	}
	p.pool.For(nF, p.grain, func(start, end int) {
		for f := start; f < end; f++ {
			third := p.areaBuf[f] / 3
			dispatch.AddFloat64(&p.star0Buf[tris[3*f]], third)
			dispatch.AddFloat64(&p.star0Buf[tris[3*f+1]], third)
			dispatch.AddFloat64(&p.star0Buf[tris[3*f+2]], third)
		}
	})
}

// cotanWeights fills the per-edge cotangent weight 0.5*(cot a0 + cot a1),
// where a0 and a1 are the angles at the opposite vertices of the two
// adjacent faces. A boundary edge contributes only its present side.
func (p *Producer) cotanWeights(x []float64, edges, eopp []int32, nE int) {
	p.pool.For(nE, p.grain, func(start, end int) {
		for e := start; e < end; e++ {
			i, j := int(edges[2*e]), int(edges[2*e+1])
			var w float64
			for s := 0; s < 2; s++ {
				k := int(eopp[2*e+s])
				if k < 0 {
					continue
				}
				var u, v [3]float64
				for d := 0; d < 3; d++ {
					u[d] = x[3*i+d] - x[3*k+d]
					v[d] = x[3*j+d] - x[3*k+d]
				}
				c := cross(u, v)
				denom := math.Sqrt(dot(c, c))
				if denom < degenerateEps {
					denom = degenerateEps
				}
				w += dot(u, v) / denom
			}
			p.star1Buf[e] = 0.5 * w
		}
	})
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
