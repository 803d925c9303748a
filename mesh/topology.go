// Package mesh derives edge-based connectivity from a triangle index buffer:
// the unique undirected edge list, edge-to-face and edge-to-opposite-vertex
// adjacency, and the face-to-edge incidence with orientation signs that a
// discrete exterior derivative needs.
package mesh

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/RudreshVeerkhare/rheidos/graph"
)

// NonManifoldError reports an edge shared by more than two faces.
type NonManifoldError struct {
	V0, V1 int32    // canonical edge endpoints
	Faces  [3]int32 // the two recorded faces plus the offending third
}

func (e *NonManifoldError) Error() string {
	return fmt.Sprintf("edge (%d,%d) shared by more than two faces: %d, %d, %d",
		e.V0, e.V1, e.Faces[0], e.Faces[1], e.Faces[2])
}

// Names binds the builder's input and output slots to resource names.
type Names struct {
	Faces        string
	Edges        string
	EdgeFaces    string
	EdgeOpp      string
	FaceEdges    string
	FaceEdgeSign string
}

// Builder extracts unique undirected edges and their incidence from the
// triangle index buffer. Output buffers are owned by the builder and
// reallocated only when the computed edge count changes.
type Builder struct {
	faces graph.Handle

	edges     graph.Handle
	edgeFaces graph.Handle
	edgeOpp   graph.Handle

	faceEdges     graph.Handle
	faceEdgeSign  graph.Handle
	withIncidence bool

	log *log.Logger

	nE          int
	edgeBuf     []int32
	edgeFaceBuf []int32
	edgeOppBuf  []int32
	faceEdgeBuf []int32
	faceSignBuf []int32
}

// NewBuilder resolves handles for all slots once. When withIncidence is
// false the face-to-edge outputs are skipped and their names ignored.
func NewBuilder(g *graph.Graph, names Names, withIncidence bool, logger *log.Logger) (*Builder, error) {
	if logger == nil {
		logger = log.Default()
	}
	b := &Builder{withIncidence: withIncidence, log: logger}

	var err error
	if b.faces, err = g.Handle(names.Faces, graph.Int32, 3); err != nil {
		return nil, err
	}
	if b.edges, err = g.Handle(names.Edges, graph.Int32, 2); err != nil {
		return nil, err
	}
	if b.edgeFaces, err = g.Handle(names.EdgeFaces, graph.Int32, 2); err != nil {
		return nil, err
	}
	if b.edgeOpp, err = g.Handle(names.EdgeOpp, graph.Int32, 2); err != nil {
		return nil, err
	}
	if withIncidence {
		if b.faceEdges, err = g.Handle(names.FaceEdges, graph.Int32, 3); err != nil {
			return nil, err
		}
		if b.faceEdgeSign, err = g.Handle(names.FaceEdgeSign, graph.Int32, 3); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) Name() string { return "topology" }

func (b *Builder) Outputs() []string {
	outs := []string{b.edges.Name(), b.edgeFaces.Name(), b.edgeOpp.Name()}
	if b.withIncidence {
		outs = append(outs, b.faceEdges.Name(), b.faceEdgeSign.Name())
	}
	return outs
}

// EdgeCount returns the edge count of the last build.
func (b *Builder) EdgeCount() int { return b.nE }

// canonKey packs an undirected edge as (min,max) into a map key.
func canonKey(a, b int32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(uint32(a))<<32 | uint64(uint32(b))
}

// Compute visits each face's three directed edges, assigns edge ids in
// first-visit order under canonical (min,max) orientation, and records
// face/opposite-vertex incidence per side. A third face on one edge is a
// NonManifoldError.
func (b *Builder) Compute(g *graph.Graph) error {
	tris, err := b.faces.Int32s(true)
	if err != nil {
		return err
	}
	nF := len(tris) / 3

	ids := make(map[uint64]int32, 3*nF)
	nE := 0
	for f := 0; f < nF; f++ {
		v0, v1, v2 := tris[3*f], tris[3*f+1], tris[3*f+2]
		for _, e := range [3][2]int32{{v0, v1}, {v1, v2}, {v2, v0}} {
			key := canonKey(e[0], e[1])
			if _, ok := ids[key]; !ok {
				ids[key] = int32(nE)
				nE++
			}
		}
	}

	realloc := nE != b.nE
	if realloc {
		b.edgeBuf = make([]int32, 2*nE)
		b.edgeFaceBuf = make([]int32, 2*nE)
		b.edgeOppBuf = make([]int32, 2*nE)
		b.nE = nE
	}
	if b.withIncidence && len(b.faceEdgeBuf) != 3*nF {
		b.faceEdgeBuf = make([]int32, 3*nF)
		b.faceSignBuf = make([]int32, 3*nF)
	}
	for i := range b.edgeFaceBuf {
		b.edgeFaceBuf[i] = -1
		b.edgeOppBuf[i] = -1
	}

	for f := 0; f < nF; f++ {
		v0, v1, v2 := tris[3*f], tris[3*f+1], tris[3*f+2]
		dir := [3][2]int32{{v0, v1}, {v1, v2}, {v2, v0}}
		opp := [3]int32{v2, v0, v1}
		for l := 0; l < 3; l++ {
			a, c := dir[l][0], dir[l][1]
			lo, hi := a, c
			if lo > hi {
				lo, hi = hi, lo
			}
			id := ids[canonKey(a, c)]
			b.edgeBuf[2*id] = lo
			b.edgeBuf[2*id+1] = hi

			switch {
			case b.edgeFaceBuf[2*id] == -1:
				b.edgeFaceBuf[2*id] = int32(f)
				b.edgeOppBuf[2*id] = opp[l]
			case b.edgeFaceBuf[2*id+1] == -1:
				b.edgeFaceBuf[2*id+1] = int32(f)
				b.edgeOppBuf[2*id+1] = opp[l]
			default:
				return &NonManifoldError{
					V0:    lo,
					V1:    hi,
					Faces: [3]int32{b.edgeFaceBuf[2*id], b.edgeFaceBuf[2*id+1], int32(f)},
				}
			}

			if b.withIncidence {
				b.faceEdgeBuf[3*f+l] = id
				if a == lo {
					b.faceSignBuf[3*f+l] = 1
				} else {
					b.faceSignBuf[3*f+l] = -1
				}
			}
		}
	}

	if err := b.edges.Commit(b.edgeBuf); err != nil {
		return err
	}
	if err := b.edgeFaces.Commit(b.edgeFaceBuf); err != nil {
		return err
	}
	if err := b.edgeOpp.Commit(b.edgeOppBuf); err != nil {
		return err
	}
	if b.withIncidence {
		if err := b.faceEdges.Commit(b.faceEdgeBuf); err != nil {
			return err
		}
		if err := b.faceEdgeSign.Commit(b.faceSignBuf); err != nil {
			return err
		}
	}

	b.log.Debug("topology built", "faces", nF, "edges", nE, "realloc", realloc)
	return nil
}
