package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RudreshVeerkhare/rheidos/graph"
)

var testNames = Names{
	Faces:        "tris",
	Edges:        "edges",
	EdgeFaces:    "edgeFaces",
	EdgeOpp:      "edgeOpp",
	FaceEdges:    "faceEdges",
	FaceEdgeSign: "faceEdgeSign",
}

func newTopoGraph(t *testing.T, withIncidence bool) (*graph.Graph, *Builder) {
	t.Helper()
	g := graph.New()

	declare := func(name string, lanes int, deps []string) {
		_, err := g.Declare(name, graph.Spec{DType: graph.Int32, Lanes: lanes}, deps, nil)
		require.NoError(t, err)
	}
	declare(testNames.Faces, 3, nil)
	declare(testNames.Edges, 2, []string{testNames.Faces})
	declare(testNames.EdgeFaces, 2, []string{testNames.Faces})
	declare(testNames.EdgeOpp, 2, []string{testNames.Faces})
	declare(testNames.FaceEdges, 3, []string{testNames.Faces})
	declare(testNames.FaceEdgeSign, 3, []string{testNames.Faces})

	b, err := NewBuilder(g, testNames, withIncidence, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(b))
	return g, b
}

// Two triangles sharing the diagonal of a unit quad.
var quadTris = []int32{0, 1, 2, 0, 2, 3}

func TestQuadTopology(t *testing.T) {
	g, b := newTopoGraph(t, true)
	require.NoError(t, g.Commit(testNames.Faces, quadTris))

	buf, err := g.Read(testNames.Edges, true)
	require.NoError(t, err)
	edges := buf.([]int32)
	assert.Equal(t, 5, b.EdgeCount())

	// Edge ids follow first-visit order; endpoints are canonical (min,max).
	assert.Equal(t, []int32{0, 1, 1, 2, 0, 2, 2, 3, 0, 3}, edges)

	buf, err = g.Read(testNames.EdgeFaces, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, -1, 0, -1, 0, 1, 1, -1, 1, -1}, buf.([]int32))

	buf, err = g.Read(testNames.EdgeOpp, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, -1, 0, -1, 1, 3, 0, -1, 2, -1}, buf.([]int32))

	buf, err = g.Read(testNames.FaceEdges, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 2, 3, 4}, buf.([]int32))

	// Sign is +1 when the face traverses the edge in canonical direction.
	buf, err = g.Read(testNames.FaceEdgeSign, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 1, -1, 1, 1, -1}, buf.([]int32))
}

func TestSingleTriangleBoundary(t *testing.T) {
	g, b := newTopoGraph(t, true)
	require.NoError(t, g.Commit(testNames.Faces, []int32{0, 1, 2}))

	_, err := g.Read(testNames.Edges, true)
	require.NoError(t, err)
	assert.Equal(t, 3, b.EdgeCount())

	// Every edge of a lone triangle is boundary: slot 1 stays empty.
	buf, err := g.Read(testNames.EdgeFaces, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, -1, 0, -1, 0, -1}, buf.([]int32))
}

func TestNonManifoldEdge(t *testing.T) {
	g, _ := newTopoGraph(t, true)
	require.NoError(t, g.Commit(testNames.Faces, []int32{0, 1, 2, 0, 1, 3, 0, 1, 4}))

	_, err := g.Read(testNames.Edges, true)
	var nme *NonManifoldError
	require.ErrorAs(t, err, &nme)
	assert.Equal(t, int32(0), nme.V0)
	assert.Equal(t, int32(1), nme.V1)
	assert.Equal(t, [3]int32{0, 1, 2}, nme.Faces)
}

func TestBufferIdentityStableAcrossRebuilds(t *testing.T) {
	g, _ := newTopoGraph(t, true)
	require.NoError(t, g.Commit(testNames.Faces, quadTris))

	buf, err := g.Read(testNames.Edges, true)
	require.NoError(t, err)
	first := buf.([]int32)

	// Bumping the faces forces a recompute; an unchanged edge count keeps
	// the same backing array, which downstream caches key on.
	require.NoError(t, g.Bump(testNames.Faces))
	buf, err = g.Read(testNames.Edges, true)
	require.NoError(t, err)
	second := buf.([]int32)
	assert.Same(t, &first[0], &second[0])

	// A different mesh reallocates.
	require.NoError(t, g.Commit(testNames.Faces, []int32{0, 1, 2}))
	buf, err = g.Read(testNames.Edges, true)
	require.NoError(t, err)
	third := buf.([]int32)
	assert.NotSame(t, &first[0], &third[0])
	assert.Len(t, third, 6)
}

func TestWithoutIncidence(t *testing.T) {
	g := graph.New()
	declare := func(name string, lanes int, deps []string) {
		_, err := g.Declare(name, graph.Spec{DType: graph.Int32, Lanes: lanes}, deps, nil)
		require.NoError(t, err)
	}
	declare(testNames.Faces, 3, nil)
	declare(testNames.Edges, 2, []string{testNames.Faces})
	declare(testNames.EdgeFaces, 2, []string{testNames.Faces})
	declare(testNames.EdgeOpp, 2, []string{testNames.Faces})

	b, err := NewBuilder(g, Names{
		Faces:     testNames.Faces,
		Edges:     testNames.Edges,
		EdgeFaces: testNames.EdgeFaces,
		EdgeOpp:   testNames.EdgeOpp,
	}, false, nil)
	require.NoError(t, err)
	require.NoError(t, g.BindProducer(b))

	assert.Equal(t, []string{"edges", "edgeFaces", "edgeOpp"}, b.Outputs())

	require.NoError(t, g.Commit(testNames.Faces, quadTris))
	_, err = g.Read(testNames.Edges, true)
	require.NoError(t, err)
	assert.Equal(t, 5, b.EdgeCount())
}
