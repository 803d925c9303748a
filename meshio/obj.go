// Package meshio loads triangle meshes and Dirichlet constraint files into
// the flat buffers the session consumes.
package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Mesh is a triangle mesh in flat layout: xyz-interleaved positions and
// vertex index triples.
type Mesh struct {
	Positions []float64 // len 3*nV
	Faces     []int32   // len 3*nF
}

// NumVerts returns the vertex count.
func (m *Mesh) NumVerts() int { return len(m.Positions) / 3 }

// NumFaces returns the triangle count.
func (m *Mesh) NumFaces() int { return len(m.Faces) / 3 }

// ReadOBJ loads a Wavefront OBJ mesh from a file.
func ReadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh %s: %w", path, err)
	}
	defer f.Close()
	m, err := ParseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("read mesh %s: %w", path, err)
	}
	return m, nil
}

// ParseOBJ parses Wavefront OBJ geometry: v lines become positions, f lines
// become triangles. Polygonal faces are fan-triangulated; texture and normal
// references after a slash are ignored, as are all other directives.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNo)
			}
			for _, fld := range fields[1:4] {
				x, err := strconv.ParseFloat(fld, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad coordinate %q: %w", lineNo, fld, err)
				}
				m.Positions = append(m.Positions, x)
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			idx := make([]int32, 0, len(fields)-1)
			for _, fld := range fields[1:] {
				i, err := parseFaceIndex(fld, m.NumVerts())
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				m.Faces = append(m.Faces, idx[0], idx[k], idx[k+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseFaceIndex resolves one f-line token to a zero-based vertex index.
// OBJ indices are 1-based; negative indices count back from the current
// vertex count.
func parseFaceIndex(tok string, nVerts int) (int32, error) {
	if slash := strings.IndexByte(tok, '/'); slash >= 0 {
		tok = tok[:slash]
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q: %w", tok, err)
	}
	switch {
	case v > 0:
		v--
	case v < 0:
		v += nVerts
	default:
		return 0, fmt.Errorf("face index must not be zero")
	}
	if v < 0 || v >= nVerts {
		return 0, fmt.Errorf("face index %d out of range (have %d vertices)", v, nVerts)
	}
	return int32(v), nil
}
