package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadConstraints loads a Dirichlet constraint file for a mesh with nVerts
// vertices. Each non-comment line holds "index value"; the returned mask is
// 1 at listed vertices and 0 elsewhere.
func ReadConstraints(path string, nVerts int) (mask []int32, value []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read constraints %s: %w", path, err)
	}
	defer f.Close()
	mask, value, err = ParseConstraints(f, nVerts)
	if err != nil {
		return nil, nil, fmt.Errorf("read constraints %s: %w", path, err)
	}
	return mask, value, nil
}

// ParseConstraints parses "index value" lines. Blank lines and lines
// starting with # are skipped. Indices are zero-based; a repeated index
// keeps its last value.
func ParseConstraints(r io.Reader, nVerts int) ([]int32, []float64, error) {
	mask := make([]int32, nVerts)
	value := make([]float64, nVerts)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("line %d: want \"index value\", got %d fields", lineNo, len(fields))
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: bad index %q: %w", lineNo, fields[0], err)
		}
		if idx < 0 || idx >= nVerts {
			return nil, nil, fmt.Errorf("line %d: index %d out of range (have %d vertices)", lineNo, idx, nVerts)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: bad value %q: %w", lineNo, fields[1], err)
		}
		mask[idx] = 1
		value[idx] = v
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return mask, value, nil
}
