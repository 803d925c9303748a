package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleResolution(t *testing.T) {
	g := New()
	_, err := g.Declare("x", Spec{DType: Float64, Lanes: 3}, nil, nil)
	require.NoError(t, err)

	h, err := g.Handle("x", Float64, 3)
	require.NoError(t, err)
	assert.Equal(t, "x", h.Name())

	var verr *ValidationError
	_, err = g.Handle("x", Int32, 3)
	require.ErrorAs(t, err, &verr, "dtype mismatch must fail")
	_, err = g.Handle("x", Float64, 2)
	require.ErrorAs(t, err, &verr, "lane mismatch must fail")

	var nerr *NotFoundError
	_, err = g.Handle("nope", Float64, 1)
	require.ErrorAs(t, err, &nerr)
}

func TestHandleTypedAccess(t *testing.T) {
	g := New()
	_, err := g.Declare("x", Spec{DType: Float64}, nil, nil)
	require.NoError(t, err)
	_, err = g.Declare("idx", Spec{DType: Int32}, nil, nil)
	require.NoError(t, err)

	hx := g.MustHandle("x", Float64, 1)
	hi := g.MustHandle("idx", Int32, 1)

	require.NoError(t, hx.Commit([]float64{1, 2}))
	require.NoError(t, hi.Commit([]int32{7}))

	xs, err := hx.Float64s(false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, xs)

	is, err := hi.Int32s(false)
	require.NoError(t, err)
	assert.Equal(t, []int32{7}, is)

	assert.Equal(t, uint64(1), hx.Version())
}

func TestHandleEnsureForcesProducer(t *testing.T) {
	g := New()
	_, err := g.Declare("x", Spec{DType: Float64}, nil, nil)
	require.NoError(t, err)
	d := &doubler{in: "x", out: "y"}
	_, err = g.Declare("y", Spec{DType: Float64}, []string{"x"}, d)
	require.NoError(t, err)
	require.NoError(t, g.Commit("x", []float64{2}))

	hy := g.MustHandle("y", Float64, 1)

	// Non-forcing access sees the unset buffer.
	_, err = hy.Float64s(false)
	var merr *MissingInputError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 0, d.runs)

	ys, err := hy.Float64s(true)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, ys)
	assert.Equal(t, 1, d.runs)
}

func TestHandleNullable(t *testing.T) {
	g := New()
	_, err := g.Declare("rhs", Spec{DType: Float64, AllowNil: true}, nil, nil)
	require.NoError(t, err)

	h := g.MustHandle("rhs", Float64, 1)
	buf, err := h.Float64s(true)
	require.NoError(t, err)
	assert.Nil(t, buf)
}
