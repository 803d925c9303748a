package graph

import "fmt"

// Handle is a typed reference to a graph slot, resolved once at producer
// construction. The expected dtype and lane width are checked against the
// declaration when the handle is created, so per-invocation access is a
// plain buffer read.
type Handle struct {
	g *Graph
	r *Resource
}

// Handle resolves a named resource into a typed handle. The declared spec
// must match the expected dtype and lane width.
func (g *Graph) Handle(name string, dt DataType, lanes int) (Handle, error) {
	r, ok := g.resources[name]
	if !ok {
		return Handle{}, &NotFoundError{Resource: name}
	}
	if r.Spec.DType != dt {
		return Handle{}, &ValidationError{
			Resource: name,
			Reason:   fmt.Sprintf("handle expects %s, resource declares %s", dt, r.Spec.DType),
		}
	}
	if lanes <= 0 {
		lanes = 1
	}
	if r.Spec.lanes() != lanes {
		return Handle{}, &ValidationError{
			Resource: name,
			Reason:   fmt.Sprintf("handle expects %d lanes, resource declares %d", lanes, r.Spec.lanes()),
		}
	}
	return Handle{g: g, r: r}, nil
}

// MustHandle is Handle for wiring code where a mismatch is a programming
// error.
func (g *Graph) MustHandle(name string, dt DataType, lanes int) Handle {
	h, err := g.Handle(name, dt, lanes)
	if err != nil {
		panic(err)
	}
	return h
}

// Name returns the referenced resource name.
func (h Handle) Name() string { return h.r.Name }

// Version returns the referenced resource's current version.
func (h Handle) Version() uint64 { return h.r.version }

// buffer fetches the raw buffer, forcing a recompute when ensure is set. A
// nil buffer is an error unless the spec permits it.
func (h Handle) buffer(ensure bool) (any, error) {
	if ensure {
		if err := h.g.Ensure(h.r.Name); err != nil {
			return nil, err
		}
	}
	if h.r.buffer == nil {
		if h.r.Spec.AllowNil {
			return nil, nil
		}
		return nil, &MissingInputError{Resource: h.r.Name}
	}
	return h.r.buffer, nil
}

// Float64s returns the buffer as []float64. When ensure is set the resource
// is freshened first; otherwise this is a non-forcing peek.
func (h Handle) Float64s(ensure bool) ([]float64, error) {
	buf, err := h.buffer(ensure)
	if err != nil || buf == nil {
		return nil, err
	}
	v, ok := buf.([]float64)
	if !ok {
		return nil, &ValidationError{Resource: h.r.Name, Reason: fmt.Sprintf("buffer is %T, not []float64", buf)}
	}
	return v, nil
}

// Float32s returns the buffer as []float32.
func (h Handle) Float32s(ensure bool) ([]float32, error) {
	buf, err := h.buffer(ensure)
	if err != nil || buf == nil {
		return nil, err
	}
	v, ok := buf.([]float32)
	if !ok {
		return nil, &ValidationError{Resource: h.r.Name, Reason: fmt.Sprintf("buffer is %T, not []float32", buf)}
	}
	return v, nil
}

// Int32s returns the buffer as []int32.
func (h Handle) Int32s(ensure bool) ([]int32, error) {
	buf, err := h.buffer(ensure)
	if err != nil || buf == nil {
		return nil, err
	}
	v, ok := buf.([]int32)
	if !ok {
		return nil, &ValidationError{Resource: h.r.Name, Reason: fmt.Sprintf("buffer is %T, not []int32", buf)}
	}
	return v, nil
}

// Int64s returns the buffer as []int64.
func (h Handle) Int64s(ensure bool) ([]int64, error) {
	buf, err := h.buffer(ensure)
	if err != nil || buf == nil {
		return nil, err
	}
	v, ok := buf.([]int64)
	if !ok {
		return nil, &ValidationError{Resource: h.r.Name, Reason: fmt.Sprintf("buffer is %T, not []int64", buf)}
	}
	return v, nil
}

// Set validates and stores a buffer without bumping the version.
func (h Handle) Set(buf any) error { return h.g.SetBuffer(h.r.Name, buf) }

// Commit stores a buffer (when non-nil) and bumps the resource, marking it
// fresh against its dependencies' current versions.
func (h Handle) Commit(buf any) error { return h.g.Commit(h.r.Name, buf) }
