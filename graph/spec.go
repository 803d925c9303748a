package graph

import "fmt"

// DataType represents the precision of numerical data stored in a resource.
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	Int32
	Int64
)

// Size returns the size in bytes of one value of the data type.
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, Int32:
		return 4
	default:
		return 8
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// Kind distinguishes plain host arrays from fields that live on a compute
// device. Validation is identical for both; the tag lets the scope layer
// route fields to an accelerator backend when one is attached.
type Kind int

const (
	KindArray Kind = iota
	KindField
)

// ShapeFunc computes the expected logical shape of a resource at validation
// time, typically by consulting upstream buffers (e.g. the vertex count).
type ShapeFunc func(g *Graph) ([]int, error)

// Spec declares the validation contract of a resource: element type, logical
// shape (fixed, computed, or free), vector width, and nullability.
type Spec struct {
	Kind     Kind
	DType    DataType
	Shape    []int     // fixed logical shape; nil if free or computed
	ShapeFn  ShapeFunc // computed logical shape; nil if fixed or free
	Lanes    int       // values per logical element; 0 means 1
	AllowNil bool      // whether an unset buffer is permitted
}

func (s Spec) lanes() int {
	if s.Lanes <= 0 {
		return 1
	}
	return s.Lanes
}

// validate checks a buffer against the spec. A nil buffer passes only when
// AllowNil is set.
func (s Spec) validate(g *Graph, name string, buf any) error {
	if buf == nil {
		if s.AllowNil {
			return nil
		}
		return &ValidationError{Resource: name, Reason: "nil buffer not permitted"}
	}

	n, dt, ok := bufferLen(buf)
	if !ok {
		return &ValidationError{Resource: name, Reason: fmt.Sprintf("unsupported buffer type %T", buf)}
	}
	if dt != s.DType {
		return &ValidationError{
			Resource: name,
			Reason:   fmt.Sprintf("dtype mismatch: declared %s, got %s", s.DType, dt),
		}
	}

	lanes := s.lanes()
	shape := s.Shape
	if s.ShapeFn != nil {
		computed, err := s.ShapeFn(g)
		if err != nil {
			return fmt.Errorf("shape function for %s: %w", name, err)
		}
		shape = computed
	}
	if shape == nil {
		if n%lanes != 0 {
			return &ValidationError{
				Resource: name,
				Reason:   fmt.Sprintf("length %d not divisible by %d lanes", n, lanes),
			}
		}
		return nil
	}

	want := lanes
	for _, d := range shape {
		want *= d
	}
	if n != want {
		return &ValidationError{
			Resource: name,
			Reason:   fmt.Sprintf("length %d does not match shape %v x %d lanes (want %d)", n, shape, lanes, want),
		}
	}
	return nil
}

// bufferLen reports the length and data type of a supported buffer.
func bufferLen(buf any) (int, DataType, bool) {
	switch v := buf.(type) {
	case []float32:
		return len(v), Float32, true
	case []float64:
		return len(v), Float64, true
	case []int32:
		return len(v), Int32, true
	case []int64:
		return len(v), Int64, true
	default:
		return 0, 0, false
	}
}
