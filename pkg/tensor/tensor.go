// Package tensor implements a minimal N-axis tensor backed by a flat
// float64 array in row-major order, with the axis-insertion, stacking and
// tiling operations needed to assemble batched volume samples.
package tensor

import "fmt"

// Tensor is an N-axis array. Data is row-major: the last axis varies
// fastest.
type Tensor struct {
	Shape []int
	Data  []float64
}

// New allocates a zero-filled tensor of the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	n := 1
	for _, s := range t.Shape {
		n *= s
	}
	return n
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Strides returns the row-major stride for each axis.
func (t *Tensor) Strides() []int {
	strides := make([]int, len(t.Shape))
	acc := 1
	for i := len(t.Shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= t.Shape[i]
	}
	return strides
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.Data[t.offset(idx)]
}

// Set stores an element at the given multi-index.
func (t *Tensor) Set(value float64, idx ...int) {
	t.Data[t.offset(idx)] = value
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank-%d tensor", len(idx), len(t.Shape)))
	}
	off := 0
	for i, stride := range t.Strides() {
		off += idx[i] * stride
	}
	return off
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{Shape: append([]int(nil), t.Shape...), Data: make([]float64, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// resolveAxis maps a possibly negative axis onto [0, rank). rank counts the
// axes of the result, so operations inserting a new axis pass rank+1.
func resolveAxis(axis, rank int) int {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		panic(fmt.Sprintf("tensor: axis %d out of range for rank %d", axis, rank))
	}
	return axis
}

// ExpandDims returns a view of t with a singleton axis inserted at the
// given position. Negative axes count from the end of the new shape.
func (t *Tensor) ExpandDims(axis int) *Tensor {
	axis = resolveAxis(axis, len(t.Shape)+1)
	shape := make([]int, 0, len(t.Shape)+1)
	shape = append(shape, t.Shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.Shape[axis:]...)
	return &Tensor{Shape: shape, Data: t.Data}
}

// Repeat tiles the contents of the given axis reps times, multiplying its
// length. Repeating a singleton axis broadcasts it.
func (t *Tensor) Repeat(axis, reps int) *Tensor {
	axis = resolveAxis(axis, len(t.Shape))
	outer := 1
	for _, s := range t.Shape[:axis] {
		outer *= s
	}
	inner := 1
	for _, s := range t.Shape[axis:] {
		inner *= s
	}
	shape := append([]int(nil), t.Shape...)
	shape[axis] *= reps
	out := &Tensor{Shape: shape, Data: make([]float64, outer*inner*reps)}
	for o := 0; o < outer; o++ {
		row := t.Data[o*inner : (o+1)*inner]
		for r := 0; r < reps; r++ {
			copy(out.Data[(o*reps+r)*inner:(o*reps+r+1)*inner], row)
		}
	}
	return out
}

// Stack joins tensors of identical shape along a new axis. Negative axes
// count from the end of the result shape, so -2 inserts the new axis just
// before the last one.
func Stack(tensors []*Tensor, axis int) *Tensor {
	if len(tensors) == 0 {
		panic("tensor: stack of zero tensors")
	}
	base := tensors[0].Shape
	for _, t := range tensors[1:] {
		if !sameShape(t.Shape, base) {
			panic(fmt.Sprintf("tensor: stack shape mismatch %v vs %v", t.Shape, base))
		}
	}
	axis = resolveAxis(axis, len(base)+1)
	outer := 1
	for _, s := range base[:axis] {
		outer *= s
	}
	inner := 1
	for _, s := range base[axis:] {
		inner *= s
	}
	n := len(tensors)
	shape := make([]int, 0, len(base)+1)
	shape = append(shape, base[:axis]...)
	shape = append(shape, n)
	shape = append(shape, base[axis:]...)
	out := &Tensor{Shape: shape, Data: make([]float64, outer*n*inner)}
	for k, t := range tensors {
		for o := 0; o < outer; o++ {
			copy(out.Data[(o*n+k)*inner:(o*n+k+1)*inner], t.Data[o*inner:(o+1)*inner])
		}
	}
	return out
}

// Concat joins tensors along an existing axis. All shapes must agree on
// every other axis.
func Concat(tensors []*Tensor, axis int) *Tensor {
	if len(tensors) == 0 {
		panic("tensor: concat of zero tensors")
	}
	base := tensors[0].Shape
	axis = resolveAxis(axis, len(base))
	total := 0
	for _, t := range tensors {
		if len(t.Shape) != len(base) {
			panic(fmt.Sprintf("tensor: concat rank mismatch %v vs %v", t.Shape, base))
		}
		for i := range base {
			if i != axis && t.Shape[i] != base[i] {
				panic(fmt.Sprintf("tensor: concat shape mismatch %v vs %v on axis %d", t.Shape, base, i))
			}
		}
		total += t.Shape[axis]
	}
	outer := 1
	for _, s := range base[:axis] {
		outer *= s
	}
	tail := 1
	for _, s := range base[axis+1:] {
		tail *= s
	}
	shape := append([]int(nil), base...)
	shape[axis] = total
	out := &Tensor{Shape: shape, Data: make([]float64, outer*total*tail)}
	for o := 0; o < outer; o++ {
		dst := o * total * tail
		for _, t := range tensors {
			rowLen := t.Shape[axis] * tail
			copy(out.Data[dst:dst+rowLen], t.Data[o*rowLen:(o+1)*rowLen])
			dst += rowLen
		}
	}
	return out
}

// Ones returns a tensor of the given shape filled with 1.
func Ones(shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
