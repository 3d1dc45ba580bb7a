package tensor

import (
	"testing"
)

// TestStackInsertsAxis verifies stacking along a new second-to-last axis,
// the layout used for atlas stacks.
func TestStackInsertsAxis(t *testing.T) {
	a := New(2, 3)
	b := New(2, 3)
	for i := range a.Data {
		a.Data[i] = float64(i)
		b.Data[i] = float64(i) + 100
	}

	s := Stack([]*Tensor{a, b}, -2)
	want := []int{2, 2, 3}
	if !sameShape(s.Shape, want) {
		t.Fatalf("expected shape %v, got %v", want, s.Shape)
	}

	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if got := s.At(i, 0, j); got != a.At(i, j) {
				t.Errorf("slot 0 at (%d,%d): expected %v, got %v", i, j, a.At(i, j), got)
			}
			if got := s.At(i, 1, j); got != b.At(i, j) {
				t.Errorf("slot 1 at (%d,%d): expected %v, got %v", i, j, b.At(i, j), got)
			}
		}
	}
}

// TestConcatLeadingAxis verifies the batch-collation concatenation.
func TestConcatLeadingAxis(t *testing.T) {
	a := New(1, 2, 2)
	b := New(1, 2, 2)
	for i := range a.Data {
		a.Data[i] = 1
		b.Data[i] = 2
	}

	c := Concat([]*Tensor{a, b}, 0)
	if !sameShape(c.Shape, []int{2, 2, 2}) {
		t.Fatalf("expected shape [2 2 2], got %v", c.Shape)
	}
	if c.At(0, 1, 1) != 1 || c.At(1, 0, 0) != 2 {
		t.Errorf("concatenated values in wrong order: %v", c.Data)
	}
}

// TestRepeatBroadcastsSingleton verifies channel tiling of a grayscale
// tensor.
func TestRepeatBroadcastsSingleton(t *testing.T) {
	a := New(2, 1)
	a.Data[0] = 3
	a.Data[1] = 7

	r := a.Repeat(-1, 4)
	if !sameShape(r.Shape, []int{2, 4}) {
		t.Fatalf("expected shape [2 4], got %v", r.Shape)
	}
	for c := 0; c < 4; c++ {
		if r.At(0, c) != 3 || r.At(1, c) != 7 {
			t.Errorf("channel %d not a copy of the source: %v", c, r.Data)
		}
	}
}

// TestExpandDims verifies singleton axis insertion at both ends.
func TestExpandDims(t *testing.T) {
	a := New(2, 3)

	lead := a.ExpandDims(0)
	if !sameShape(lead.Shape, []int{1, 2, 3}) {
		t.Errorf("expected shape [1 2 3], got %v", lead.Shape)
	}

	trail := a.ExpandDims(-1)
	if !sameShape(trail.Shape, []int{2, 3, 1}) {
		t.Errorf("expected shape [2 3 1], got %v", trail.Shape)
	}
}

// TestOnes verifies the all-ones constructor used for default weights.
func TestOnes(t *testing.T) {
	o := Ones(2, 2)
	for i, v := range o.Data {
		if v != 1 {
			t.Fatalf("element %d is %v, expected 1", i, v)
		}
	}
}
