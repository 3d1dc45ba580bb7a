package augment

import (
	"testing"

	"multiatlas3d/internal/models"
)

// TestRandomFilterLeavesInput verifies that filters copy instead of mutating
// the source volume.
func TestRandomFilterLeavesInput(t *testing.T) {
	v := models.NewVolume([3]int{4, 4, 4})
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	orig := append([]float64(nil), v.Data...)

	f := RandomFilter{}
	for trial := 0; trial < 20; trial++ {
		out := f.Apply(v)
		if out.Shape != v.Shape {
			t.Fatalf("trial %d: shape changed to %v", trial, out.Shape)
		}
		for i := range orig {
			if v.Data[i] != orig[i] {
				t.Fatalf("trial %d: input modified at %d", trial, i)
			}
		}
	}
}

// TestBoxSmoothConstant verifies that smoothing a constant volume is the
// identity.
func TestBoxSmoothConstant(t *testing.T) {
	v := models.NewVolume([3]int{3, 3, 3})
	for i := range v.Data {
		v.Data[i] = 7
	}

	out := boxSmooth(v)
	for i, val := range out.Data {
		if val != 7 {
			t.Fatalf("element %d: expected 7, got %v", i, val)
		}
	}
}

// TestMedianSmoothRemovesSpike verifies that an isolated outlier is replaced
// by its neighborhood median.
func TestMedianSmoothRemovesSpike(t *testing.T) {
	v := models.NewVolume([3]int{5, 5, 5})
	v.Set(2, 2, 2, 1000)

	out := medianSmooth(v)
	if got := out.At(2, 2, 2); got != 0 {
		t.Errorf("expected the spike median-filtered to 0, got %v", got)
	}
}

// TestMedian covers odd, even and empty windows.
func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd window: expected 2, got %v", got)
	}
	if got := median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Errorf("even window: expected 2.5, got %v", got)
	}
	if got := median(nil); got != 0 {
		t.Errorf("empty window: expected 0, got %v", got)
	}
}
