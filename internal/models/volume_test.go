package models

import "testing"

// TestCrop verifies that cropping keeps exactly the voxels in [begin, end)
// and preserves the metadata.
func TestCrop(t *testing.T) {
	v := NewVolume([3]int{4, 4, 4})
	v.Meta.VoxelSize = [3]float64{1, 2, 3}
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				v.Set(x, y, z, float64(x*100+y*10+z))
			}
		}
	}

	c, err := v.Crop([3]int{1, 1, 1}, [3]int{3, 3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Shape != [3]int{2, 2, 2} {
		t.Fatalf("expected shape [2 2 2], got %v", c.Shape)
	}
	if c.Meta.VoxelSize != v.Meta.VoxelSize {
		t.Errorf("metadata not preserved: %v", c.Meta.VoxelSize)
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				want := float64((x+1)*100 + (y+1)*10 + z + 1)
				if got := c.At(x, y, z); got != want {
					t.Errorf("voxel (%d,%d,%d): expected %v, got %v", x, y, z, want, got)
				}
			}
		}
	}
}

// TestCropBounds verifies that out-of-range bounds are rejected.
func TestCropBounds(t *testing.T) {
	v := NewVolume([3]int{4, 4, 4})
	cases := []struct {
		begin, end [3]int
	}{
		{[3]int{-1, 0, 0}, [3]int{2, 2, 2}},
		{[3]int{0, 0, 0}, [3]int{5, 2, 2}},
		{[3]int{2, 0, 0}, [3]int{2, 2, 2}},
	}
	for _, tc := range cases {
		if _, err := v.Crop(tc.begin, tc.end); err == nil {
			t.Errorf("expected an error for bounds [%v, %v)", tc.begin, tc.end)
		}
	}
}

// TestMinMax verifies the intensity range scan.
func TestMinMax(t *testing.T) {
	v := NewVolume([3]int{2, 2, 2})
	v.Set(0, 1, 1, -3)
	v.Set(1, 0, 0, 9)
	min, max := v.MinMax()
	if min != -3 || max != 9 {
		t.Errorf("expected range [-3, 9], got [%v, %v]", min, max)
	}
}
