package dataset

import (
	"fmt"
	"math"

	"multiatlas3d/internal/models"
)

// ROICoordinates returns the inclusive low/high corners of the axis-aligned
// bounding box of the label's foreground, expanded per axis by
// floor((high-low)*marginRate/2) and clamped to the volume bounds. The
// foreground is the union of all configured non-background intensities. A
// label without foreground voxels is an error: the min/max of an empty set
// is undefined.
func ROICoordinates(label *models.Volume, intensities []float64, marginRate float64) (low, high [3]int, err error) {
	low = [3]int{label.Shape[0], label.Shape[1], label.Shape[2]}
	high = [3]int{-1, -1, -1}
	forEachForeground(label, intensities, func(x, y, z int) {
		pos := [3]int{x, y, z}
		for i := 0; i < 3; i++ {
			if pos[i] < low[i] {
				low[i] = pos[i]
			}
			if pos[i] > high[i] {
				high[i] = pos[i]
			}
		}
	})
	if high[0] < 0 {
		return low, high, fmt.Errorf("label volume has no foreground voxels for intensities %v", intensities[1:])
	}

	for i := 0; i < 3; i++ {
		margin := float64(high[i]-low[i]) * marginRate / 2
		soft := int(math.Floor(float64(low[i]) - margin))
		if soft < 0 {
			soft = 0
		}
		low[i] = soft
		soft = int(math.Floor(float64(high[i]) + margin))
		if soft > label.Shape[i]-1 {
			soft = label.Shape[i] - 1
		}
		high[i] = soft
	}
	return low, high, nil
}

// ForegroundCenter returns the floor of the mean foreground coordinate per
// axis. Errors when the label has no foreground.
func ForegroundCenter(label *models.Volume, intensities []float64) ([3]int, error) {
	var sum [3]float64
	count := 0
	forEachForeground(label, intensities, func(x, y, z int) {
		sum[0] += float64(x)
		sum[1] += float64(y)
		sum[2] += float64(z)
		count++
	})
	if count == 0 {
		return [3]int{}, fmt.Errorf("label volume has no foreground voxels for intensities %v", intensities[1:])
	}
	var center [3]int
	for i := 0; i < 3; i++ {
		center[i] = int(math.Floor(sum[i] / float64(count)))
	}
	return center, nil
}

// forEachForeground visits every voxel whose value matches one of the
// non-background intensities (index 0 is background by convention).
func forEachForeground(label *models.Volume, intensities []float64, fn func(x, y, z int)) {
	fg := make(map[float64]bool, len(intensities)-1)
	for _, v := range intensities[1:] {
		fg[v] = true
	}
	for x := 0; x < label.Shape[0]; x++ {
		for y := 0; y < label.Shape[1]; y++ {
			for z := 0; z < label.Shape[2]; z++ {
				if fg[label.At(x, y, z)] {
					fn(x, y, z)
				}
			}
		}
	}
}
