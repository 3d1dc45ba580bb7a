package preprocess

import (
	"math"

	"multiatlas3d/internal/models"
	"multiatlas3d/pkg/tensor"
)

// ProcessLabel converts an integer-intensity label volume into a one-hot
// tensor of shape [1, x, y, z, len(intensities)]. Intensities are rounded
// first, which defends against interpolation artifacts from any earlier
// resampling. Channel k (k >= 1) marks voxels equal to intensities[k];
// channel 0 is the complement of all the others, so background is
// "anything else" rather than a matched intensity and exactly one channel
// is active per voxel.
func ProcessLabel(v *models.Volume, intensities []float64) *tensor.Tensor {
	nClass := len(intensities)
	out := tensor.New(v.Shape[0], v.Shape[1], v.Shape[2], nClass)

	for z := 0; z < v.Shape[2]; z++ {
		for y := 0; y < v.Shape[1]; y++ {
			for x := 0; x < v.Shape[0]; x++ {
				code := math.Round(v.At(x, y, z))
				base := ((x*v.Shape[1]+y)*v.Shape[2] + z) * nClass
				foreground := false
				for k := 1; k < nClass; k++ {
					if code == math.Round(intensities[k]) {
						out.Data[base+k] = 1
						foreground = true
					}
				}
				if !foreground {
					out.Data[base] = 1
				}
			}
		}
	}
	return out.ExpandDims(0)
}
