package volume

import (
	"math"

	"multiatlas3d/internal/models"
)

// Downsample shrinks every axis of a volume by the factor 2^scale.
// Linear interpolation resamples intensities trilinearly at the new grid
// positions; Nearest picks the closest source voxel and is required for
// label volumes. The voxel size metadata is scaled to match.
func Downsample(v *models.Volume, scale int, interp Interp) *models.Volume {
	if scale <= 0 {
		return v
	}
	factor := 1 << scale

	var shape [3]int
	for i := 0; i < 3; i++ {
		shape[i] = v.Shape[i] / factor
		if shape[i] < 1 {
			shape[i] = 1
		}
	}

	out := models.NewVolume(shape)
	out.Meta = v.Meta
	for i := 0; i < 3; i++ {
		out.Meta.VoxelSize[i] *= float64(factor)
		out.Meta.Affine[i][i] *= float64(factor)
	}

	f := float64(factor)
	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				// Map the output voxel center back onto the source grid.
				sx := (float64(x)+0.5)*f - 0.5
				sy := (float64(y)+0.5)*f - 0.5
				sz := (float64(z)+0.5)*f - 0.5
				if interp == Nearest {
					out.Set(x, y, z, v.At(clampIndex(sx, v.Shape[0]), clampIndex(sy, v.Shape[1]), clampIndex(sz, v.Shape[2])))
				} else {
					out.Set(x, y, z, trilinear(v, sx, sy, sz))
				}
			}
		}
	}
	return out
}

func clampIndex(pos float64, size int) int {
	i := int(math.Round(pos))
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}

func trilinear(v *models.Volume, x, y, z float64) float64 {
	x0, fx := splitCoord(x, v.Shape[0])
	y0, fy := splitCoord(y, v.Shape[1])
	z0, fz := splitCoord(z, v.Shape[2])
	x1 := minInt(x0+1, v.Shape[0]-1)
	y1 := minInt(y0+1, v.Shape[1]-1)
	z1 := minInt(z0+1, v.Shape[2]-1)

	c000 := v.At(x0, y0, z0)
	c100 := v.At(x1, y0, z0)
	c010 := v.At(x0, y1, z0)
	c110 := v.At(x1, y1, z0)
	c001 := v.At(x0, y0, z1)
	c101 := v.At(x1, y0, z1)
	c011 := v.At(x0, y1, z1)
	c111 := v.At(x1, y1, z1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}

func splitCoord(pos float64, size int) (int, float64) {
	if pos <= 0 {
		return 0, 0
	}
	if pos >= float64(size-1) {
		return size - 1, 0
	}
	i := int(math.Floor(pos))
	return i, pos - float64(i)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
