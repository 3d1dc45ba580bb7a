// Package augment provides pluggable intensity filters used to perturb
// target images during training. Filters never modify their input.
package augment

import (
	"math/rand"
	"sort"

	"multiatlas3d/internal/models"
)

// Filter transforms a volume into a new volume of the same shape.
type Filter interface {
	Apply(v *models.Volume) *models.Volume
}

// RandomFilter applies one filter chosen uniformly at random per call:
// identity, 3x3x3 box smoothing, 3x3x3 median, or additive Gaussian noise.
// It draws from the process-global random source; callers needing
// reproducibility must seed it externally.
type RandomFilter struct {
	// NoiseSigma scales the additive noise relative to the intensity
	// range of the volume. Zero selects the default of 0.03.
	NoiseSigma float64
}

func (f RandomFilter) Apply(v *models.Volume) *models.Volume {
	switch rand.Intn(4) {
	case 0:
		return v.Clone()
	case 1:
		return boxSmooth(v)
	case 2:
		return medianSmooth(v)
	default:
		sigma := f.NoiseSigma
		if sigma == 0 {
			sigma = 0.03
		}
		return addNoise(v, sigma)
	}
}

func boxSmooth(v *models.Volume) *models.Volume {
	out := v.Clone()
	for z := 0; z < v.Shape[2]; z++ {
		for y := 0; y < v.Shape[1]; y++ {
			for x := 0; x < v.Shape[0]; x++ {
				sum, n := 0.0, 0
				visitNeighborhood(v, x, y, z, func(val float64) {
					sum += val
					n++
				})
				out.Set(x, y, z, sum/float64(n))
			}
		}
	}
	return out
}

func medianSmooth(v *models.Volume) *models.Volume {
	out := v.Clone()
	window := make([]float64, 0, 27)
	for z := 0; z < v.Shape[2]; z++ {
		for y := 0; y < v.Shape[1]; y++ {
			for x := 0; x < v.Shape[0]; x++ {
				window = window[:0]
				visitNeighborhood(v, x, y, z, func(val float64) {
					window = append(window, val)
				})
				out.Set(x, y, z, median(window))
			}
		}
	}
	return out
}

func addNoise(v *models.Volume, sigma float64) *models.Volume {
	min, max := v.MinMax()
	scale := (max - min) * sigma
	out := v.Clone()
	for i := range out.Data {
		out.Data[i] += rand.NormFloat64() * scale
	}
	return out
}

func visitNeighborhood(v *models.Volume, x, y, z int, fn func(float64)) {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny, nz := x+dx, y+dy, z+dz
				if nx < 0 || ny < 0 || nz < 0 || nx >= v.Shape[0] || ny >= v.Shape[1] || nz >= v.Shape[2] {
					continue
				}
				fn(v.At(nx, ny, nz))
			}
		}
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
