// Package preprocess turns raw volumes into normalized, channel-expanded
// tensors: intensity processing for images and one-hot encoding for labels.
package preprocess

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"multiatlas3d/internal/models"
	"multiatlas3d/pkg/augment"
	"multiatlas3d/pkg/tensor"
)

// ImageOptions configures intensity processing of a single volume.
type ImageOptions struct {
	// Modality is "mr" or "ct" and selects the clipping rule.
	Modality string

	// AMin and AMax bound CT intensities. Unset bounds are ±Inf.
	AMin float64
	AMax float64

	// Channels is the width of the trailing channel axis; the grayscale
	// input is tiled across it.
	Channels int

	// Method is the normalization method, "z-score" or "min-max".
	Method string
}

// ProcessImage clips, optionally augments and normalizes a volume, then
// expands it to a [1, x, y, z, channels] tensor. The input volume is not
// modified. A z-score over a constant volume divides by a zero standard
// deviation and yields NaN; that is the caller's edge case to avoid, not a
// silently-zeroed one.
func ProcessImage(v *models.Volume, opts ImageOptions, normalize bool, filter augment.Filter) (*tensor.Tensor, error) {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)

	switch opts.Modality {
	case "mr":
		p99, err := stats.Percentile(stats.Float64Data(data), 99)
		if err != nil {
			return nil, fmt.Errorf("computing clip percentile: %v", err)
		}
		clip(data, math.Inf(-1), p99)
	case "ct":
		aMin, aMax := opts.AMin, opts.AMax
		if aMin == 0 && aMax == 0 {
			aMin, aMax = math.Inf(-1), math.Inf(1)
		}
		clip(data, aMin, aMax)
	default:
		return nil, fmt.Errorf("unknown modality %q, must be 'mr' or 'ct'", opts.Modality)
	}

	if filter != nil {
		work := &models.Volume{Data: data, Shape: v.Shape, Meta: v.Meta}
		data = filter.Apply(work).Data
	}

	if normalize {
		switch opts.Method {
		case "z-score":
			mean, std := stat.MeanStdDev(data, nil)
			for i := range data {
				data[i] = (data[i] - mean) / std
			}
		case "min-max":
			work := &models.Volume{Data: data, Shape: v.Shape}
			min, max := work.MinMax()
			span := max - min
			for i := range data {
				data[i] = (data[i] - min) / span
			}
		default:
			return nil, fmt.Errorf("unknown normalization method %q", opts.Method)
		}
	}

	channels := opts.Channels
	if channels < 1 {
		channels = 1
	}
	flat := &tensor.Tensor{Shape: []int{v.Shape[0], v.Shape[1], v.Shape[2]}, Data: data}
	return flat.ExpandDims(-1).Repeat(-1, channels).ExpandDims(0), nil
}

func clip(data []float64, lo, hi float64) {
	for i, val := range data {
		if val < lo {
			data[i] = lo
		} else if val > hi {
			data[i] = hi
		}
	}
}
