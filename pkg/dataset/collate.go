package dataset

import (
	"fmt"

	"multiatlas3d/internal/models"
	"multiatlas3d/pkg/tensor"
)

// Batch is a stack of samples: every tensor field is concatenated along the
// leading sample axis, while spatial metadata stays a per-sample sequence
// (affines and headers are not uniform arrays). CenterPercent is collected
// into an [N, 3] tensor.
type Batch struct {
	TargetImage  *tensor.Tensor
	TargetLabel  *tensor.Tensor
	TargetWeight *tensor.Tensor
	AtlasImage   *tensor.Tensor
	AtlasLabel   *tensor.Tensor
	AtlasWeight  *tensor.Tensor

	Meta          []models.Metadata
	CenterPercent *tensor.Tensor
}

// Collate merges samples of identical tensor shapes into one batch.
func Collate(samples []*Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot collate an empty batch")
	}

	pick := func(get func(*Sample) *tensor.Tensor) *tensor.Tensor {
		parts := make([]*tensor.Tensor, len(samples))
		for i, s := range samples {
			parts[i] = get(s)
		}
		return tensor.Concat(parts, 0)
	}

	b := &Batch{
		TargetImage:  pick(func(s *Sample) *tensor.Tensor { return s.TargetImage }),
		TargetLabel:  pick(func(s *Sample) *tensor.Tensor { return s.TargetLabel }),
		TargetWeight: pick(func(s *Sample) *tensor.Tensor { return s.TargetWeight }),
		AtlasImage:   pick(func(s *Sample) *tensor.Tensor { return s.AtlasImage }),
		AtlasLabel:   pick(func(s *Sample) *tensor.Tensor { return s.AtlasLabel }),
		AtlasWeight:  pick(func(s *Sample) *tensor.Tensor { return s.AtlasWeight }),
	}

	b.Meta = make([]models.Metadata, len(samples))
	b.CenterPercent = tensor.New(len(samples), 3)
	for i, s := range samples {
		b.Meta[i] = s.Meta
		for j := 0; j < 3; j++ {
			b.CenterPercent.Set(s.CenterPercent[j], i, j)
		}
	}
	return b, nil
}
