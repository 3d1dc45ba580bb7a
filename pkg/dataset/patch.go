package dataset

import (
	"fmt"
	"math/rand"

	"multiatlas3d/internal/models"
)

// cropPolicy is the patch-center rule, resolved once at dataset
// construction. Exactly one policy is active per dataset.
type cropPolicy int

const (
	// policyVolumeCenter uses the geometric center of each volume,
	// computed separately for target and atlases since their shapes may
	// differ after per-volume scaling.
	policyVolumeCenter cropPolicy = iota
	// policyFixedCenter uses the caller-supplied coordinate verbatim.
	policyFixedCenter
	// policyRandom samples a center uniformly so the patch fits inside
	// the volume.
	policyRandom
	// policyRandomForeground samples like policyRandom but restricted to
	// a window around the foreground centroid, biasing patches toward
	// foreground.
	policyRandomForeground
	// policyFixedForeground centers the patch on the foreground centroid.
	policyFixedForeground
)

// patchPolicy resolves the mutually exclusive crop-center flags in priority
// order: explicit center, random, random-over-foreground, foreground-fixed,
// then the geometric-center default.
func (o Options) patchPolicy() cropPolicy {
	switch {
	case o.PatchCenter != nil:
		return policyFixedCenter
	case o.RandomCrop && !o.CropROI:
		return policyRandom
	case o.RandomCrop && o.CropROI:
		return policyRandomForeground
	case !o.RandomCrop && o.CropROI:
		return policyFixedForeground
	default:
		return policyVolumeCenter
	}
}

// patchCenters computes the crop centers for the target and atlas stacks.
// All policies except the geometric-center default derive a single center
// from the target label and reuse it for the atlases.
func (d *Dataset) patchCenters(targetLabel *models.Volume, atlasShape [3]int) (target, atlas [3]int, err error) {
	size := d.opts.PatchSize
	shape := targetLabel.Shape

	switch d.policy {
	case policyFixedCenter:
		target = *d.opts.PatchCenter

	case policyRandom:
		for i := 0; i < 3; i++ {
			lo := size[i] / 2
			hi := shape[i] + size[i]/2 - size[i] + 1
			target[i] = lo + rand.Intn(hi-lo)
		}

	case policyRandomForeground:
		fg, err := ForegroundCenter(targetLabel, d.opts.LabelIntensity)
		if err != nil {
			return target, atlas, err
		}
		for i := 0; i < 3; i++ {
			lo := maxInt(fg[i]-size[i]+size[i]/2+1, size[i]/2)
			hi := minInt(fg[i]+size[i]/2, shape[i]+size[i]/2-size[i]+1)
			if hi <= lo {
				return target, atlas, fmt.Errorf(
					"empty patch-center range on axis %d: foreground center %v, patch size %v, volume size %v",
					i, fg, size, shape)
			}
			target[i] = lo + rand.Intn(hi-lo)
		}

	case policyFixedForeground:
		target, err = ForegroundCenter(targetLabel, d.opts.LabelIntensity)
		if err != nil {
			return target, atlas, err
		}

	default: // policyVolumeCenter
		for i := 0; i < 3; i++ {
			target[i] = shape[i] / 2
			atlas[i] = atlasShape[i] / 2
		}
		return target, atlas, nil
	}

	return target, target, nil
}

// patchBounds derives the half-open slicing interval for a patch. The
// bounds must fall inside the volume; a center that pushes the patch out of
// bounds is an error, never clamped.
func patchBounds(center, size, shape [3]int) (begin, end [3]int, err error) {
	for i := 0; i < 3; i++ {
		begin[i] = center[i] - size[i]/2
		end[i] = begin[i] + size[i]
		if begin[i] < 0 || end[i] > shape[i] {
			return begin, end, fmt.Errorf(
				"patch [%v, %v) centered at %v falls outside volume of size %v", begin, end, center, shape)
		}
	}
	return begin, end, nil
}

// validatePatchSize enforces the precondition patch_size <= volume_shape on
// every axis.
func validatePatchSize(size, shape [3]int, role string) error {
	for i := 0; i < 3; i++ {
		if size[i] > shape[i] {
			return fmt.Errorf("patch size %v exceeds %s volume size %v", size, role, shape)
		}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
