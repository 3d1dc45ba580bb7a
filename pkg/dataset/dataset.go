// Package dataset assembles "target + N atlas" training samples for
// multi-atlas segmentation: it discovers volume files, pairs targets with
// atlas combinations, computes crop geometry, and produces normalized,
// one-hot-encoded tensors ready for batching.
package dataset

import (
	"fmt"

	"github.com/carbocation/pfx"

	"multiatlas3d/internal/models"
	"multiatlas3d/pkg/augment"
	"multiatlas3d/pkg/mixture"
	"multiatlas3d/pkg/preprocess"
	"multiatlas3d/pkg/tensor"
	"multiatlas3d/pkg/volume"
)

// Stage names for target/atlas pairing.
const (
	StageSingle = "single"
	StageMulti  = "multi"
)

// Volume file formats.
const (
	FormatNifti = "nifti"
	FormatDicom = "dicom"
)

// Options is the immutable dataset configuration. It is copied at
// construction and never mutated afterwards, so samples can be built
// concurrently without coordination.
type Options struct {
	// TargetPattern and AtlasPattern are glob patterns locating image
	// files. An empty AtlasPattern reuses TargetPattern.
	TargetPattern string
	AtlasPattern  string

	// ImageSuffix identifies image files among the glob matches; label
	// and weight paths are derived from an image path by substituting
	// LabelSuffix or WeightSuffix for ImageSuffix. An empty WeightSuffix
	// disables weight loading.
	ImageSuffix  string
	LabelSuffix  string
	WeightSuffix string

	// NAtlas is the number of atlases paired with each target.
	NAtlas int

	// Train is part of the construction contract but does not alter
	// control flow.
	Train bool

	// Crop mode flags. CropROI together with CropPatch means "bias the
	// patch center toward foreground"; CropROI alone means "crop to the
	// foreground bounding box".
	CropPatch  bool
	RandomCrop bool
	CropROI    bool

	// PatchSize is the patch extent per axis; PatchCenter, when set,
	// fixes the patch center explicitly.
	PatchSize   [3]int
	PatchCenter *[3]int

	// Channels is the image channel count (grayscale tiled).
	Channels int

	// NClass and LabelIntensity define the one-hot encoding; index 0 is
	// background.
	NClass         int
	LabelIntensity []float64

	// ImageNormalization applies intensity normalization to atlas
	// images; target images are always normalized. ImageAugmentation
	// applies the augmentation filter to target images only.
	ImageNormalization bool
	ImageAugmentation  bool

	// NSubtypes is the per-class component count for mixture fitting.
	NSubtypes []int

	// Scale is the downsampling exponent: each axis shrinks by 2^Scale.
	Scale int

	// NumBlocks partitions processed tensors into a spatial block grid.
	NumBlocks [3]int

	// Stage selects single- or multi-stage atlas pairing.
	Stage string

	// TargetModality and AtlasModality are "mr" or "ct".
	TargetModality string
	AtlasModality  string

	// NameIndexBegin/End slice the target basename to build the
	// multi-stage correlation marker (Python slice semantics).
	NameIndexBegin int
	NameIndexEnd   int

	// NormalizationMethod is "z-score" or "min-max".
	NormalizationMethod string

	// AMin/AMax clip CT intensities; both zero means unbounded.
	AMin float64
	AMax float64

	// ROIMarginRate expands the ROI bounding box.
	ROIMarginRate float64

	// Format selects the volume backend.
	Format string
}

// DefaultOptions mirrors the conventional provider defaults.
func DefaultOptions() Options {
	return Options{
		ImageSuffix:         "image.nii.gz",
		LabelSuffix:         "label.nii.gz",
		NAtlas:              1,
		Train:               true,
		PatchSize:           [3]int{64, 64, 64},
		Channels:            1,
		NClass:              2,
		LabelIntensity:      []float64{0, 205},
		ImageNormalization:  true,
		NSubtypes:           []int{2, 1},
		NumBlocks:           [3]int{1, 1, 1},
		Stage:               StageSingle,
		TargetModality:      "mr",
		AtlasModality:       "mr",
		NameIndexEnd:        -1,
		NormalizationMethod: "z-score",
		ROIMarginRate:       0.1,
		Format:              FormatNifti,
	}
}

func (o Options) validate() error {
	if o.Stage != StageSingle && o.Stage != StageMulti {
		return fmt.Errorf("stage must be %q or %q, got %q", StageSingle, StageMulti, o.Stage)
	}
	for _, m := range []string{o.TargetModality, o.AtlasModality} {
		if m != "mr" && m != "ct" {
			return fmt.Errorf("modality must be 'mr' or 'ct', got %q", m)
		}
	}
	if len(o.LabelIntensity) != o.NClass {
		return fmt.Errorf("%d label intensities for %d classes", len(o.LabelIntensity), o.NClass)
	}
	if o.NormalizationMethod != "z-score" && o.NormalizationMethod != "min-max" {
		return fmt.Errorf("unknown normalization method %q", o.NormalizationMethod)
	}
	if o.Format != FormatNifti && o.Format != FormatDicom {
		return fmt.Errorf("unknown volume format %q", o.Format)
	}
	if o.NAtlas < 1 {
		return fmt.Errorf("n_atlas must be at least 1, got %d", o.NAtlas)
	}
	if o.Scale < 0 {
		return fmt.Errorf("scale must be non-negative, got %d", o.Scale)
	}
	for i := 0; i < 3; i++ {
		if o.NumBlocks[i] < 1 {
			return fmt.Errorf("invalid block grid %v", o.NumBlocks)
		}
		if o.CropPatch && o.PatchSize[i] < 1 {
			return fmt.Errorf("invalid patch size %v", o.PatchSize)
		}
	}
	return nil
}

// Sample is one assembled training example. Tensor shapes:
// target image [1, x, y, z, channels], target label and weight
// [1, x, y, z, n_class], atlas tensors carry an extra n_atlas axis in
// second-to-last position.
type Sample struct {
	TargetImage  *tensor.Tensor
	TargetLabel  *tensor.Tensor
	TargetWeight *tensor.Tensor
	AtlasImage   *tensor.Tensor
	AtlasLabel   *tensor.Tensor
	AtlasWeight  *tensor.Tensor

	// Meta is the target volume's spatial metadata.
	Meta models.Metadata

	// CenterPercent is the crop center normalized to [0, 1] per axis
	// against the pre-crop target label shape.
	CenterPercent [3]float64
}

// Dataset maps indices onto assembled samples. Construction resolves the
// configuration once; Sample is a pure function of (index, options, files)
// apart from the process-global random source.
type Dataset struct {
	opts   Options
	keys   []SampleKey
	loader volume.Loader
	filter augment.Filter
	policy cropPolicy
}

// New builds a dataset using the file-format loader named in the options.
func New(opts Options) (*Dataset, error) {
	var loader volume.Loader
	switch opts.Format {
	case FormatDicom:
		loader = &volume.DicomLoader{Scale: opts.Scale}
	default:
		loader = &volume.NiftiLoader{Scale: opts.Scale}
	}
	return NewWithLoader(opts, loader)
}

// NewWithLoader builds a dataset around an explicit volume loader.
func NewWithLoader(opts Options, loader volume.Loader) (*Dataset, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	keys, err := findSampleKeys(opts)
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		opts:   opts,
		keys:   keys,
		loader: loader,
		policy: opts.patchPolicy(),
	}
	if opts.ImageAugmentation {
		d.filter = augment.RandomFilter{}
	}
	return d, nil
}

// Len returns the number of target/atlas-combination pairs.
func (d *Dataset) Len() int { return len(d.keys) }

// Key returns the raw sample key for an index.
func (d *Dataset) Key(index int) SampleKey { return d.keys[index] }

// Sample assembles the training example for an index. Failures are
// all-or-nothing; no partial sample is returned.
func (d *Dataset) Sample(index int) (*Sample, error) {
	key := d.keys[index]
	opts := d.opts

	targetImage, err := d.loader.Load(key.Target, volume.Linear)
	if err != nil {
		return nil, err
	}
	targetLabel, err := d.loader.Load(relatedPath(key.Target, opts.ImageSuffix, opts.LabelSuffix), volume.Nearest)
	if err != nil {
		return nil, err
	}

	atlasImages := make([]*models.Volume, opts.NAtlas)
	atlasLabels := make([]*models.Volume, opts.NAtlas)
	for i, name := range key.Atlases {
		if atlasImages[i], err = d.loader.Load(name, volume.Linear); err != nil {
			return nil, err
		}
		if atlasLabels[i], err = d.loader.Load(relatedPath(name, opts.ImageSuffix, opts.LabelSuffix), volume.Nearest); err != nil {
			return nil, err
		}
	}

	var targetWeight *models.Volume
	atlasWeights := make([]*models.Volume, 0, opts.NAtlas)
	if opts.WeightSuffix != "" {
		if targetWeight, err = d.loader.Load(relatedPath(key.Target, opts.ImageSuffix, opts.WeightSuffix), volume.Linear); err != nil {
			return nil, err
		}
		for _, name := range key.Atlases {
			w, err := d.loader.Load(relatedPath(name, opts.ImageSuffix, opts.WeightSuffix), volume.Linear)
			if err != nil {
				return nil, err
			}
			atlasWeights = append(atlasWeights, w)
		}
	}

	sample := &Sample{
		Meta:          targetImage.Meta,
		CenterPercent: [3]float64{0.5, 0.5, 0.5},
	}

	switch {
	case opts.CropROI && !opts.CropPatch:
		low, high, err := ROICoordinates(targetLabel, opts.LabelIntensity, opts.ROIMarginRate)
		if err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			sample.CenterPercent[i] = float64((low[i]+high[i])/2) / float64(targetLabel.Shape[i])
		}
		end := [3]int{high[0] + 1, high[1] + 1, high[2] + 1}
		if err := cropAll(low, end, &targetImage, &targetLabel, &targetWeight, atlasImages, atlasLabels, atlasWeights); err != nil {
			return nil, err
		}

	case opts.CropPatch:
		if err := validatePatchSize(opts.PatchSize, targetLabel.Shape, "target"); err != nil {
			return nil, err
		}
		for _, al := range atlasLabels {
			if err := validatePatchSize(opts.PatchSize, al.Shape, "atlas"); err != nil {
				return nil, err
			}
		}
		targetCenter, atlasCenter, err := d.patchCenters(targetLabel, atlasLabels[0].Shape)
		if err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			sample.CenterPercent[i] = float64(targetCenter[i]) / float64(targetLabel.Shape[i])
		}
		tBegin, tEnd, err := patchBounds(targetCenter, opts.PatchSize, targetLabel.Shape)
		if err != nil {
			return nil, err
		}
		aBegin, aEnd, err := patchBounds(atlasCenter, opts.PatchSize, atlasLabels[0].Shape)
		if err != nil {
			return nil, err
		}
		if err := cropAll(tBegin, tEnd, &targetImage, &targetLabel, &targetWeight, nil, nil, nil); err != nil {
			return nil, err
		}
		if err := cropAll(aBegin, aEnd, nil, nil, nil, atlasImages, atlasLabels, atlasWeights); err != nil {
			return nil, err
		}
	}

	targetOpts := preprocess.ImageOptions{
		Modality: opts.TargetModality,
		AMin:     opts.AMin,
		AMax:     opts.AMax,
		Channels: opts.Channels,
		Method:   opts.NormalizationMethod,
	}
	atlasOpts := targetOpts
	atlasOpts.Modality = opts.AtlasModality

	// Target images are always normalized; augmentation never touches
	// atlases.
	if sample.TargetImage, err = preprocess.ProcessImage(targetImage, targetOpts, true, d.filter); err != nil {
		return nil, err
	}
	sample.TargetLabel = preprocess.ProcessLabel(targetLabel, opts.LabelIntensity)

	atlasImageT := make([]*tensor.Tensor, opts.NAtlas)
	atlasLabelT := make([]*tensor.Tensor, opts.NAtlas)
	for i := range atlasImages {
		if atlasImageT[i], err = preprocess.ProcessImage(atlasImages[i], atlasOpts, opts.ImageNormalization, nil); err != nil {
			return nil, err
		}
		atlasLabelT[i] = preprocess.ProcessLabel(atlasLabels[i], opts.LabelIntensity)
	}
	sample.AtlasImage = tensor.Stack(atlasImageT, -2)
	sample.AtlasLabel = tensor.Stack(atlasLabelT, -2)

	if opts.WeightSuffix != "" {
		sample.TargetWeight = weightTensor(targetWeight, opts.NClass)
		atlasWeightT := make([]*tensor.Tensor, len(atlasWeights))
		for i, w := range atlasWeights {
			atlasWeightT[i] = weightTensor(w, opts.NClass)
		}
		sample.AtlasWeight = tensor.Stack(atlasWeightT, -2)
	}

	for _, t := range []**tensor.Tensor{
		&sample.TargetImage, &sample.TargetLabel, &sample.TargetWeight,
		&sample.AtlasImage, &sample.AtlasLabel, &sample.AtlasWeight,
	} {
		if *t == nil {
			continue
		}
		if *t, err = tensor.Partition(*t, opts.NumBlocks); err != nil {
			return nil, err
		}
	}

	// Missing weight maps default to all-ones matching the label shape.
	if sample.TargetWeight == nil {
		sample.TargetWeight = tensor.Ones(sample.TargetLabel.Shape...)
	}
	if sample.AtlasWeight == nil {
		sample.AtlasWeight = tensor.Ones(sample.AtlasLabel.Shape...)
	}
	return sample, nil
}

// cropAll applies one set of bounds to every non-nil volume, keeping image,
// label and weight crops aligned per role.
func cropAll(begin, end [3]int, image, label, weight **models.Volume, atlasImages, atlasLabels []*models.Volume, atlasWeights []*models.Volume) error {
	var err error
	for _, v := range []**models.Volume{image, label} {
		if v == nil || *v == nil {
			continue
		}
		if *v, err = (*v).Crop(begin, end); err != nil {
			return err
		}
	}
	if weight != nil && *weight != nil {
		if *weight, err = (*weight).Crop(begin, end); err != nil {
			return err
		}
	}
	for _, set := range [][]*models.Volume{atlasImages, atlasLabels, atlasWeights} {
		for i := range set {
			if set[i], err = set[i].Crop(begin, end); err != nil {
				return err
			}
		}
	}
	return nil
}

// weightTensor expands a scalar weight map to the label tensor contract
// [1, x, y, z, n_class] by tiling the trailing axis.
func weightTensor(w *models.Volume, nClass int) *tensor.Tensor {
	flat := &tensor.Tensor{Shape: []int{w.Shape[0], w.Shape[1], w.Shape[2]}, Data: w.Data}
	return flat.ExpandDims(-1).Repeat(-1, nClass).ExpandDims(0)
}

// LoadProbability loads a list of probability-map volumes with nearest
// interpolation, stacks them on a new trailing axis and rescales by
// maxValue (1000 when zero).
func (d *Dataset) LoadProbability(paths []string, maxValue float64) (*tensor.Tensor, error) {
	if maxValue == 0 {
		maxValue = 1000
	}
	if len(paths) == 0 {
		return nil, pfx.Err(fmt.Errorf("no probability maps given"))
	}
	stack := make([]*tensor.Tensor, len(paths))
	for i, p := range paths {
		v, err := d.loader.Load(p, volume.Nearest)
		if err != nil {
			return nil, err
		}
		stack[i] = &tensor.Tensor{Shape: []int{v.Shape[0], v.Shape[1], v.Shape[2]}, Data: v.Data}
	}
	out := tensor.Stack(stack, -1)
	for i := range out.Data {
		out.Data[i] /= maxValue
	}
	return out, nil
}

// MixtureCoefficients fits a Gaussian mixture to the target image
// intensities of each class, with the per-class component counts from
// NSubtypes. Image intensities are summed over the channel axis before
// fitting, matching the provider convention.
func (d *Dataset) MixtureCoefficients(s *Sample) ([]mixture.Components, error) {
	if len(d.opts.NSubtypes) != d.opts.NClass {
		return nil, fmt.Errorf("%d subtype counts for %d classes", len(d.opts.NSubtypes), d.opts.NClass)
	}
	channels := s.TargetImage.Shape[s.TargetImage.Rank()-1]
	nClass := s.TargetLabel.Shape[s.TargetLabel.Rank()-1]
	voxels := s.TargetImage.Len() / channels
	if s.TargetLabel.Len()/nClass != voxels {
		return nil, fmt.Errorf("image and label tensors disagree on voxel count")
	}

	out := make([]mixture.Components, nClass)
	for k := 0; k < nClass; k++ {
		var values []float64
		for v := 0; v < voxels; v++ {
			if s.TargetLabel.Data[v*nClass+k] != 1 {
				continue
			}
			sum := 0.0
			for c := 0; c < channels; c++ {
				sum += s.TargetImage.Data[v*channels+c]
			}
			values = append(values, sum)
		}
		comp, err := mixture.Fit(values, d.opts.NSubtypes[k], 100)
		if err != nil {
			return nil, fmt.Errorf("fitting class %d: %v", k, err)
		}
		out[k] = comp
	}
	return out, nil
}
