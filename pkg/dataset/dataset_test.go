package dataset

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"multiatlas3d/internal/models"
	"multiatlas3d/pkg/tensor"
	"multiatlas3d/pkg/volume"
)

// fakeLoader serves pre-built volumes keyed by basename, standing in for the
// NIfTI and DICOM backends.
type fakeLoader struct {
	vols map[string]*models.Volume
}

func (f fakeLoader) Load(path string, interp volume.Interp) (*models.Volume, error) {
	v, ok := f.vols[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("no test volume for %s", path)
	}
	return v.Clone(), nil
}

// newTestDataset builds a one-target, one-atlas dataset over 8x8x8 synthetic
// volumes. The label foreground is a cube on [2, 5] per axis.
func newTestDataset(t *testing.T, mutate func(*Options)) *Dataset {
	t.Helper()
	dir := t.TempDir()
	touchFiles(t, dir,
		"t1_image.nii.gz", "t1_label.nii.gz",
		"a1_image.nii.gz", "a1_label.nii.gz",
	)

	shape := [3]int{8, 8, 8}
	image := models.NewVolume(shape)
	image.Meta.VoxelSize = [3]float64{1, 1, 1}
	for i := range image.Data {
		image.Data[i] = float64(i)
	}
	atlasImage := image.Clone()
	for i := range atlasImage.Data {
		atlasImage.Data[i] += 10
	}
	label := cubeLabel(shape, 2, 5)

	opts := DefaultOptions()
	opts.TargetPattern = filepath.Join(dir, "t1*.nii.gz")
	opts.AtlasPattern = filepath.Join(dir, "a1*.nii.gz")
	if mutate != nil {
		mutate(&opts)
	}

	loader := fakeLoader{vols: map[string]*models.Volume{
		"t1_image.nii.gz": image,
		"t1_label.nii.gz": label,
		"a1_image.nii.gz": atlasImage,
		"a1_label.nii.gz": label.Clone(),
	}}

	ds, err := NewWithLoader(opts, loader)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

func assertShape(t *testing.T, name string, got *tensor.Tensor, want ...int) {
	t.Helper()
	if got.Rank() != len(want) {
		t.Fatalf("%s: expected shape %v, got %v", name, want, got.Shape)
	}
	for i, s := range want {
		if got.Shape[i] != s {
			t.Fatalf("%s: expected shape %v, got %v", name, want, got.Shape)
		}
	}
}

// TestSampleNoCrop verifies the tensor contract of an uncropped sample,
// including the all-ones weight default and the neutral center.
func TestSampleNoCrop(t *testing.T) {
	ds := newTestDataset(t, nil)
	if ds.Len() != 1 {
		t.Fatalf("expected 1 sample, got %d", ds.Len())
	}

	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "target image", s.TargetImage, 1, 8, 8, 8, 1)
	assertShape(t, "target label", s.TargetLabel, 1, 8, 8, 8, 2)
	assertShape(t, "atlas image", s.AtlasImage, 1, 8, 8, 8, 1, 1)
	assertShape(t, "atlas label", s.AtlasLabel, 1, 8, 8, 8, 1, 2)
	assertShape(t, "target weight", s.TargetWeight, 1, 8, 8, 8, 2)
	assertShape(t, "atlas weight", s.AtlasWeight, 1, 8, 8, 8, 1, 2)

	for _, v := range s.TargetWeight.Data {
		if v != 1 {
			t.Fatal("default target weight is not all ones")
		}
	}
	if s.CenterPercent != [3]float64{0.5, 0.5, 0.5} {
		t.Errorf("expected neutral center percent, got %v", s.CenterPercent)
	}
}

// TestSampleOneHot verifies that exactly one label channel is active per
// voxel and that the foreground cube lands in channel 1.
func TestSampleOneHot(t *testing.T) {
	ds := newTestDataset(t, nil)
	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			for z := 0; z < 8; z++ {
				bg := s.TargetLabel.At(0, x, y, z, 0)
				fg := s.TargetLabel.At(0, x, y, z, 1)
				if bg+fg != 1 {
					t.Fatalf("voxel (%d,%d,%d): channels sum to %v", x, y, z, bg+fg)
				}
				inCube := x >= 2 && x <= 5 && y >= 2 && y <= 5 && z >= 2 && z <= 5
				if inCube && fg != 1 {
					t.Fatalf("voxel (%d,%d,%d): expected foreground", x, y, z)
				}
				if !inCube && fg != 0 {
					t.Fatalf("voxel (%d,%d,%d): expected background", x, y, z)
				}
			}
		}
	}
}

// TestSampleZScore verifies that the target image is normalized to zero mean.
func TestSampleZScore(t *testing.T) {
	ds := newTestDataset(t, nil)
	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := 0.0
	for _, v := range s.TargetImage.Data {
		sum += v
	}
	if mean := sum / float64(len(s.TargetImage.Data)); math.Abs(mean) > 1e-9 {
		t.Errorf("expected zero mean after z-score, got %v", mean)
	}
}

// TestSampleROICrop verifies foreground-bounding-box cropping and the
// pre-crop center percent.
func TestSampleROICrop(t *testing.T) {
	ds := newTestDataset(t, func(o *Options) {
		o.CropROI = true
		o.ROIMarginRate = 0
	})

	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "target image", s.TargetImage, 1, 4, 4, 4, 1)
	assertShape(t, "atlas label", s.AtlasLabel, 1, 4, 4, 4, 1, 2)

	// (2+5)/2 = 3 over a pre-crop extent of 8
	want := [3]float64{0.375, 0.375, 0.375}
	if s.CenterPercent != want {
		t.Errorf("expected center percent %v, got %v", want, s.CenterPercent)
	}
}

// TestSamplePatchCrop verifies fixed-center patch extraction.
func TestSamplePatchCrop(t *testing.T) {
	center := [3]int{4, 4, 4}
	ds := newTestDataset(t, func(o *Options) {
		o.CropPatch = true
		o.PatchSize = [3]int{4, 4, 4}
		o.PatchCenter = &center
	})

	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "target image", s.TargetImage, 1, 4, 4, 4, 1)
	assertShape(t, "atlas image", s.AtlasImage, 1, 4, 4, 4, 1, 1)
	if s.CenterPercent != [3]float64{0.5, 0.5, 0.5} {
		t.Errorf("expected center percent 0.5, got %v", s.CenterPercent)
	}
}

// TestSamplePatchTooLarge verifies the patch-size precondition at assembly
// time.
func TestSamplePatchTooLarge(t *testing.T) {
	ds := newTestDataset(t, func(o *Options) {
		o.CropPatch = true
		o.PatchSize = [3]int{16, 16, 16}
	})

	if _, err := ds.Sample(0); err == nil {
		t.Error("expected an error for a patch larger than the volume")
	}
}

// TestSampleBlocks verifies that block partitioning multiplies the leading
// axis and divides the spatial axes.
func TestSampleBlocks(t *testing.T) {
	ds := newTestDataset(t, func(o *Options) {
		o.NumBlocks = [3]int{2, 2, 2}
	})

	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "target image", s.TargetImage, 8, 4, 4, 4, 1)
	assertShape(t, "target label", s.TargetLabel, 8, 4, 4, 4, 2)
	assertShape(t, "atlas image", s.AtlasImage, 8, 4, 4, 4, 1, 1)
	assertShape(t, "target weight", s.TargetWeight, 8, 4, 4, 4, 2)
}

// TestSampleMultipleAtlases verifies the n_atlas axis width.
func TestSampleMultipleAtlases(t *testing.T) {
	dir := t.TempDir()
	touchFiles(t, dir,
		"t1_image.nii.gz", "t1_label.nii.gz",
		"a1_image.nii.gz", "a1_label.nii.gz",
		"a2_image.nii.gz", "a2_label.nii.gz",
	)

	shape := [3]int{8, 8, 8}
	image := models.NewVolume(shape)
	for i := range image.Data {
		image.Data[i] = float64(i)
	}
	label := cubeLabel(shape, 2, 5)

	opts := DefaultOptions()
	opts.TargetPattern = filepath.Join(dir, "t1*.nii.gz")
	opts.AtlasPattern = filepath.Join(dir, "a*.nii.gz")
	opts.NAtlas = 2

	loader := fakeLoader{vols: map[string]*models.Volume{
		"t1_image.nii.gz": image,
		"t1_label.nii.gz": label,
		"a1_image.nii.gz": image.Clone(),
		"a1_label.nii.gz": label.Clone(),
		"a2_image.nii.gz": image.Clone(),
		"a2_label.nii.gz": label.Clone(),
	}}

	ds, err := NewWithLoader(opts, loader)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "atlas image", s.AtlasImage, 1, 8, 8, 8, 2, 1)
	assertShape(t, "atlas label", s.AtlasLabel, 1, 8, 8, 8, 2, 2)
}

// TestValidateOptions covers the constructor-time configuration checks.
func TestValidateOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"bad stage", func(o *Options) { o.Stage = "triple" }},
		{"bad modality", func(o *Options) { o.TargetModality = "xray" }},
		{"intensity count", func(o *Options) { o.LabelIntensity = []float64{0} }},
		{"bad method", func(o *Options) { o.NormalizationMethod = "robust" }},
		{"bad format", func(o *Options) { o.Format = "analyze" }},
		{"zero atlases", func(o *Options) { o.NAtlas = 0 }},
		{"negative scale", func(o *Options) { o.Scale = -1 }},
		{"bad blocks", func(o *Options) { o.NumBlocks = [3]int{0, 1, 1} }},
	}
	for _, tc := range cases {
		opts := DefaultOptions()
		opts.TargetPattern = "unused"
		tc.mutate(&opts)
		if err := opts.validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

// TestMixtureCoefficients verifies per-class mixture fitting on an assembled
// sample.
func TestMixtureCoefficients(t *testing.T) {
	ds := newTestDataset(t, func(o *Options) {
		o.NSubtypes = []int{1, 1}
	})
	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps, err := ds.MixtureCoefficients(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("expected components for 2 classes, got %d", len(comps))
	}
	for k, c := range comps {
		if len(c.Means) != 1 || len(c.Weights) != 1 {
			t.Errorf("class %d: expected a single component, got %d", k, len(c.Means))
		}
	}
}
