// Package visualization writes PNG previews of processed sample tensors so
// crop geometry and normalization can be inspected by eye.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"multiatlas3d/pkg/dataset"
	"multiatlas3d/pkg/tensor"
)

// SaveSampleSlices writes the middle axial slice of the target image, the
// target label (class indices) and every atlas image of a sample as
// grayscale PNGs under dir, named with the given prefix.
func SaveSampleSlices(s *dataset.Sample, dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %v", err)
	}

	if err := saveMiddleSlice(s.TargetImage, 0, filepath.Join(dir, prefix+"_target_image.png")); err != nil {
		return err
	}
	if err := saveLabelSlice(s.TargetLabel, filepath.Join(dir, prefix+"_target_label.png")); err != nil {
		return err
	}

	nAtlas := s.AtlasImage.Shape[s.AtlasImage.Rank()-2]
	for a := 0; a < nAtlas; a++ {
		name := filepath.Join(dir, fmt.Sprintf("%s_atlas_%02d_image.png", prefix, a))
		if err := saveMiddleSliceAtlas(s.AtlasImage, a, name); err != nil {
			return err
		}
	}
	return nil
}

// saveMiddleSlice renders channel c of a [n, x, y, z, channels] tensor at
// the middle z plane of its first block.
func saveMiddleSlice(t *tensor.Tensor, c int, path string) error {
	nx, ny, nz := t.Shape[1], t.Shape[2], t.Shape[3]
	z := nz / 2
	pixels := make([]float64, nx*ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			pixels[y*nx+x] = t.At(0, x, y, z, c)
		}
	}
	return writeGrayPNG(pixels, nx, ny, path)
}

// saveMiddleSliceAtlas does the same for one atlas of a
// [n, x, y, z, n_atlas, channels] tensor.
func saveMiddleSliceAtlas(t *tensor.Tensor, atlas int, path string) error {
	nx, ny, nz := t.Shape[1], t.Shape[2], t.Shape[3]
	z := nz / 2
	pixels := make([]float64, nx*ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			pixels[y*nx+x] = t.At(0, x, y, z, atlas, 0)
		}
	}
	return writeGrayPNG(pixels, nx, ny, path)
}

// saveLabelSlice renders the argmax class index of a one-hot label tensor.
func saveLabelSlice(t *tensor.Tensor, path string) error {
	nx, ny, nz := t.Shape[1], t.Shape[2], t.Shape[3]
	nClass := t.Shape[t.Rank()-1]
	z := nz / 2
	pixels := make([]float64, nx*ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			best, bestVal := 0, t.At(0, x, y, z, 0)
			for k := 1; k < nClass; k++ {
				if v := t.At(0, x, y, z, k); v > bestVal {
					best, bestVal = k, v
				}
			}
			pixels[y*nx+x] = float64(best)
		}
	}
	return writeGrayPNG(pixels, nx, ny, path)
}

// writeGrayPNG rescales pixel values to the full 16-bit range and encodes
// them as a grayscale PNG.
func writeGrayPNG(pixels []float64, width, height int, path string) error {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range pixels {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	if span <= 0 || math.IsInf(span, 0) {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := pixels[y*width+x]
			if math.IsNaN(v) {
				v = min
			}
			img.Set(x, y, color.Gray16{Y: uint16((v - min) / span * math.MaxUint16)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode image: %v", err)
	}
	return nil
}
