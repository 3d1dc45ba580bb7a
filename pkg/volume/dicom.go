package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"multiatlas3d/internal/models"
)

// DicomLoader reads a volume from a directory of single-slice DICOM files.
// Slices are ordered by InstanceNumber; multi-frame files contribute their
// frames in file order. Scale behaves as in NiftiLoader.
type DicomLoader struct {
	Scale int
}

type dicomSlice struct {
	instance int
	pixels   [][]float64 // one entry per frame, row-major
	rows     int
	cols     int
}

// Load reads every .dcm file under path and assembles the slice stack.
func (l *DicomLoader) Load(path string, interp Interp) (*models.Volume, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".dcm") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, pfx.Err(fmt.Errorf("no DICOM slices found under %s", path))
	}

	slices := make([]dicomSlice, 0, len(files))
	var spacing [3]float64
	for _, f := range files {
		s, err := readDicomSlice(f, &spacing)
		if err != nil {
			return nil, err
		}
		slices = append(slices, s)
	}
	sort.Slice(slices, func(i, j int) bool { return slices[i].instance < slices[j].instance })

	rows, cols := slices[0].rows, slices[0].cols
	depth := 0
	for _, s := range slices {
		if s.rows != rows || s.cols != cols {
			return nil, pfx.Err(fmt.Errorf("inconsistent slice dimensions in %s: %dx%d vs %dx%d",
				path, s.cols, s.rows, cols, rows))
		}
		depth += len(s.pixels)
	}

	out := models.NewVolume([3]int{cols, rows, depth})
	z := 0
	for _, s := range slices {
		for _, frame := range s.pixels {
			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					out.Set(x, y, z, frame[y*cols+x])
				}
			}
			z++
		}
	}

	out.Meta.VoxelSize = spacing
	for i := 0; i < 3; i++ {
		out.Meta.Affine[i][i] = spacing[i]
	}
	out.Meta.Affine[3][3] = 1

	if l.Scale > 0 {
		out = Downsample(out, l.Scale, interp)
	}
	return out, nil
}

func readDicomSlice(path string, spacing *[3]float64) (dicomSlice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return dicomSlice{}, pfx.Err(fmt.Errorf("parsing %s: %w", path, err))
	}

	var s dicomSlice
	if el, err := ds.FindElementByTag(tag.InstanceNumber); err == nil {
		if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
			s.instance, _ = strconv.Atoi(strings.TrimSpace(vals[0]))
		}
	}
	if el, err := ds.FindElementByTag(tag.PixelSpacing); err == nil {
		if vals, ok := el.Value.GetValue().([]string); ok && len(vals) >= 2 {
			spacing[0], _ = strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
			spacing[1], _ = strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
		}
	}
	if el, err := ds.FindElementByTag(tag.SliceThickness); err == nil {
		if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
			spacing[2], _ = strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
		}
	}

	pde, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return dicomSlice{}, pfx.Err(fmt.Errorf("no pixel data in %s: %w", path, err))
	}
	info := dicom.MustGetPixelDataInfo(pde.Value)
	for _, fr := range info.Frames {
		img, err := fr.GetImage()
		if err != nil {
			return dicomSlice{}, pfx.Err(fmt.Errorf("decoding frame of %s: %w", path, err))
		}
		bounds := img.Bounds()
		cols, rows := bounds.Dx(), bounds.Dy()
		pixels := make([]float64, cols*rows)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				pixels[y*cols+x] = float64(v)
			}
		}
		s.rows, s.cols = rows, cols
		s.pixels = append(s.pixels, pixels)
	}
	if len(s.pixels) == 0 {
		return dicomSlice{}, pfx.Err(fmt.Errorf("no frames in %s", path))
	}
	return s, nil
}
