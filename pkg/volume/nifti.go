package volume

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"

	"multiatlas3d/internal/models"
)

// NiftiLoader reads .nii / .nii.gz files. Scale is a non-negative exponent:
// every axis is shrunk by 2^Scale after loading.
type NiftiLoader struct {
	Scale int
}

// Load reads the voxel data and header of a NIfTI file. Only the first
// time point of 4D files is read.
func (l *NiftiLoader) Load(path string, interp Interp) (*models.Volume, error) {
	img, err := safeNiftiParse(path, true)
	if err != nil {
		return nil, err
	}
	hdr, err := safeNiftiHeaderParse(path)
	if err != nil {
		return nil, err
	}

	dims := img.GetDims()
	shape := [3]int{dims[0], dims[1], dims[2]}
	if shape[0] < 1 || shape[1] < 1 || shape[2] < 1 {
		return nil, pfx.Err(fmt.Errorf("degenerate volume dimensions %v in %s", shape, path))
	}

	out := models.NewVolume(shape)
	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				out.Set(x, y, z, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}

	// Pixdim[0] holds the qfac, the voxel extents start at index 1.
	for i := 0; i < 3; i++ {
		out.Meta.VoxelSize[i] = float64(hdr.Pixdim[i+1])
		out.Meta.Affine[i][i] = float64(hdr.Pixdim[i+1])
	}
	out.Meta.Affine[3][3] = 1

	if l.Scale > 0 {
		out = Downsample(out, l.Scale, interp)
	}
	return out, nil
}

// The nifti library panics on malformed input, so parsing is fenced with
// recover and surfaced as an ordinary error.
func safeNiftiParse(path string, rdata bool) (img nifti.Nifti1Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pfx.Err(fmt.Errorf("parsing nifti image %s: %v", path, r))
		}
	}()
	img.LoadImage(path, rdata)
	return img, nil
}

func safeNiftiHeaderParse(path string) (hdr nifti.Nifti1Header, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pfx.Err(fmt.Errorf("parsing nifti header %s: %v", path, r))
		}
	}()
	hdr.LoadHeader(path)
	return hdr, nil
}
