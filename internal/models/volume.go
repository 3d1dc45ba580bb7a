package models

import "fmt"

// Volume is a 3D scalar field with spatial metadata. The voxel data is
// stored as a 1D array in row-major [x][y][z] order, z varying fastest:
// index = (x*Shape[1] + y)*Shape[2] + z.
type Volume struct {
	// Data is the voxel intensities as a flat array
	Data []float64

	// Shape is the number of voxels along the x, y and z axes
	Shape [3]int

	// Meta carries the spatial metadata read alongside the voxels
	Meta Metadata
}

// Metadata is the spatial information attached to a loaded volume.
type Metadata struct {
	// Affine maps voxel indices to physical coordinates
	Affine [4][4]float64

	// VoxelSize is the physical extent of one voxel in mm per axis
	VoxelSize [3]float64
}

// NewVolume allocates a zero-filled volume of the given shape.
func NewVolume(shape [3]int) *Volume {
	return &Volume{
		Data:  make([]float64, shape[0]*shape[1]*shape[2]),
		Shape: shape,
	}
}

// Index returns the flat index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return (x*v.Shape[1]+y)*v.Shape[2] + z
}

// At returns the intensity at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:  make([]float64, len(v.Data)),
		Shape: v.Shape,
		Meta:  v.Meta,
	}
	copy(out.Data, v.Data)
	return out
}

// Crop returns a new volume holding the voxels in [begin, end) per axis.
// The bounds must lie inside the volume.
func (v *Volume) Crop(begin, end [3]int) (*Volume, error) {
	for i := 0; i < 3; i++ {
		if begin[i] < 0 || end[i] > v.Shape[i] || begin[i] >= end[i] {
			return nil, fmt.Errorf("crop bounds [%v, %v) outside volume of shape %v", begin, end, v.Shape)
		}
	}
	out := NewVolume([3]int{end[0] - begin[0], end[1] - begin[1], end[2] - begin[2]})
	out.Meta = v.Meta
	for x := begin[0]; x < end[0]; x++ {
		for y := begin[1]; y < end[1]; y++ {
			src := v.Index(x, y, begin[2])
			dst := out.Index(x-begin[0], y-begin[1], 0)
			copy(out.Data[dst:dst+out.Shape[2]], v.Data[src:src+out.Shape[2]])
		}
	}
	return out, nil
}

// MinMax returns the smallest and largest intensity in the volume.
func (v *Volume) MinMax() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	min, max = v.Data[0], v.Data[0]
	for _, val := range v.Data {
		if val < min {
			min = val
		}
		if val > max {
			max = val
		}
	}
	return min, max
}
