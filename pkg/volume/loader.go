// Package volume loads 3D medical volumes from disk. NIfTI files and DICOM
// series directories are supported; both yield a voxel array plus spatial
// metadata, optionally downsampled by an integer power of two.
package volume

import (
	"multiatlas3d/internal/models"
)

// Interp selects the interpolation order used when a volume is rescaled.
type Interp int

const (
	// Linear interpolation, for intensity images.
	Linear Interp = iota
	// Nearest neighbour, for label and weight volumes whose values are
	// class codes and must not be blended.
	Nearest
)

// Loader reads a volume from a path. Implementations must be safe for
// concurrent use: samples are built in parallel.
type Loader interface {
	Load(path string, interp Interp) (*models.Volume, error)
}
