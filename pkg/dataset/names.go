package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/combin"
)

// SampleKey pairs one target volume with an ordered tuple of atlas volumes.
// The atlas tuple always has exactly n_atlas entries.
type SampleKey struct {
	Target  string
	Atlases []string
}

// findSampleKeys discovers target and atlas image files and builds every
// target/atlas-combination pair.
//
// Single stage pairs every target with every n_atlas-combination drawn from
// the whole atlas pool. Multi stage first narrows the pool per target to
// atlas names containing "target-" plus a slice of the target basename, and
// combines within that subset only.
func findSampleKeys(opts Options) ([]SampleKey, error) {
	targets, err := globSorted(opts.TargetPattern, opts.ImageSuffix)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target images match %q with suffix %q", opts.TargetPattern, opts.ImageSuffix)
	}

	atlasPattern := opts.AtlasPattern
	if atlasPattern == "" {
		atlasPattern = opts.TargetPattern
	}
	atlases, err := globSorted(atlasPattern, opts.ImageSuffix)
	if err != nil {
		return nil, err
	}

	logrus.Infof("found %d targets matching %s", len(targets), opts.TargetPattern)
	logrus.Infof("found %d atlases matching %s", len(atlases), atlasPattern)

	var keys []SampleKey
	switch opts.Stage {
	case StageMulti:
		for _, target := range targets {
			marker := "target-" + sliceName(filepath.Base(target), opts.NameIndexBegin, opts.NameIndexEnd)
			var pool []string
			for _, atlas := range atlases {
				if strings.Contains(atlas, marker) {
					pool = append(pool, atlas)
				}
			}
			combos := combinations(pool, opts.NAtlas)
			logrus.Infof("target %s: %d atlas combinations", filepath.Base(target), len(combos))
			for _, combo := range combos {
				keys = append(keys, SampleKey{Target: target, Atlases: combo})
			}
		}
	default: // StageSingle, enforced by Options.validate
		combos := combinations(atlases, opts.NAtlas)
		logrus.Infof("%d atlas combinations per target", len(combos))
		for _, target := range targets {
			for _, combo := range combos {
				keys = append(keys, SampleKey{Target: target, Atlases: combo})
			}
		}
	}
	return keys, nil
}

func globSorted(pattern, suffix string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad search pattern %q: %v", pattern, err)
	}
	var names []string
	for _, m := range matches {
		if strings.Contains(m, suffix) {
			names = append(names, m)
		}
	}
	sort.Strings(names)
	return names, nil
}

// combinations lists every unordered k-subset of names in lexical order of
// indices. A pool smaller than k has no combinations.
func combinations(names []string, k int) [][]string {
	if k < 1 || len(names) < k {
		return nil
	}
	idxSets := combin.Combinations(len(names), k)
	out := make([][]string, 0, len(idxSets))
	for _, idx := range idxSets {
		combo := make([]string, k)
		for i, j := range idx {
			combo[i] = names[j]
		}
		out = append(out, combo)
	}
	return out
}

// sliceName extracts name[begin:end] with Python slicing semantics: negative
// indices count from the end of the string and out-of-range bounds clamp.
func sliceName(name string, begin, end int) string {
	n := len(name)
	if begin < 0 {
		begin += n
	}
	if end < 0 {
		end += n
	}
	if begin < 0 {
		begin = 0
	}
	if end > n {
		end = n
	}
	if begin >= end {
		return ""
	}
	return name[begin:end]
}

// relatedPath derives a label or weight path from an image path by suffix
// substitution. The substitution replaces the first occurrence only; a path
// whose directory also contains the image suffix is ambiguous and not
// defended against here.
func relatedPath(imagePath, imageSuffix, otherSuffix string) string {
	return strings.Replace(imagePath, imageSuffix, otherSuffix, 1)
}
