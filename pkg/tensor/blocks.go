package tensor

import "fmt"

// Partition splits the three spatial axes of a processed tensor of shape
// [n, X, Y, Z, ...] into an even grid of blocks and stacks the blocks along
// the leading axis, yielding [n*bx*by*bz, X/bx, Y/by, Z/bz, ...]. A grid of
// (1, 1, 1) is the identity.
func Partition(t *Tensor, blocks [3]int) (*Tensor, error) {
	if blocks == [3]int{1, 1, 1} {
		return t, nil
	}
	if t.Rank() < 4 {
		return nil, fmt.Errorf("partition needs a [n, X, Y, Z, ...] tensor, got shape %v", t.Shape)
	}
	for i := 0; i < 3; i++ {
		if blocks[i] < 1 {
			return nil, fmt.Errorf("invalid block grid %v", blocks)
		}
		if t.Shape[1+i]%blocks[i] != 0 {
			return nil, fmt.Errorf("spatial shape %v not divisible by block grid %v", t.Shape[1:4], blocks)
		}
	}

	lead := t.Shape[0]
	sx, sy, sz := t.Shape[1], t.Shape[2], t.Shape[3]
	bx, by, bz := sx/blocks[0], sy/blocks[1], sz/blocks[2]
	tail := 1
	for _, s := range t.Shape[4:] {
		tail *= s
	}

	shape := append([]int{lead * blocks[0] * blocks[1] * blocks[2], bx, by, bz}, t.Shape[4:]...)
	out := New(shape...)

	block := 0
	for ix := 0; ix < blocks[0]; ix++ {
		for iy := 0; iy < blocks[1]; iy++ {
			for iz := 0; iz < blocks[2]; iz++ {
				for n := 0; n < lead; n++ {
					dstLead := block*lead + n
					for x := 0; x < bx; x++ {
						for y := 0; y < by; y++ {
							for z := 0; z < bz; z++ {
								src := ((((n*sx+ix*bx+x)*sy+iy*by+y)*sz + iz*bz + z) * tail)
								dst := ((((dstLead*bx+x)*by+y)*bz + z) * tail)
								copy(out.Data[dst:dst+tail], t.Data[src:src+tail])
							}
						}
					}
				}
				block++
			}
		}
	}
	return out, nil
}
