package dataset

import "testing"

// TestCollate verifies that batching concatenates along the sample axis and
// collects per-sample metadata.
func TestCollate(t *testing.T) {
	ds := newTestDataset(t, nil)
	first, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, err := Collate([]*Sample{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertShape(t, "target image", batch.TargetImage, 2, 8, 8, 8, 1)
	assertShape(t, "target label", batch.TargetLabel, 2, 8, 8, 8, 2)
	assertShape(t, "atlas image", batch.AtlasImage, 2, 8, 8, 8, 1, 1)
	assertShape(t, "atlas weight", batch.AtlasWeight, 2, 8, 8, 8, 1, 2)
	assertShape(t, "center percent", batch.CenterPercent, 2, 3)

	if len(batch.Meta) != 2 {
		t.Errorf("expected metadata for 2 samples, got %d", len(batch.Meta))
	}
	if got := batch.CenterPercent.At(1, 0); got != second.CenterPercent[0] {
		t.Errorf("expected center percent %v, got %v", second.CenterPercent[0], got)
	}
}

// TestCollateEmpty verifies the empty-batch error.
func TestCollateEmpty(t *testing.T) {
	if _, err := Collate(nil); err == nil {
		t.Error("expected an error for an empty batch")
	}
}
