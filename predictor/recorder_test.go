package predictor

import (
	"context"
	"image/color"
	"testing"
	"time"

	"paprika/metrics"
)

func TestPredictFeedsRecorder(t *testing.T) {
	store := metrics.NewStore(metrics.StoreConfig{}, time.Now())
	p := setupTest(t, &invertGenerator{}, WithRecorder(store))
	input := writePNG(t, t.TempDir(), solidImage(8, 8, color.RGBA{7, 7, 7, 255}))

	res, err := p.Predict(context.Background(), Request{ID: "m-1", Image: input, Strength: 1})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	defer res.Artifact.Release()
	_, _ = p.Predict(context.Background(), Request{ID: "m-2", Image: "", Strength: 1})

	snap := store.Snapshot(10)
	if snap.Total != 2 || snap.Succeeded != 1 || snap.FailuresBy["validation"] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Recent[0].ID != "m-1" || snap.Recent[0].Style != "paprika" || snap.Recent[0].Device != "cpu" {
		t.Errorf("Recent[0] = %+v", snap.Recent[0])
	}
}
