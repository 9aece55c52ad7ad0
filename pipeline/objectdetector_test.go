package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/codec"
	"github.com/khaledhikmat/od-prepost/service/inference"
	"github.com/khaledhikmat/od-prepost/service/labels"
)

func cocoLabels() labels.IService {
	names := make([]string, 80)
	for i := range names {
		names[i] = fmt.Sprintf("class-%d", i)
	}
	names[0] = "person"
	names[3] = "motorcycle"
	names[79] = "toothbrush"
	return labels.New(names)
}

func newDetector() *ObjectDetector {
	return NewObjectDetector(codec.NewImaging(0), inference.NewFake(model.RawOutputs{}, nil), cocoLabels())
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func single(scores []float32, boxes [][4]float32, classes []float32, num float32) model.RawOutputs {
	return model.RawOutputs{
		DetectionScores:  [][]float32{scores},
		DetectionBoxes:   [][][4]float32{boxes},
		NumDetections:    []float32{num},
		DetectionClasses: [][]float32{classes},
	}
}

func TestPreprocess(t *testing.T) {
	d := newDetector()
	raw := model.RawInputs{Images: [][]byte{encodePNG(t, 4, 3), encodePNG(t, 2, 2)}, Threshold: 0.5}

	processed, err := d.Preprocess(raw)
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if len(processed.Images) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(processed.Images))
	}
	shape := processed.Images[0].Shape
	if shape[0] != 3 || shape[1] != 4 || shape[2] != 3 {
		t.Fatalf("unexpected shape: %v", shape)
	}
	if processed.Images[0].Data[0] != 200 || processed.Images[0].Data[2] != 50 {
		t.Fatalf("unexpected pixel values: %v", processed.Images[0].Data[:3])
	}
}

func TestPreprocessDecodeErrorNamesIndex(t *testing.T) {
	d := newDetector()
	raw := model.RawInputs{Images: [][]byte{encodePNG(t, 2, 2), []byte("not an image"), encodePNG(t, 2, 2)}}

	_, err := d.Preprocess(raw)
	var decodeErr *model.ImageDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected ImageDecodeError, got %v", err)
	}
	if decodeErr.Index != 1 {
		t.Fatalf("expected index 1, got %d", decodeErr.Index)
	}
}

func TestPreprocessRequiresImages(t *testing.T) {
	var inputErr *model.InputError
	if _, err := newDetector().Preprocess(model.RawInputs{}); !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func TestPostprocessDropsLowScores(t *testing.T) {
	d := newDetector()
	outputs := single(
		[]float32{0.9, 0.4},
		[][4]float32{{0, 0, 1, 1}, {0, 0, 0.5, 0.5}},
		[]float32{3, 7},
		2,
	)

	got, err := d.Postprocess(model.RawInputs{Threshold: 0.5}, outputs)
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	if got.Status != model.StatusOK {
		t.Fatalf("expected status ok, got %q", got.Status)
	}
	if len(got.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(got.Predictions))
	}
	want := model.Detection{Label: "motorcycle", Probability: 0.9, DetectionBox: [4]float32{0, 0, 1, 1}}
	if got.Predictions[0] != want {
		t.Fatalf("got %+v, want %+v", got.Predictions[0], want)
	}
	if got.BatchPredictions != nil {
		t.Fatalf("batch predictions must be empty for a single image")
	}
}

func TestPostprocessKeepsModelOrder(t *testing.T) {
	d := newDetector()
	outputs := single(
		[]float32{0.9, 0.6, 0.95},
		[][4]float32{{0, 0, 0.1, 0.1}, {0, 0, 0.2, 0.2}, {0, 0, 0.3, 0.3}},
		[]float32{0, 1, 2},
		3,
	)

	got, err := d.Postprocess(model.RawInputs{Threshold: 0.5}, outputs)
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	wantLabels := []string{"person", "class-1", "class-2"}
	if len(got.Predictions) != len(wantLabels) {
		t.Fatalf("expected %d predictions, got %d", len(wantLabels), len(got.Predictions))
	}
	for i, p := range got.Predictions {
		if p.Label != wantLabels[i] || p.Probability != outputs.DetectionScores[0][i] {
			t.Fatalf("prediction %d = %+v, want label %q", i, p, wantLabels[i])
		}
	}
}

func TestPostprocessThreshold(t *testing.T) {
	scores := []float32{0.1, 0.25, 0.5, 0.75, 1}
	boxes := make([][4]float32, len(scores))
	classes := make([]float32, len(scores))
	outputs := single(scores, boxes, classes, float32(len(scores)))

	tests := []struct {
		threshold float32
		want      int
	}{
		{0, 5},
		{0.25, 4}, // equal to threshold is kept
		{0.5, 3},
		{0.76, 1},
		{1, 1},
	}

	d := newDetector()
	for _, tt := range tests {
		got, err := d.Postprocess(model.RawInputs{Threshold: tt.threshold}, outputs)
		if err != nil {
			t.Fatalf("threshold %v: Postprocess() error = %v", tt.threshold, err)
		}
		if len(got.Predictions) != tt.want {
			t.Fatalf("threshold %v: expected %d predictions, got %d", tt.threshold, tt.want, len(got.Predictions))
		}
		for _, p := range got.Predictions {
			if p.Probability < tt.threshold {
				t.Fatalf("threshold %v: emitted prediction below threshold: %+v", tt.threshold, p)
			}
		}
	}
}

func TestPostprocessUsesReportedCount(t *testing.T) {
	// arrays are padded to 3 but the model reports a single detection
	outputs := single(
		[]float32{0.9, 0.9, 0.9},
		[][4]float32{{0, 0, 1, 1}, {0, 0, 1, 1}, {0, 0, 1, 1}},
		[]float32{0, 0, 0},
		1,
	)
	got, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, outputs)
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	if len(got.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(got.Predictions))
	}
}

func TestPostprocessNoDetections(t *testing.T) {
	got, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, single(nil, nil, nil, 0))
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	if got.Status != model.StatusOK {
		t.Fatalf("expected status ok, got %q", got.Status)
	}
	if got.Predictions == nil || len(got.Predictions) != 0 {
		t.Fatalf("expected empty non-nil predictions, got %#v", got.Predictions)
	}
}

func TestPostprocessLabelBoundaries(t *testing.T) {
	outputs := single(
		[]float32{0.8, 0.7},
		[][4]float32{{0, 0, 1, 1}, {0, 0, 1, 1}},
		[]float32{0, 79},
		2,
	)
	got, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, outputs)
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	if got.Predictions[0].Label != "person" || got.Predictions[1].Label != "toothbrush" {
		t.Fatalf("unexpected labels: %+v", got.Predictions)
	}
}

func TestPostprocessUnknownClass(t *testing.T) {
	for _, class := range []float32{99, 80, -1, float32(math.NaN())} {
		outputs := single([]float32{0.9}, [][4]float32{{0, 0, 1, 1}}, []float32{class}, 1)
		got, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, outputs)

		var lookupErr *model.LabelLookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("class %v: expected LabelLookupError, got %v", class, err)
		}
		if lookupErr.Size != 80 {
			t.Fatalf("class %v: unexpected table size %d", class, lookupErr.Size)
		}
		if len(got.Predictions) != 0 {
			t.Fatalf("class %v: no prediction may be produced, got %+v", class, got.Predictions)
		}
	}

	// a below threshold detection is never looked up
	outputs := single([]float32{0.1}, [][4]float32{{0, 0, 1, 1}}, []float32{99}, 1)
	if _, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, outputs); err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
}

func TestPostprocessShapeViolations(t *testing.T) {
	tests := []struct {
		name    string
		outputs model.RawOutputs
		output  string
	}{
		{"no batch", model.RawOutputs{}, "numDetections"},
		{"short scores", single([]float32{0.9}, [][4]float32{{}, {}}, []float32{0, 0}, 2), "detectionScores"},
		{"short boxes", single([]float32{0.9, 0.9}, [][4]float32{{}}, []float32{0, 0}, 2), "detectionBoxes"},
		{"short classes", single([]float32{0.9, 0.9}, [][4]float32{{}, {}}, []float32{0}, 2), "detectionClasses"},
		{"negative count", single(nil, nil, nil, -1), "numDetections"},
		{"missing batch element", model.RawOutputs{
			DetectionScores:  [][]float32{{0.9}},
			DetectionBoxes:   [][][4]float32{{{}}},
			NumDetections:    []float32{1, 1},
			DetectionClasses: [][]float32{{0}},
		}, "detectionScores"},
	}

	d := newDetector()
	for _, tt := range tests {
		_, err := d.Postprocess(model.RawInputs{Threshold: 0.5}, tt.outputs)
		var shapeErr *model.OutputShapeError
		if !errors.As(err, &shapeErr) {
			t.Fatalf("%s: expected OutputShapeError, got %v", tt.name, err)
		}
		if shapeErr.Output != tt.output {
			t.Fatalf("%s: expected output %q, got %q", tt.name, tt.output, shapeErr.Output)
		}
	}
}

func TestPostprocessRejectsInvalidThreshold(t *testing.T) {
	outputs := single(nil, nil, nil, 0)
	for _, threshold := range []float32{-0.1, 1.5, float32(math.NaN())} {
		var inputErr *model.InputError
		if _, err := newDetector().Postprocess(model.RawInputs{Threshold: threshold}, outputs); !errors.As(err, &inputErr) {
			t.Fatalf("threshold %v: expected InputError, got %v", threshold, err)
		}
	}
}

func TestPostprocessBatch(t *testing.T) {
	outputs := model.RawOutputs{
		DetectionScores:  [][]float32{{0.9}, {0.3, 0.8}},
		DetectionBoxes:   [][][4]float32{{{0, 0, 1, 1}}, {{0, 0, 0.1, 0.1}, {0, 0, 0.2, 0.2}}},
		NumDetections:    []float32{1, 2},
		DetectionClasses: [][]float32{{3}, {0, 79}},
	}

	got, err := newDetector().Postprocess(model.RawInputs{Threshold: 0.5}, outputs)
	if err != nil {
		t.Fatalf("Postprocess() error = %v", err)
	}
	if len(got.BatchPredictions) != 2 {
		t.Fatalf("expected 2 batch entries, got %d", len(got.BatchPredictions))
	}
	if len(got.Predictions) != 1 || got.Predictions[0].Label != "motorcycle" {
		t.Fatalf("first image predictions must mirror batch entry 0: %+v", got.Predictions)
	}
	second := got.BatchPredictions[1]
	if len(second) != 1 || second[0].Label != "toothbrush" || second[0].DetectionBox != [4]float32{0, 0, 0.2, 0.2} {
		t.Fatalf("unexpected second image predictions: %+v", second)
	}
}

func TestErrorPostprocess(t *testing.T) {
	got := newDetector().ErrorPostprocess("timeout")
	if got.Status == model.StatusOK {
		t.Fatalf("error response must not report ok")
	}
	if got.Message != "timeout" {
		t.Fatalf("expected message %q, got %q", "timeout", got.Message)
	}
	if len(got.Predictions) != 0 {
		t.Fatalf("expected no predictions, got %+v", got.Predictions)
	}
}
