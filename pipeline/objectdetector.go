package pipeline

import (
	"math"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/codec"
	"github.com/khaledhikmat/od-prepost/service/labels"
)

var _ Handler = (*ObjectDetector)(nil)

// ObjectDetector is the Handler for SSD style detection models that emit
// detection_scores, detection_boxes, detection_classes and num_detections.
// It holds no per-request state and is safe for concurrent use.
type ObjectDetector struct {
	codec     codec.IService
	converter TensorConverter
	labels    labels.IService
}

func NewObjectDetector(codecSvc codec.IService, converter TensorConverter, labelsSvc labels.IService) *ObjectDetector {
	return &ObjectDetector{
		codec:     codecSvc,
		converter: converter,
		labels:    labelsSvc,
	}
}

// Preprocess decodes every raw image and converts it into a tensor. The
// tensors are returned in request order and are not batched.
func (d *ObjectDetector) Preprocess(raw model.RawInputs) (model.ProcessedInputs, error) {
	if len(raw.Images) == 0 {
		return model.ProcessedInputs{}, &model.InputError{Field: "image", Reason: "at least one image is required"}
	}

	tensors := make([]model.Tensor, 0, len(raw.Images))
	for i, buf := range raw.Images {
		px, err := d.codec.Decode(buf)
		if err != nil {
			return model.ProcessedInputs{}, &model.ImageDecodeError{Index: i, Err: err}
		}

		tensor, err := d.converter.FromPixels(px)
		if err != nil {
			return model.ProcessedInputs{}, &model.ImageDecodeError{Index: i, Err: err}
		}
		tensors = append(tensors, tensor)
	}

	return model.ProcessedInputs{Images: tensors}, nil
}

// Postprocess keeps, for every batch element, the detections whose score is
// at least the threshold. Detections keep the model's order.
func (d *ObjectDetector) Postprocess(raw model.RawInputs, outputs model.RawOutputs) (model.ProcessedOutputs, error) {
	threshold := raw.Threshold
	if math.IsNaN(float64(threshold)) || threshold < 0 || threshold > 1 {
		return model.ProcessedOutputs{}, &model.InputError{Field: "threshold", Reason: "must be within [0, 1]"}
	}

	batch := len(outputs.NumDetections)
	if batch == 0 {
		return model.ProcessedOutputs{}, &model.OutputShapeError{Output: "numDetections", Batch: 0, Want: 1, Got: 0}
	}

	all := make([][]model.Detection, 0, batch)
	for b := 0; b < batch; b++ {
		preds, err := d.postprocessOne(b, threshold, outputs)
		if err != nil {
			return model.ProcessedOutputs{}, err
		}
		all = append(all, preds)
	}

	processed := model.ProcessedOutputs{
		Status:      model.StatusOK,
		Predictions: all[0],
	}
	if batch > 1 {
		processed.BatchPredictions = all
	}
	return processed, nil
}

func (d *ObjectDetector) postprocessOne(b int, threshold float32, outputs model.RawOutputs) ([]model.Detection, error) {
	num := outputs.NumDetections[b]
	if math.IsNaN(float64(num)) || num < 0 {
		return nil, &model.OutputShapeError{Output: "numDetections", Batch: b, Want: 0, Got: -1}
	}
	n := int(num)

	var scores []float32
	if b < len(outputs.DetectionScores) {
		scores = outputs.DetectionScores[b]
	}
	if len(scores) < n {
		return nil, &model.OutputShapeError{Output: "detectionScores", Batch: b, Want: n, Got: len(scores)}
	}

	var boxes [][4]float32
	if b < len(outputs.DetectionBoxes) {
		boxes = outputs.DetectionBoxes[b]
	}
	if len(boxes) < n {
		return nil, &model.OutputShapeError{Output: "detectionBoxes", Batch: b, Want: n, Got: len(boxes)}
	}

	var classes []float32
	if b < len(outputs.DetectionClasses) {
		classes = outputs.DetectionClasses[b]
	}
	if len(classes) < n {
		return nil, &model.OutputShapeError{Output: "detectionClasses", Batch: b, Want: n, Got: len(classes)}
	}

	preds := []model.Detection{}
	for i := 0; i < n; i++ {
		if scores[i] < threshold {
			continue
		}

		class := classes[i]
		if math.IsNaN(float64(class)) {
			return nil, &model.LabelLookupError{Index: -1, Size: d.labels.Len()}
		}
		label, err := d.labels.Lookup(int(class))
		if err != nil {
			return nil, err
		}

		preds = append(preds, model.Detection{
			Label:        label,
			Probability:  scores[i],
			DetectionBox: boxes[i],
		})
	}

	return preds, nil
}

// ErrorPostprocess builds the well formed response for a failed request
func (d *ObjectDetector) ErrorPostprocess(message string) model.ProcessedOutputs {
	return model.ProcessedOutputs{
		Status:      model.StatusError,
		Message:     message,
		Predictions: []model.Detection{},
	}
}
