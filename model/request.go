package model

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RawInputs are the caller supplied values of a request: independently
// encoded image buffers and the inclusive acceptance threshold.
type RawInputs struct {
	Images    [][]byte `json:"image"`
	Threshold float32  `json:"threshold"`
}

// Validate checks the inputs that can be rejected before any image is
// decoded or the model is run.
func (r RawInputs) Validate() error {
	if len(r.Images) == 0 {
		return &InputError{Field: "image", Reason: "at least one image is required"}
	}
	t := float64(r.Threshold)
	if math.IsNaN(t) || t < 0 || t > 1 {
		return &InputError{Field: "threshold", Reason: "must be within [0, 1]"}
	}
	return nil
}

// Pixels is a decoded image: Height rows of Width RGB triplets.
type Pixels struct {
	Width  int
	Height int
	Data   []uint8
}

// Tensor is a dense row-major uint8 tensor. Image tensors have shape
// [height, width, 3]; batches have shape [batch, height, width, 3].
type Tensor struct {
	Shape []int64
	Data  []uint8
}

// ProcessedInputs are produced by preprocessing only. Images holds one
// tensor per raw image, in request order and not yet batched.
type ProcessedInputs struct {
	Images []Tensor
}

// RawOutputs are the batch-major arrays returned by the model executor.
type RawOutputs struct {
	DetectionScores  [][]float32    `json:"detectionScores"`
	DetectionBoxes   [][][4]float32 `json:"detectionBoxes"`
	NumDetections    []float32      `json:"numDetections"`
	DetectionClasses [][]float32    `json:"detectionClasses"`
}

// ProcessedOutputs is the caller facing response. Predictions holds the
// detections of the first image; BatchPredictions is filled only when the
// request carried more than one image.
type ProcessedOutputs struct {
	Status           string        `json:"status"`
	Message          string        `json:"message,omitempty"`
	Predictions      []Detection   `json:"predictions"`
	BatchPredictions [][]Detection `json:"batchPredictions,omitempty"`
}

// JSON renders the outputs as indented JSON.
func (o ProcessedOutputs) JSON() string {
	b, err := json.MarshalIndent(o, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// InferenceRequest identifies one inference cycle. It is created once per
// cycle and never reused.
type InferenceRequest struct {
	ID  string
	Raw RawInputs
}

func NewInferenceRequest(images [][]byte, threshold float32) InferenceRequest {
	return InferenceRequest{
		ID: uuid.NewString(),
		Raw: RawInputs{
			Images:    images,
			Threshold: threshold,
		},
	}
}
