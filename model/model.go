package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Processor, e.Message)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Detection is one object reported by the model that passed the threshold.
type Detection struct {
	Label        string     `json:"label"`
	Probability  float32    `json:"probability"`
	DetectionBox [4]float32 `json:"detectionBox"` // [yMin, xMin, yMax, xMax], normalized
}

// InferenceStats carries per-stage timings of a single request
type InferenceStats struct {
	RequestID   string        `json:"requestId"`
	Backend     string        `json:"backend"`
	Images      int           `json:"images"`
	Predictions int           `json:"predictions"`
	Preprocess  time.Duration `json:"preprocess"`
	Batch       time.Duration `json:"batch"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
	Total       time.Duration `json:"total"`
	Status      string        `json:"status"`
	Timestamp   int64         `json:"timestamp"`
}
