package data

import "github.com/khaledhikmat/od-prepost/model"

type IService interface {
	NewResult(requestID string, outputs model.ProcessedOutputs) error
	NewError(err interface{}) error
	NewInferenceStats(stats model.InferenceStats) error
	Close() error
}
