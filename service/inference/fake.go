package inference

import (
	"context"
	"sync"

	"github.com/khaledhikmat/od-prepost/model"
)

type fakeService struct {
	mu      sync.Mutex
	outputs model.RawOutputs
	err     error
	metrics Metrics
	batches []model.Tensor
}

// NewFake returns a runtime that answers every execution with outputs, or
// with err when it is not nil. Zero outputs answer with no detections for
// every image of the batch.
func NewFake(outputs model.RawOutputs, err error) IService {
	return &fakeService{
		outputs: outputs,
		err:     err,
		metrics: Metrics{PoolSize: 1},
	}
}

func (svc *fakeService) Name() string {
	return "fake"
}

func (svc *fakeService) FromPixels(px model.Pixels) (model.Tensor, error) {
	return PixelsToTensor(px)
}

func (svc *fakeService) Execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error) {
	if err := ctx.Err(); err != nil {
		return model.RawOutputs{}, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.batches = append(svc.batches, batch)
	svc.metrics.Executions++
	if svc.err != nil {
		svc.metrics.Failures++
		return model.RawOutputs{}, svc.err
	}
	if len(svc.outputs.NumDetections) == 0 && len(batch.Shape) > 0 {
		return emptyOutputs(int(batch.Shape[0])), nil
	}
	return svc.outputs, nil
}

func emptyOutputs(batch int) model.RawOutputs {
	return model.RawOutputs{
		DetectionScores:  make([][]float32, batch),
		DetectionBoxes:   make([][][4]float32, batch),
		NumDetections:    make([]float32, batch),
		DetectionClasses: make([][]float32, batch),
	}
}

func (svc *fakeService) GetMetrics() Metrics {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.metrics
}

// Batches returns every batch the fake has executed
func (svc *fakeService) Batches() []model.Tensor {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]model.Tensor(nil), svc.batches...)
}

func (svc *fakeService) Close() error {
	return nil
}
