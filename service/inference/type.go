package inference

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/config"
)

// IService is the external model runtime: it converts decoded pixels into
// the tensors it expects and executes the detection model on a batch.
type IService interface {
	Name() string
	FromPixels(px model.Pixels) (model.Tensor, error)
	Execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error)
	Close() error
}

// Metrics are exposed by backends that pool runtime sessions
type Metrics struct {
	PoolSize        int   `json:"pool_size"`
	InUse           int   `json:"sessions_in_use"`
	TotalAcquired   int64 `json:"total_acquired"`
	TotalReleased   int64 `json:"total_released"`
	AcquireFailures int64 `json:"acquire_failures"`
	Executions      int64 `json:"executions"`
	Failures        int64 `json:"failures"`
}

type MetricsProvider interface {
	GetMetrics() Metrics
}

// New builds the backend selected by configuration
func New(cfgSvc config.IService) (IService, error) {
	switch cfgSvc.GetInferenceBackend() {
	case "onnx":
		return NewOnnx(cfgSvc)
	case "remote":
		return NewRemote(cfgSvc)
	case "fake":
		return NewFake(model.RawOutputs{}, nil), nil
	default:
		return nil, xerrors.Errorf("unknown inference backend %q", cfgSvc.GetInferenceBackend())
	}
}
