package pipeline

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/codec"
	"github.com/khaledhikmat/od-prepost/service/config"
	"github.com/khaledhikmat/od-prepost/service/data"
	"github.com/khaledhikmat/od-prepost/service/inference"
	"github.com/khaledhikmat/od-prepost/service/labels"
	"github.com/khaledhikmat/od-prepost/service/storage"
)

type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	StorageSvc   storage.IService
	CodecSvc     codec.IService
	InferenceSvc inference.IService
	LabelsSvc    labels.IService
	Tracer       trace.Tracer
}

// Handler adapts caller inputs to a model and the model's outputs back to
// the caller. Each method takes the previous phase's value and returns the
// next one; nothing is mutated in place.
type Handler interface {
	Preprocess(raw model.RawInputs) (model.ProcessedInputs, error)
	Postprocess(raw model.RawInputs, outputs model.RawOutputs) (model.ProcessedOutputs, error)
	ErrorPostprocess(message string) model.ProcessedOutputs
}

// TensorConverter turns a decoded pixel grid into the runtime's input tensor
type TensorConverter interface {
	FromPixels(px model.Pixels) (model.Tensor, error)
}
