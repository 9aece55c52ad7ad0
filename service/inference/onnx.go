package inference

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/config"
)

type onnxService struct {
	modelPath     string
	inputName     string
	outputNames   []string
	maxDetections int
	pool          *sessionPool[*ort.DynamicAdvancedSession]
	executions    atomic.Int64
	failures      atomic.Int64
	ownsEnv       bool
}

// onnxruntime environment hooks, replaced in tests
var (
	ortIsInitialized = ort.IsInitialized
	ortInitialize    = ort.InitializeEnvironment
	ortDestroy       = ort.DestroyEnvironment
)

// initEnvironment brings the onnxruntime environment up unless another
// service already did, and reports whether this call owns it.
func initEnvironment() (bool, error) {
	if ortIsInitialized() {
		return false, nil
	}
	if err := ortInitialize(); err != nil {
		return false, xerrors.Errorf("failed to initialize onnx environment: %w", err)
	}
	return true, nil
}

func releaseEnvironment(owned bool) error {
	if !owned {
		return nil
	}
	return ortDestroy()
}

// NewOnnx loads the detection model into a pool of onnxruntime sessions.
// The model must expose a uint8 [batch, height, width, 3] input and the
// boxes [batch, max, 4], classes [batch, max], scores [batch, max] and
// num detections [batch] outputs of a TF object detection export.
func NewOnnx(cfgSvc config.IService) (IService, error) {
	modelPath, err := filepath.Abs(filepath.Clean(cfgSvc.GetModelPath()))
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve onnx model path: %w", err)
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to stat onnx model %q: %w", modelPath, err)
	}
	if info.IsDir() {
		return nil, xerrors.Errorf("onnx model path %q is a directory", modelPath)
	}

	if lib := cfgSvc.GetRuntimeLibraryPath(); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	ownsEnv, err := initEnvironment()
	if err != nil {
		return nil, err
	}

	svc := &onnxService{
		ownsEnv:       ownsEnv,
		modelPath:     modelPath,
		inputName:     cfgSvc.GetInputName(),
		outputNames:   cfgSvc.GetOutputNames().Names(),
		maxDetections: cfgSvc.GetMaxDetections(),
	}

	threads := cfgSvc.GetIntraOpThreads()
	if threads <= 0 {
		threads = max(1, runtime.NumCPU()/cfgSvc.GetSessionPoolSize())
	}

	pool, err := newSessionPool(
		cfgSvc.GetSessionPoolSize(),
		time.Duration(cfgSvc.GetSessionAcquireTimeout())*time.Second,
		func(_ int) (*ort.DynamicAdvancedSession, error) {
			return svc.newSession(threads)
		},
		func(s *ort.DynamicAdvancedSession) {
			_ = s.Destroy()
		},
	)
	if err != nil {
		_ = releaseEnvironment(ownsEnv)
		return nil, err
	}
	svc.pool = pool

	return svc, nil
}

func (svc *onnxService) newSession(threads int) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, xerrors.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, xerrors.Errorf("error setting intra op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, xerrors.Errorf("error setting inter op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		svc.modelPath,
		[]string{svc.inputName},
		svc.outputNames,
		options,
	)
	if err != nil {
		return nil, xerrors.Errorf("error creating session: %w", err)
	}
	return session, nil
}

func (svc *onnxService) Name() string {
	return "onnxruntime"
}

func (svc *onnxService) FromPixels(px model.Pixels) (model.Tensor, error) {
	return PixelsToTensor(px)
}

func (svc *onnxService) Execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error) {
	svc.executions.Add(1)
	out, err := svc.execute(ctx, batch)
	if err != nil {
		svc.failures.Add(1)
	}
	return out, err
}

func (svc *onnxService) execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error) {
	if len(batch.Shape) != 4 {
		return model.RawOutputs{}, xerrors.Errorf("expected a [batch, height, width, 3] tensor, got shape %v", batch.Shape)
	}
	b := batch.Shape[0]
	n := int64(svc.maxDetections)

	input, err := ort.NewTensor(ort.NewShape(batch.Shape...), batch.Data)
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(b, n, 4))
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("error creating boxes tensor: %w", err)
	}
	defer boxes.Destroy()

	classes, err := ort.NewEmptyTensor[float32](ort.NewShape(b, n))
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("error creating classes tensor: %w", err)
	}
	defer classes.Destroy()

	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(b, n))
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("error creating scores tensor: %w", err)
	}
	defer scores.Destroy()

	num, err := ort.NewEmptyTensor[float32](ort.NewShape(b))
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("error creating num detections tensor: %w", err)
	}
	defer num.Destroy()

	session, err := svc.pool.Acquire(ctx)
	if err != nil {
		return model.RawOutputs{}, err
	}
	// order matches config.OutputNames.Names
	err = session.Run([]ort.Value{input}, []ort.Value{boxes, classes, scores, num})
	svc.pool.Release(session)
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("model inference: %w", err)
	}

	return unflatten(int(b), int(n), boxes.GetData(), classes.GetData(), scores.GetData(), num.GetData())
}

func (svc *onnxService) GetMetrics() Metrics {
	m := svc.pool.GetMetrics()
	m.Executions = svc.executions.Load()
	m.Failures = svc.failures.Load()
	return m
}

func (svc *onnxService) Close() error {
	svc.pool.Destroy()
	return releaseEnvironment(svc.ownsEnv)
}
