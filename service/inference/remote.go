package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/config"
)

type remoteService struct {
	endpoint    string
	inputName   string
	outputNames config.OutputNames
	client      *http.Client
	executions  atomic.Int64
	failures    atomic.Int64
}

type predictRequest struct {
	SignatureName string                 `json:"signature_name"`
	Inputs        map[string]interface{} `json:"inputs"`
}

type predictResponse struct {
	Outputs map[string]json.RawMessage `json:"outputs"`
	Error   string                     `json:"error"`
}

// NewRemote executes the model on a TensorFlow Serving REST endpoint, for
// example http://serving:8501/v1/models/ssd:predict, using the columnar
// "inputs"/"outputs" request format.
func NewRemote(cfgSvc config.IService) (IService, error) {
	if cfgSvc.GetRemoteEndpoint() == "" {
		return nil, xerrors.New("remote inference requires an endpoint")
	}
	return &remoteService{
		endpoint:    cfgSvc.GetRemoteEndpoint(),
		inputName:   cfgSvc.GetInputName(),
		outputNames: cfgSvc.GetOutputNames(),
		client: &http.Client{
			Timeout: time.Duration(cfgSvc.GetRequestTimeout()) * time.Second,
		},
	}, nil
}

func (svc *remoteService) Name() string {
	return "tf-serving"
}

func (svc *remoteService) FromPixels(px model.Pixels) (model.Tensor, error) {
	return PixelsToTensor(px)
}

func (svc *remoteService) Execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error) {
	svc.executions.Add(1)
	out, err := svc.execute(ctx, batch)
	if err != nil {
		svc.failures.Add(1)
	}
	return out, err
}

func (svc *remoteService) execute(ctx context.Context, batch model.Tensor) (model.RawOutputs, error) {
	instances, err := nestImages(batch)
	if err != nil {
		return model.RawOutputs{}, err
	}

	body, err := json.Marshal(predictRequest{
		SignatureName: "serving_default",
		Inputs:        map[string]interface{}{svc.inputName: instances},
	})
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RawOutputs{}, xerrors.Errorf("read predict response: %w", err)
	}

	var pr predictResponse
	if err := json.Unmarshal(payload, &pr); err != nil {
		return model.RawOutputs{}, xerrors.Errorf("decode predict response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || pr.Error != "" {
		return model.RawOutputs{}, xerrors.Errorf("predict failed with status %d: %s", resp.StatusCode, pr.Error)
	}

	var out model.RawOutputs
	fields := []struct {
		name string
		dst  interface{}
	}{
		{svc.outputNames.DetectionScores, &out.DetectionScores},
		{svc.outputNames.DetectionBoxes, &out.DetectionBoxes},
		{svc.outputNames.NumDetections, &out.NumDetections},
		{svc.outputNames.DetectionClasses, &out.DetectionClasses},
	}
	for _, f := range fields {
		raw, ok := pr.Outputs[f.name]
		if !ok {
			return model.RawOutputs{}, xerrors.Errorf("predict response misses output %q", f.name)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return model.RawOutputs{}, xerrors.Errorf("decode output %q: %w", f.name, err)
		}
	}

	return out, nil
}

// nestImages turns a flat [batch, height, width, 3] tensor into nested
// arrays, the only tensor encoding the REST API accepts.
func nestImages(batch model.Tensor) ([][][][3]uint8, error) {
	if len(batch.Shape) != 4 || batch.Shape[3] != channels {
		return nil, xerrors.Errorf("expected a [batch, height, width, 3] tensor, got shape %v", batch.Shape)
	}
	b, h, w := int(batch.Shape[0]), int(batch.Shape[1]), int(batch.Shape[2])
	if len(batch.Data) != b*h*w*channels {
		return nil, xerrors.Errorf("tensor of shape %v holds %d values", batch.Shape, len(batch.Data))
	}

	out := make([][][][3]uint8, b)
	i := 0
	for n := 0; n < b; n++ {
		out[n] = make([][][3]uint8, h)
		for y := 0; y < h; y++ {
			out[n][y] = make([][3]uint8, w)
			for x := 0; x < w; x++ {
				copy(out[n][y][x][:], batch.Data[i:i+channels])
				i += channels
			}
		}
	}
	return out, nil
}

func (svc *remoteService) GetMetrics() Metrics {
	return Metrics{
		Executions: svc.executions.Load(),
		Failures:   svc.failures.Load(),
	}
}

func (svc *remoteService) Close() error {
	svc.client.CloseIdleConnections()
	return nil
}
