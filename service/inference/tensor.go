package inference

import (
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
)

const channels = 3

// PixelsToTensor converts a decoded RGB grid into a [height, width, 3] uint8
// tensor, the layout TF object detection exports expect for image_tensor.
func PixelsToTensor(px model.Pixels) (model.Tensor, error) {
	if px.Width <= 0 || px.Height <= 0 {
		return model.Tensor{}, xerrors.Errorf("invalid pixel grid %dx%d", px.Width, px.Height)
	}
	if len(px.Data) != px.Width*px.Height*channels {
		return model.Tensor{}, xerrors.Errorf("pixel grid %dx%d holds %d bytes, want %d",
			px.Width, px.Height, len(px.Data), px.Width*px.Height*channels)
	}

	data := make([]uint8, len(px.Data))
	copy(data, px.Data)
	return model.Tensor{
		Shape: []int64{int64(px.Height), int64(px.Width), channels},
		Data:  data,
	}, nil
}

// Stack batches per image tensors of identical shape into one
// [batch, height, width, 3] tensor.
func Stack(images []model.Tensor) (model.Tensor, error) {
	if len(images) == 0 {
		return model.Tensor{}, xerrors.New("cannot stack an empty batch")
	}

	shape := images[0].Shape
	if len(shape) != 3 {
		return model.Tensor{}, xerrors.Errorf("image 0: expected rank 3 tensor, got shape %v", shape)
	}
	size := len(images[0].Data)

	for i, img := range images[1:] {
		if !sameShape(shape, img.Shape) {
			return model.Tensor{}, xerrors.Errorf("image %d: shape %v does not match %v; resize images to a common size before batching", i+1, img.Shape, shape)
		}
		if len(img.Data) != size {
			return model.Tensor{}, xerrors.Errorf("image %d: holds %d values, want %d", i+1, len(img.Data), size)
		}
	}

	data := make([]uint8, 0, size*len(images))
	for _, img := range images {
		data = append(data, img.Data...)
	}

	return model.Tensor{
		Shape: append([]int64{int64(len(images))}, shape...),
		Data:  data,
	}, nil
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unflatten reshapes the flat detection outputs of a [batch, maxDetections]
// model into batch-major raw outputs.
func unflatten(batch, maxDetections int, boxes, classes, scores, num []float32) (model.RawOutputs, error) {
	switch {
	case len(boxes) != batch*maxDetections*4:
		return model.RawOutputs{}, xerrors.Errorf("boxes output holds %d values, want %d", len(boxes), batch*maxDetections*4)
	case len(classes) != batch*maxDetections:
		return model.RawOutputs{}, xerrors.Errorf("classes output holds %d values, want %d", len(classes), batch*maxDetections)
	case len(scores) != batch*maxDetections:
		return model.RawOutputs{}, xerrors.Errorf("scores output holds %d values, want %d", len(scores), batch*maxDetections)
	case len(num) != batch:
		return model.RawOutputs{}, xerrors.Errorf("num detections output holds %d values, want %d", len(num), batch)
	}

	out := model.RawOutputs{
		DetectionScores:  make([][]float32, batch),
		DetectionBoxes:   make([][][4]float32, batch),
		NumDetections:    make([]float32, batch),
		DetectionClasses: make([][]float32, batch),
	}
	copy(out.NumDetections, num)

	for b := 0; b < batch; b++ {
		lo, hi := b*maxDetections, (b+1)*maxDetections
		out.DetectionScores[b] = append([]float32(nil), scores[lo:hi]...)
		out.DetectionClasses[b] = append([]float32(nil), classes[lo:hi]...)

		out.DetectionBoxes[b] = make([][4]float32, maxDetections)
		for i := 0; i < maxDetections; i++ {
			off := (lo + i) * 4
			copy(out.DetectionBoxes[b][i][:], boxes[off:off+4])
		}
	}
	return out, nil
}
