//go:build gocv
// +build gocv

package codec

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
)

type gocvService struct {
	maxDimension int
}

// NewGocv decodes with OpenCV. The binary must be built with -tags gocv.
func NewGocv(maxDimension int) (IService, error) {
	return &gocvService{maxDimension: maxDimension}, nil
}

func (svc *gocvService) Name() string {
	return "gocv"
}

func (svc *gocvService) Decode(buf []byte) (model.Pixels, error) {
	if len(buf) == 0 {
		return model.Pixels{}, xerrors.New("empty image buffer")
	}

	mat, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return model.Pixels{}, xerrors.Errorf("gocv decode: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return model.Pixels{}, xerrors.New("gocv decode: empty image")
	}

	src := mat
	if svc.maxDimension > 0 && (mat.Cols() > svc.maxDimension || mat.Rows() > svc.maxDimension) {
		scale := float64(svc.maxDimension) / float64(max(mat.Cols(), mat.Rows()))
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Point{}, scale, scale, gocv.InterpolationArea)
		src = resized
	}

	// OpenCV decodes to BGR
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(src, &rgb, gocv.ColorBGRToRGB)

	return model.Pixels{
		Width:  rgb.Cols(),
		Height: rgb.Rows(),
		Data:   rgb.ToBytes(),
	}, nil
}
