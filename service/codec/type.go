package codec

import (
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
)

// IService decodes one encoded image buffer (JPEG, PNG, GIF, BMP, TIFF) into
// an RGB pixel grid.
type IService interface {
	Name() string
	Decode(buf []byte) (model.Pixels, error)
}

// New returns the codec registered under name
func New(name string, maxDimension int) (IService, error) {
	switch name {
	case "", "imaging":
		return NewImaging(maxDimension), nil
	case "gocv":
		return NewGocv(maxDimension)
	default:
		return nil, xerrors.Errorf("unknown codec %q", name)
	}
}
