package codec

import (
	"bytes"

	"github.com/disintegration/imaging"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
)

type imagingService struct {
	maxDimension int
}

// NewImaging decodes with disintegration/imaging, honoring EXIF orientation.
// When maxDimension is positive, larger images are downscaled to fit a
// maxDimension square while keeping their aspect ratio.
func NewImaging(maxDimension int) IService {
	return &imagingService{maxDimension: maxDimension}
}

func (svc *imagingService) Name() string {
	return "imaging"
}

func (svc *imagingService) Decode(buf []byte) (model.Pixels, error) {
	if len(buf) == 0 {
		return model.Pixels{}, xerrors.New("empty image buffer")
	}

	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return model.Pixels{}, xerrors.Errorf("imaging decode: %w", err)
	}

	bounds := img.Bounds()
	if svc.maxDimension > 0 && (bounds.Dx() > svc.maxDimension || bounds.Dy() > svc.maxDimension) {
		img = imaging.Fit(img, svc.maxDimension, svc.maxDimension, imaging.Lanczos)
	}

	// Clone normalizes any source color model into NRGBA
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return model.Pixels{}, xerrors.New("decoded image has no pixels")
	}

	data := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := data[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}

	return model.Pixels{Width: w, Height: h, Data: data}, nil
}
