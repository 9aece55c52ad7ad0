//go:build !gocv
// +build !gocv

package codec

import (
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
)

// NewGocv fails on binaries built without OpenCV support
func NewGocv(_ int) (IService, error) {
	return nil, xerrors.Errorf("gocv codec requires building with -tags gocv: %w", model.ErrNotImplemented)
}
