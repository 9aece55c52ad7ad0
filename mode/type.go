package mode

import (
	"context"
	"errors"
	"net/http"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/pipeline"
)

// Processor runs one of the process modes until canxCtx is cancelled or the
// mode completes. args are the command line arguments after the mode name.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

func newHandler(svcs pipeline.ServicesFactory) pipeline.Handler {
	return pipeline.NewObjectDetector(svcs.CodecSvc, svcs.InferenceSvc, svcs.LabelsSvc)
}

// statusCode maps an inference failure to the HTTP status it is reported with
func statusCode(err error) int {
	var (
		inputErr  *model.InputError
		decodeErr *model.ImageDecodeError
		lookupErr *model.LabelLookupError
		shapeErr  *model.OutputShapeError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &inputErr), errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.As(err, &lookupErr), errors.As(err, &shapeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
