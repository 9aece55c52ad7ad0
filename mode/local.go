package mode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/pipeline"
	"github.com/khaledhikmat/od-prepost/service/lgr"
)

// Output is where the local mode prints its results
var Output io.Writer = os.Stdout

// Local runs a single inference over the images named in args and prints
// the JSON result. Arguments are file paths or http(s) URLs; URLs are
// downloaded once into the cache folder. Without arguments the configured
// sample image is used.
func Local(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) == 0 {
		args = []string{svcs.CfgSvc.GetSampleImageURL()}
	}

	images := make([][]byte, 0, len(args))
	for _, arg := range args {
		buf, err := loadImage(canxCtx, svcs, arg)
		if err != nil {
			return err
		}
		images = append(images, buf)
	}

	req := model.NewInferenceRequest(images, svcs.CfgSvc.GetDefaultThreshold())
	lgr.Logger.Info("running local inference",
		slog.String("requestId", req.ID),
		slog.Int("images", len(images)),
		slog.Any("threshold", req.Raw.Threshold),
	)

	outputs, err := pipeline.Infer(canxCtx, svcs, newHandler(svcs), req)
	fmt.Fprintln(Output, outputs.JSON())
	return err
}

func loadImage(ctx context.Context, svcs pipeline.ServicesFactory, arg string) ([]byte, error) {
	filePath := arg
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		u, err := url.Parse(arg)
		if err != nil {
			return nil, xerrors.Errorf("invalid image url %q: %w", arg, err)
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			return nil, xerrors.Errorf("image url %q has no file name", arg)
		}

		filePath, err = svcs.StorageSvc.FetchOrUseCached(ctx, name, arg)
		if err != nil {
			return nil, err
		}
	}

	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, xerrors.Errorf("read image %s: %w", filePath, err)
	}
	return buf, nil
}
