package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/service/config"
	"github.com/khaledhikmat/od-prepost/service/lgr"
)

type cacheService struct {
	CfgSvc config.IService
	Client *http.Client
}

func NewCache(cfgsvc config.IService) IService {
	return &cacheService{
		CfgSvc: cfgsvc,
		Client: http.DefaultClient,
	}
}

func (svc *cacheService) FetchOrUseCached(ctx context.Context, fileName string, url string) (string, error) {
	if fileName == "" || filepath.Base(fileName) != fileName {
		return "", xerrors.Errorf("invalid cache file name %q", fileName)
	}

	folder := svc.CfgSvc.GetCacheFolder()
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", xerrors.Errorf("create cache folder %s: %w", folder, err)
	}

	cached := filepath.Join(folder, fileName)
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	lgr.Logger.Info("downloading file to cache",
		slog.String("url", url),
		slog.String("path", cached),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", xerrors.Errorf("build request for %s: %w", url, err)
	}
	resp, err := svc.Client.Do(req)
	if err != nil {
		return "", xerrors.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	// write to a temp file first so a failed download never looks cached
	tmp, err := os.CreateTemp(folder, fileName+".*.part")
	if err != nil {
		return "", xerrors.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", xerrors.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), cached); err != nil {
		return "", xerrors.Errorf("move download into cache: %w", err)
	}

	return cached, nil
}
