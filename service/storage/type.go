package storage

import "context"

type IService interface {
	// FetchOrUseCached returns the local path of fileName inside the cache
	// folder, downloading it from url first when it is not cached yet.
	FetchOrUseCached(ctx context.Context, fileName string, url string) (string, error)
}
