package config

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// NewEnv reads OD_* environment variables on top of the defaults. Call
// godotenv.Load before it to pick up a .env file.
func NewEnv() (IService, error) {
	s := Defaults()

	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			err = xerrors.Errorf("config %s: %w", key, convErr)
			return
		}
		*dst = n
	}

	num("OD_MODE_MAX_SHUTDOWN_TIME", &s.ModeMaxShutdownTime)
	str("OD_LOG_LEVEL", &s.LogLevel)
	str("OD_LOG_FILE", &s.LogFile)
	str("OD_JOURNAL_FILE", &s.JournalFile)
	str("OD_CACHE_FOLDER", &s.CacheFolder)
	str("OD_SAMPLE_IMAGE_URL", &s.SampleImageURL)
	str("OD_LISTEN_ADDRESS", &s.ListenAddress)
	num("OD_REQUEST_TIMEOUT", &s.RequestTimeout)
	str("OD_LABELS_PATH", &s.LabelsPath)
	str("OD_CODEC", &s.Codec)
	num("OD_MAX_IMAGE_DIMENSION", &s.MaxImageDimension)
	str("OD_INFERENCE_BACKEND", &s.InferenceBackend)
	str("OD_MODEL_PATH", &s.ModelPath)
	str("OD_RUNTIME_LIBRARY_PATH", &s.RuntimeLibraryPath)
	num("OD_SESSION_POOL_SIZE", &s.SessionPoolSize)
	num("OD_SESSION_ACQUIRE_TIMEOUT", &s.SessionAcquireTimeout)
	num("OD_INTRA_OP_THREADS", &s.IntraOpThreads)
	num("OD_MAX_DETECTIONS", &s.MaxDetections)
	str("OD_INPUT_NAME", &s.InputName)
	str("OD_OUTPUT_DETECTION_SCORES", &s.OutputNames.DetectionScores)
	str("OD_OUTPUT_DETECTION_BOXES", &s.OutputNames.DetectionBoxes)
	str("OD_OUTPUT_NUM_DETECTIONS", &s.OutputNames.NumDetections)
	str("OD_OUTPUT_DETECTION_CLASSES", &s.OutputNames.DetectionClasses)
	str("OD_REMOTE_ENDPOINT", &s.RemoteEndpoint)
	if err != nil {
		return nil, err
	}

	if v, ok := lookup("OD_MAX_REQUEST_SIZE"); ok {
		n, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			return nil, xerrors.Errorf("config OD_MAX_REQUEST_SIZE: %w", convErr)
		}
		s.MaxRequestSize = n
	}

	if v, ok := lookup("OD_DEFAULT_THRESHOLD"); ok {
		f, convErr := strconv.ParseFloat(v, 32)
		if convErr != nil {
			return nil, xerrors.Errorf("config OD_DEFAULT_THRESHOLD: %w", convErr)
		}
		s.DefaultThreshold = float32(f)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewStatic(s), nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
