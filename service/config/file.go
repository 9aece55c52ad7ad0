package config

import (
	"math"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// NewFile decodes a TOML settings file over the defaults. Keys missing from
// the file keep their default value.
func NewFile(path string) (IService, error) {
	s := Defaults()

	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, xerrors.Errorf("config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, xerrors.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewStatic(s), nil
}

func (s Settings) Validate() error {
	if math.IsNaN(float64(s.DefaultThreshold)) || s.DefaultThreshold < 0 || s.DefaultThreshold > 1 {
		return xerrors.Errorf("config: default threshold %v outside [0,1]", s.DefaultThreshold)
	}
	if s.MaxDetections <= 0 {
		return xerrors.Errorf("config: max detections must be positive, got %d", s.MaxDetections)
	}
	if s.SessionPoolSize <= 0 {
		return xerrors.Errorf("config: session pool size must be positive, got %d", s.SessionPoolSize)
	}
	if s.MaxImageDimension < 0 {
		return xerrors.Errorf("config: max image dimension must not be negative, got %d", s.MaxImageDimension)
	}
	switch s.InferenceBackend {
	case "onnx", "remote", "fake":
	default:
		return xerrors.Errorf("config: unknown inference backend %q", s.InferenceBackend)
	}
	switch s.Codec {
	case "imaging", "gocv":
	default:
		return xerrors.Errorf("config: unknown codec %q", s.Codec)
	}
	if s.InferenceBackend == "remote" && s.RemoteEndpoint == "" {
		return xerrors.New("config: remote backend requires a remote endpoint")
	}
	return nil
}
