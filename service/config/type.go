package config

type IService interface {
	GetModeMaxShutdownTime() int
	GetLogLevel() string
	GetLogFile() string
	GetJournalFile() string
	GetCacheFolder() string
	GetSampleImageURL() string
	GetListenAddress() string
	GetRequestTimeout() int
	GetMaxRequestSize() int64
	GetDefaultThreshold() float32
	GetLabelsPath() string
	GetCodec() string
	GetMaxImageDimension() int
	GetInferenceBackend() string
	GetModelPath() string
	GetRuntimeLibraryPath() string
	GetSessionPoolSize() int
	GetSessionAcquireTimeout() int
	GetIntraOpThreads() int
	GetMaxDetections() int
	GetInputName() string
	GetOutputNames() OutputNames
	GetRemoteEndpoint() string
}

// OutputNames maps the four detection outputs to the names the model
// exposes them under.
type OutputNames struct {
	DetectionScores  string `toml:"detection_scores"`
	DetectionBoxes   string `toml:"detection_boxes"`
	NumDetections    string `toml:"num_detections"`
	DetectionClasses string `toml:"detection_classes"`
}

// Names returns the output names in the order boxes, classes, scores, num
func (o OutputNames) Names() []string {
	return []string{o.DetectionBoxes, o.DetectionClasses, o.DetectionScores, o.NumDetections}
}
