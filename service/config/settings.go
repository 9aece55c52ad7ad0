package config

// Settings holds every tunable of the service. Both the environment and the
// file backed services produce one.
type Settings struct {
	ModeMaxShutdownTime   int         `toml:"mode_max_shutdown_time"`
	LogLevel              string      `toml:"log_level"`
	LogFile               string      `toml:"log_file"`
	JournalFile           string      `toml:"journal_file"`
	CacheFolder           string      `toml:"cache_folder"`
	SampleImageURL        string      `toml:"sample_image_url"`
	ListenAddress         string      `toml:"listen_address"`
	RequestTimeout        int         `toml:"request_timeout"`
	MaxRequestSize        int64       `toml:"max_request_size"`
	DefaultThreshold      float32     `toml:"default_threshold"`
	LabelsPath            string      `toml:"labels_path"`
	Codec                 string      `toml:"codec"`
	MaxImageDimension     int         `toml:"max_image_dimension"`
	InferenceBackend      string      `toml:"inference_backend"`
	ModelPath             string      `toml:"model_path"`
	RuntimeLibraryPath    string      `toml:"runtime_library_path"`
	SessionPoolSize       int         `toml:"session_pool_size"`
	SessionAcquireTimeout int         `toml:"session_acquire_timeout"`
	IntraOpThreads        int         `toml:"intra_op_threads"`
	MaxDetections         int         `toml:"max_detections"`
	InputName             string      `toml:"input_name"`
	OutputNames           OutputNames `toml:"output_names"`
	RemoteEndpoint        string      `toml:"remote_endpoint"`
}

// Defaults match the SSD MobileNet COCO export this service was built around.
func Defaults() Settings {
	return Settings{
		ModeMaxShutdownTime:   5,
		LogLevel:              "info",
		LogFile:               "",
		JournalFile:           "detections.log",
		CacheFolder:           "./cached_files",
		SampleImageURL:        "https://upload.wikimedia.org/wikipedia/commons/f/fe/Giant_Panda_in_Beijing_Zoo_1.JPG",
		ListenAddress:         "127.0.0.1:8080",
		RequestTimeout:        60,
		MaxRequestSize:        10 << 20,
		DefaultThreshold:      0.7,
		LabelsPath:            "./models/labels.json",
		Codec:                 "imaging",
		MaxImageDimension:     0,
		InferenceBackend:      "onnx",
		ModelPath:             "./models/ssd_mobilenet_v1_coco.onnx",
		RuntimeLibraryPath:    "",
		SessionPoolSize:       4,
		SessionAcquireTimeout: 5,
		IntraOpThreads:        0,
		MaxDetections:         100,
		InputName:             "image_tensor",
		OutputNames: OutputNames{
			DetectionScores:  "detection_scores",
			DetectionBoxes:   "detection_boxes",
			NumDetections:    "num_detections",
			DetectionClasses: "detection_classes",
		},
		RemoteEndpoint: "",
	}
}

type settingsService struct {
	settings Settings
}

// NewStatic serves the given settings as-is. Mostly useful in tests.
func NewStatic(settings Settings) IService {
	return &settingsService{settings: settings}
}

func (svc *settingsService) GetModeMaxShutdownTime() int  { return svc.settings.ModeMaxShutdownTime }
func (svc *settingsService) GetLogLevel() string          { return svc.settings.LogLevel }
func (svc *settingsService) GetLogFile() string           { return svc.settings.LogFile }
func (svc *settingsService) GetJournalFile() string       { return svc.settings.JournalFile }
func (svc *settingsService) GetCacheFolder() string       { return svc.settings.CacheFolder }
func (svc *settingsService) GetSampleImageURL() string    { return svc.settings.SampleImageURL }
func (svc *settingsService) GetListenAddress() string     { return svc.settings.ListenAddress }
func (svc *settingsService) GetRequestTimeout() int       { return svc.settings.RequestTimeout }
func (svc *settingsService) GetMaxRequestSize() int64     { return svc.settings.MaxRequestSize }
func (svc *settingsService) GetDefaultThreshold() float32 { return svc.settings.DefaultThreshold }
func (svc *settingsService) GetLabelsPath() string        { return svc.settings.LabelsPath }
func (svc *settingsService) GetCodec() string             { return svc.settings.Codec }
func (svc *settingsService) GetMaxImageDimension() int    { return svc.settings.MaxImageDimension }
func (svc *settingsService) GetInferenceBackend() string  { return svc.settings.InferenceBackend }
func (svc *settingsService) GetModelPath() string         { return svc.settings.ModelPath }
func (svc *settingsService) GetRuntimeLibraryPath() string {
	return svc.settings.RuntimeLibraryPath
}
func (svc *settingsService) GetSessionPoolSize() int { return svc.settings.SessionPoolSize }
func (svc *settingsService) GetSessionAcquireTimeout() int {
	return svc.settings.SessionAcquireTimeout
}
func (svc *settingsService) GetIntraOpThreads() int         { return svc.settings.IntraOpThreads }
func (svc *settingsService) GetMaxDetections() int          { return svc.settings.MaxDetections }
func (svc *settingsService) GetInputName() string           { return svc.settings.InputName }
func (svc *settingsService) GetOutputNames() OutputNames    { return svc.settings.OutputNames }
func (svc *settingsService) GetRemoteEndpoint() string      { return svc.settings.RemoteEndpoint }
