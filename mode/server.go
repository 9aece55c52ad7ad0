package mode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/pipeline"
	"github.com/khaledhikmat/od-prepost/service/inference"
	"github.com/khaledhikmat/od-prepost/service/lgr"
)

type serverState struct {
	svcs    pipeline.ServicesFactory
	handler pipeline.Handler

	requests atomic.Int64
	failures atomic.Int64
}

type detectRequest struct {
	Images    [][]byte `json:"image"`
	Threshold *float32 `json:"threshold"`
}

// Server serves the detection API until canxCtx is cancelled
func Server(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	srv := &http.Server{
		Handler:      NewRouter(svcs),
		Addr:         svcs.CfgSvc.GetListenAddress(),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		lgr.Logger.Info("detection server starting",
			slog.String("address", srv.Addr),
			slog.String("backend", svcs.InferenceSvc.Name()),
			slog.String("codec", svcs.CodecSvc.Name()),
		)
		serverErr <- srv.ListenAndServe()
	}()

	// Wait for cancellation or server failure
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"detection server context cancelled",
		)

	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return xerrors.Errorf("detection server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second)
	defer cancel()

	lgr.Logger.Info(
		"detection server is shutting down",
		slog.Int("period", svcs.CfgSvc.GetModeMaxShutdownTime()),
	)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Errorf("detection server shutdown: %w", err)
	}
	return nil
}

// NewRouter wires the detection, health and metrics routes
func NewRouter(svcs pipeline.ServicesFactory) *mux.Router {
	state := &serverState{
		svcs:    svcs,
		handler: newHandler(svcs),
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/detect", state.handleDetect).Methods("POST")
	r.HandleFunc("/health", state.handleHealth).Methods("GET")
	r.HandleFunc("/metrics", state.handleMetrics).Methods("GET")
	return r
}

func (s *serverState) handleDetect(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	r.Body = http.MaxBytesReader(w, r.Body, s.svcs.CfgSvc.GetMaxRequestSize())

	raw, err := s.readInputs(r)
	if err != nil {
		s.failures.Add(1)
		lgr.Logger.Warn("invalid detect request", lgr.Err(err))
		sendOutputs(w, s.handler.ErrorPostprocess(err.Error()), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if timeout := s.svcs.CfgSvc.GetRequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	req := model.NewInferenceRequest(raw.Images, raw.Threshold)
	w.Header().Set("X-Request-Id", req.ID)

	outputs, err := pipeline.Infer(ctx, s.svcs, s.handler, req)
	if err != nil {
		s.failures.Add(1)
	}
	sendOutputs(w, outputs, statusCode(err))
}

// readInputs accepts a JSON body with base64 images, a multipart form with
// one or more "image" files, or a single raw image body. The threshold
// defaults to the configured one when the request omits it.
func (s *serverState) readInputs(r *http.Request) (model.RawInputs, error) {
	raw := model.RawInputs{Threshold: s.svcs.CfgSvc.GetDefaultThreshold()}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return raw, xerrors.Errorf("decode json body: %w", err)
		}
		raw.Images = req.Images
		if req.Threshold != nil {
			raw.Threshold = *req.Threshold
		}

	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.svcs.CfgSvc.GetMaxRequestSize()); err != nil {
			return raw, xerrors.Errorf("parse multipart form: %w", err)
		}
		for _, fh := range r.MultipartForm.File["image"] {
			buf, err := readFormFile(fh)
			if err != nil {
				return raw, xerrors.Errorf("read form file %s: %w", fh.Filename, err)
			}
			raw.Images = append(raw.Images, buf)
		}
		if v := r.FormValue("threshold"); v != "" {
			t, err := parseThreshold(v)
			if err != nil {
				return raw, err
			}
			raw.Threshold = t
		}

	default:
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			return raw, xerrors.Errorf("read body: %w", err)
		}
		if len(buf) > 0 {
			raw.Images = [][]byte{buf}
		}
		if v := r.URL.Query().Get("threshold"); v != "" {
			t, err := parseThreshold(v)
			if err != nil {
				return raw, err
			}
			raw.Threshold = t
		}
	}

	return raw, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseThreshold(v string) (float32, error) {
	t, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, xerrors.Errorf("invalid threshold %q: %w", v, err)
	}
	return float32(t), nil
}

func (s *serverState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  model.StatusOK,
		"backend": s.svcs.InferenceSvc.Name(),
		"codec":   s.svcs.CodecSvc.Name(),
		"labels":  s.svcs.LabelsSvc.Len(),
	})
}

func (s *serverState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"requests": s.requests.Load(),
		"failures": s.failures.Load(),
	}
	if mp, ok := s.svcs.InferenceSvc.(inference.MetricsProvider); ok {
		response["inference"] = mp.GetMetrics()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendOutputs(w http.ResponseWriter, outputs model.ProcessedOutputs, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(outputs)
}
