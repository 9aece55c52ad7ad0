package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/khaledhikmat/od-prepost/mode"
	"github.com/khaledhikmat/od-prepost/pipeline"
	"github.com/khaledhikmat/od-prepost/service/codec"
	"github.com/khaledhikmat/od-prepost/service/config"
	"github.com/khaledhikmat/od-prepost/service/data"
	"github.com/khaledhikmat/od-prepost/service/inference"
	"github.com/khaledhikmat/od-prepost/service/labels"
	"github.com/khaledhikmat/od-prepost/service/lgr"
	"github.com/khaledhikmat/od-prepost/service/storage"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"server": mode.Server,
	"local":  mode.Local,
}

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred cleanup has run
func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Warn("no .env file loaded", lgr.Err(err))
		}
	}

	modeType := "server"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		return 2
	}

	// Config service
	cfgSvc, err := newConfig()
	if err != nil {
		lgr.Logger.Error("invalid configuration", lgr.Err(err))
		return 1
	}
	lgr.Init(cfgSvc.GetLogLevel(), cfgSvc.GetLogFile())

	svcs, err := newServices(cfgSvc)
	if err != nil {
		lgr.Logger.Error("failed to create services", lgr.Err(err))
		return 1
	}
	defer svcs.DataSvc.Close()
	defer svcs.InferenceSvc.Close()

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	// Wait for cancellation or mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"od-prepost context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			// the mode finished on its own, nothing left to wait for
			canxFn()
			return exitCode(err)
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for the mode processor
	// to exit. It may still be draining in-flight requests.
resume:
	lgr.Logger.Info(
		"od-prepost is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"od-prepost shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return 1

	case err := <-modeProcResult:
		return exitCode(err)
	}
}

// exitCode logs a failed mode processor and maps its result to an exit code
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	lgr.Logger.Error(
		"od-prepost mode processor failed",
		lgr.Err(err),
	)
	return 1
}

// newConfig reads a TOML file when OD_CONFIG_FILE is set, the environment
// otherwise
func newConfig() (config.IService, error) {
	if path := os.Getenv("OD_CONFIG_FILE"); path != "" {
		return config.NewFile(path)
	}
	return config.NewEnv()
}

func newServices(cfgSvc config.IService) (pipeline.ServicesFactory, error) {
	// labels service
	labelsSvc, err := labels.NewFromFile(cfgSvc.GetLabelsPath())
	if err != nil {
		return pipeline.ServicesFactory{}, err
	}
	// codec service
	codecSvc, err := codec.New(cfgSvc.GetCodec(), cfgSvc.GetMaxImageDimension())
	if err != nil {
		return pipeline.ServicesFactory{}, err
	}
	// inference service
	inferenceSvc, err := inference.New(cfgSvc)
	if err != nil {
		return pipeline.ServicesFactory{}, err
	}

	lgr.Logger.Info("services ready",
		slog.String("backend", inferenceSvc.Name()),
		slog.String("codec", codecSvc.Name()),
		slog.Int("labels", labelsSvc.Len()),
	)

	return pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      data.NewJournal(cfgSvc),
		StorageSvc:   storage.NewCache(cfgSvc),
		CodecSvc:     codecSvc,
		InferenceSvc: inferenceSvc,
		LabelsSvc:    labelsSvc,
		Tracer:       otel.Tracer("od-prepost"),
	}, nil
}
