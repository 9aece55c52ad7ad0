package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/inference"
	"github.com/khaledhikmat/od-prepost/service/lgr"
)

// Infer runs one inference cycle: preprocess, batch, execute, postprocess.
// Stages run strictly in order. Any failure is turned into the handler's
// error response, so the returned outputs are always well formed; the error
// is returned alongside for callers that map it to a status code.
func Infer(ctx context.Context, svcs ServicesFactory, handler Handler, req model.InferenceRequest) (model.ProcessedOutputs, error) {
	ctx, span := svcs.Tracer.Start(ctx, "infer", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("request.images", len(req.Raw.Images)),
	))
	defer span.End()

	startTotal := time.Now()
	stats := model.InferenceStats{
		RequestID: req.ID,
		Backend:   svcs.InferenceSvc.Name(),
		Images:    len(req.Raw.Images),
	}

	fail := func(err error) (model.ProcessedOutputs, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		stats.Status = model.StatusError
		stats.Total = time.Since(startTotal)
		stats.Timestamp = time.Now().Unix()
		procStats(svcs, stats)
		procError(svcs, model.GenError("infer", err, map[string]interface{}{
			"requestId": req.ID,
		}, "inference request failed"))

		lgr.Logger.Error("inference request failed",
			slog.String("requestId", req.ID),
			lgr.Err(err),
		)
		return handler.ErrorPostprocess(err.Error()), err
	}

	if err := req.Raw.Validate(); err != nil {
		return fail(err)
	}

	start := time.Now()
	processed, err := stage(ctx, svcs.Tracer, "preprocess", func(context.Context) (model.ProcessedInputs, error) {
		return handler.Preprocess(req.Raw)
	})
	stats.Preprocess = time.Since(start)
	if err != nil {
		return fail(err)
	}

	start = time.Now()
	batch, err := stage(ctx, svcs.Tracer, "batch", func(context.Context) (model.Tensor, error) {
		batch, err := inference.Stack(processed.Images)
		if err != nil {
			return model.Tensor{}, &model.InputError{Field: "image", Reason: err.Error()}
		}
		return batch, nil
	})
	stats.Batch = time.Since(start)
	if err != nil {
		return fail(err)
	}

	start = time.Now()
	rawOutputs, err := stage(ctx, svcs.Tracer, "execute", func(ctx context.Context) (model.RawOutputs, error) {
		out, err := svcs.InferenceSvc.Execute(ctx, batch)
		if err != nil {
			return model.RawOutputs{}, &model.ModelExecutionError{Backend: svcs.InferenceSvc.Name(), Err: err}
		}
		return out, nil
	})
	stats.Inference = time.Since(start)
	if err != nil {
		return fail(err)
	}

	start = time.Now()
	outputs, err := stage(ctx, svcs.Tracer, "postprocess", func(context.Context) (model.ProcessedOutputs, error) {
		return handler.Postprocess(req.Raw, rawOutputs)
	})
	stats.Postprocess = time.Since(start)
	if err != nil {
		return fail(err)
	}

	stats.Status = model.StatusOK
	stats.Predictions = len(outputs.Predictions)
	if len(outputs.BatchPredictions) > 0 {
		stats.Predictions = 0
		for _, preds := range outputs.BatchPredictions {
			stats.Predictions += len(preds)
		}
	}
	stats.Total = time.Since(startTotal)
	stats.Timestamp = time.Now().Unix()
	span.SetAttributes(attribute.Int("response.predictions", stats.Predictions))

	logStats(stats)
	procStats(svcs, stats)
	procResult(svcs, req.ID, outputs)

	return outputs, nil
}

func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func logStats(stats model.InferenceStats) {
	lgr.Logger.Info("inference request completed",
		slog.String("requestId", stats.RequestID),
		slog.String("backend", stats.Backend),
		slog.Int("images", stats.Images),
		slog.Int("predictions", stats.Predictions),
		slog.Duration("preprocess", stats.Preprocess),
		slog.Duration("batch", stats.Batch),
		slog.Duration("inference", stats.Inference),
		slog.Duration("postprocess", stats.Postprocess),
		slog.Duration("total", stats.Total),
	)
}

func procStats(svcs ServicesFactory, stats model.InferenceStats) {
	if svcs.DataSvc == nil {
		return
	}
	err := svcs.DataSvc.NewInferenceStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store inference stats",
			slog.Any("stats", stats),
			lgr.Err(err),
		)
	}
}

func procResult(svcs ServicesFactory, requestID string, outputs model.ProcessedOutputs) {
	if svcs.DataSvc == nil {
		return
	}
	err := svcs.DataSvc.NewResult(requestID, outputs)
	if err != nil {
		lgr.Logger.Error(
			"failed to store result",
			slog.String("requestId", requestID),
			lgr.Err(err),
		)
	}
}

func procError(svcs ServicesFactory, err interface{}) {
	if svcs.DataSvc == nil {
		return
	}
	errTemp := svcs.DataSvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			lgr.Err(errTemp),
		)
	}
}
