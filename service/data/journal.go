package data

import (
	"encoding/json"
	"io"
	"time"

	"github.com/natefinch/lumberjack"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/od-prepost/model"
	"github.com/khaledhikmat/od-prepost/service/config"
)

type journalEntry struct {
	Time      string      `json:"time"`
	Kind      string      `json:"kind"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload"`
}

type journalService struct {
	CfgSvc config.IService
	out    io.WriteCloser
}

// NewJournal appends results, errors and stats as JSON lines to the
// configured journal file, rotated by lumberjack. An empty journal file
// discards every entry.
func NewJournal(cfgsvc config.IService) IService {
	var out io.WriteCloser = nopCloser{io.Discard}
	if cfgsvc.GetJournalFile() != "" {
		out = &lumberjack.Logger{
			Filename:   cfgsvc.GetJournalFile(),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
	}
	return &journalService{
		CfgSvc: cfgsvc,
		out:    out,
	}
}

func (svc *journalService) NewResult(requestID string, outputs model.ProcessedOutputs) error {
	return svc.write("result", requestID, outputs)
}

func (svc *journalService) NewError(err interface{}) error {
	switch e := err.(type) {
	case model.CustomError:
		inner := ""
		if e.Inner != nil {
			inner = e.Inner.Error()
		}
		return svc.write("error", "", map[string]interface{}{
			"processor":  e.Processor,
			"message":    e.Message,
			"innerError": inner,
			"misc":       e.Misc,
		})
	case error:
		return svc.write("error", "", map[string]interface{}{"message": e.Error()})
	default:
		return svc.write("error", "", err)
	}
}

func (svc *journalService) NewInferenceStats(stats model.InferenceStats) error {
	return svc.write("stats", stats.RequestID, stats)
}

func (svc *journalService) write(kind, requestID string, payload interface{}) error {
	jsonData, err := json.Marshal(journalEntry{
		Time:      time.Now().Format(time.RFC3339),
		Kind:      kind,
		RequestID: requestID,
		Payload:   payload,
	})
	if err != nil {
		return xerrors.Errorf("marshal %s entry: %w", kind, err)
	}

	if _, err := svc.out.Write(append(jsonData, '\n')); err != nil {
		return xerrors.Errorf("write %s entry: %w", kind, err)
	}
	return nil
}

func (svc *journalService) Close() error {
	return svc.out.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
