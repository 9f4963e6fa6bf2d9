// Package resultworker implements the second pipeline stage: turning a
// terminal (or timed-out) status from the ASR worker into a filesystem
// outcome, processed or failed, and scheduling remote cleanup.
package resultworker

import (
	"context"

	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/filer"
	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
)

const (
	retryCeiling = 3

	resultFinalFile = "resultFinal.txt"
	latRestoredFile = "lat.restored.txt"

	extTxt = ".txt"
	extLat = ".lat"
	extErr = ".err"
)

// ASRClient is the subset of asrclient.Client resultworker depends on.
type ASRClient interface {
	Result(ctx context.Context, externalID, fileName string) (string, error)
}

// Worker wires the filesystem stage machine and the clean queue hand-off.
type Worker struct {
	Client     ASRClient
	Filer      *filer.Filer
	CleanQueue pgqueue.Client[models.CleanMessage]
}

// New returns a Worker ready to be wrapped by consume.Run. filer is
// expected to be rooted at the same base_dir every message in the
// pipeline carries.
func New(client ASRClient, f *filer.Filer, clean pgqueue.Client[models.CleanMessage]) *Worker {
	return &Worker{Client: client, Filer: f, CleanQueue: clean}
}

// Handle is the consume.Handler for the asr_result queue.
func (w *Worker) Handle(ctx context.Context, msg pgqueue.Message[models.ResultMessage]) bool {
	job := msg.Payload
	log := logger.Log.With(logger.WithJobID(job.ID), logger.WithTry(msg.ReadCt))

	if msg.ReadCt > retryCeiling {
		log.Warn("result retry ceiling reached, giving up")
		if err := w.processError(ctx, job, "Max retries reached processing transcription result"); err != nil {
			logger.WarnErr("best-effort failure handling errored", err, logger.WithJobID(job.ID))
		}
		return true
	}

	if !job.Finished {
		log.Info("result not yet finished, dropping without retry")
		return true
	}

	if job.Error != nil {
		if err := w.processError(ctx, job, *job.Error); err != nil {
			logger.ErrorErr("process_error failed", err, logger.WithJobID(job.ID))
			return false
		}
		return true
	}

	if err := w.processSuccess(ctx, job); err != nil {
		logger.ErrorErr("process_success failed", err, logger.WithJobID(job.ID))
		return false
	}
	return true
}

// processSuccess fetches both remote result artifacts before touching the
// filesystem, so a transient fetch failure never leaves the job half
// moved.
func (w *Worker) processSuccess(ctx context.Context, job models.ResultMessage) error {
	recognizedText, err := w.Client.Result(ctx, job.ExternalID, resultFinalFile)
	if err != nil {
		return err
	}
	latText, err := w.Client.Result(ctx, job.ExternalID, latRestoredFile)
	if err != nil {
		return err
	}

	dstName, err := w.Filer.CollisionFreeName(job.File, filer.StageProcessed)
	if err != nil {
		return err
	}

	if err := w.Filer.SaveText(filer.ReplaceExt(dstName, extTxt), filer.StageProcessed, recognizedText); err != nil {
		return err
	}
	if err := w.Filer.SaveText(filer.ReplaceExt(dstName, extLat), filer.StageProcessed, latText); err != nil {
		return err
	}

	// The audio leaves working/ only after both artifacts are durably
	// written, so a crash mid-way leaves the job intact for redelivery.
	if err := w.Filer.MoveWithCompanion(job.File, dstName, filer.StageWorking, filer.StageProcessed); err != nil {
		return err
	}

	w.enqueueClean(ctx, job)
	return nil
}

// processError writes an .err companion alongside the moved audio file and
// schedules remote cleanup. It is also used, best-effort, on the retry
// ceiling path, where its own failure is only logged.
func (w *Worker) processError(ctx context.Context, job models.ResultMessage, errMsg string) error {
	dstName, err := w.Filer.CollisionFreeName(job.File, filer.StageFailed)
	if err != nil {
		return err
	}

	if err := w.Filer.SaveText(filer.ReplaceExt(dstName, extErr), filer.StageFailed, errMsg); err != nil {
		return err
	}

	if err := w.Filer.MoveWithCompanion(job.File, dstName, filer.StageWorking, filer.StageFailed); err != nil {
		return err
	}

	w.enqueueClean(ctx, job)
	return nil
}

func (w *Worker) enqueueClean(ctx context.Context, job models.ResultMessage) {
	if job.ExternalID == "" {
		return
	}
	if _, err := w.CleanQueue.Send(ctx, models.CleanMessage{ExternalID: job.ExternalID}); err != nil {
		logger.ErrorErr("failed to enqueue clean message", err,
			logger.WithJobID(job.ID), zap.String("external_id", job.ExternalID))
	}
}
