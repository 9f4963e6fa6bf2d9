// Package asrworker implements the first pipeline stage: idempotent
// upload plus status polling against the remote ASR service. Every input
// message the handler completes (returns true for) ends in a result-queue
// message describing the outcome; a work-data, upload or cancellation
// failure returns false without one, leaving the input for redelivery.
package asrworker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/apperr"
	"github.com/batchtx/transcriber/internal/asrclient"
	"github.com/batchtx/transcriber/internal/filer"
	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/metrics"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
	"github.com/batchtx/transcriber/internal/workdata"
)

const (
	retryCeiling = 3

	heartbeatInterval = 20 * time.Second
	heartbeatExtend   = 60

	maxStatusErrors = 3
)

// These are vars, not consts, solely so tests can shrink them; production
// code never reassigns them.
var (
	pollBudget    = time.Hour
	pollBase      = 8 * time.Second
	pollJitterMax = 5 * time.Second
)

// ASRClient is the subset of asrclient.Client the worker depends on,
// narrowed to an interface so tests can substitute a fake.
type ASRClient interface {
	Upload(ctx context.Context, filePath string) (string, error)
	Status(ctx context.Context, externalID string) (*asrclient.StatusResult, error)
}

// Worker holds everything a handler closure needs: the upstream client,
// the idempotency store, and the queue it reads from (for heartbeats) and
// writes to (to hand off to the result stage).
type Worker struct {
	Client      ASRClient
	Store       workdata.Store
	InputQueue  pgqueue.Client[models.ASRMessage]
	ResultQueue pgqueue.Client[models.ResultMessage]
}

// New returns a Worker ready to be wrapped by consume.Run.
func New(client ASRClient, store workdata.Store, input pgqueue.Client[models.ASRMessage], result pgqueue.Client[models.ResultMessage]) *Worker {
	return &Worker{Client: client, Store: store, InputQueue: input, ResultQueue: result}
}

// Handle is the consume.Handler for the asr_input queue.
func (w *Worker) Handle(ctx context.Context, msg pgqueue.Message[models.ASRMessage]) bool {
	job := msg.Payload
	log := logger.Log.With(logger.WithJobID(job.ID), logger.WithTry(msg.ReadCt))

	if msg.ReadCt > retryCeiling {
		externalID := w.bestEffortExternalID(ctx, job.ID)
		w.emitResult(ctx, job, externalID, true, "max retries reached")
		log.Warn("asr input retry ceiling reached, giving up")
		return true
	}

	wd, err := w.Store.GetOrCreate(ctx, job.ID, job.File, job.BaseDir)
	if err != nil {
		logger.ErrorErr("work_data get-or-create failed", err, logger.WithJobID(job.ID))
		return false
	}

	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go w.heartbeat(hbCtx, &wg, msg.ID)
	defer func() {
		cancel()
		wg.Wait()
	}()

	externalID := wd.ExternalID
	if externalID == "" {
		filePath := filer.New(job.BaseDir).Path(job.File, filer.StageWorking)
		uploaded, err := w.Client.Upload(ctx, filePath)
		if err != nil {
			logger.ErrorErr("asr upload failed", err, logger.WithJobID(job.ID))
			return false
		}
		if err := w.Store.SetExternalID(ctx, job.ID, uploaded); err != nil {
			logger.ErrorErr("persist external id failed", err, logger.WithJobID(job.ID))
			return false
		}
		externalID = uploaded
	}

	return w.poll(ctx, job, externalID, log)
}

// poll runs the status-polling state machine until a terminal status is
// observed, the error budget is exhausted, or the overall time budget
// elapses. Every exit path that returns true emits exactly one result
// message; cancellation returns false and emits none.
func (w *Worker) poll(ctx context.Context, job models.ASRMessage, externalID string, log *zap.Logger) bool {
	deadline := time.Now().Add(pollBudget)
	errCount := 0

	for {
		if time.Now().After(deadline) {
			log.Warn("asr status poll budget exceeded", zap.String("external_id", externalID))
			w.emitResult(ctx, job, externalID, true, "status wait timeout")
			return true
		}

		if !w.sleepOrDone(ctx, pollBase+jitter()) {
			return false
		}

		status, err := w.Client.Status(ctx, externalID)
		if err != nil {
			errCount++
			logger.WarnErr("asr status check failed", err,
				logger.WithJobID(job.ID), zap.Int("err_count", errCount))
			if errCount > maxStatusErrors {
				w.emitResult(ctx, job, externalID, false, err.Error())
				return true
			}
			continue
		}
		errCount = 0

		if status.Completed() {
			w.emitResult(ctx, job, externalID, true, "")
			return true
		}
		if status.ErrorCode != "" {
			w.emitResult(ctx, job, externalID, true, formatStatusError(status))
			return true
		}
	}
}

func formatStatusError(s *asrclient.StatusResult) string {
	if s.Error != "" {
		return fmt.Sprintf("%s\n%s", s.ErrorCode, s.Error)
	}
	return s.ErrorCode
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(pollJitterMax)))
}

func (w *Worker) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// heartbeat extends the input message's visibility periodically so a long
// status-polling session outlives the base visibility timeout. It exits
// as soon as ctx is cancelled, guaranteeing release of the goroutine.
func (w *Worker) heartbeat(ctx context.Context, wg *sync.WaitGroup, msgID int64) {
	defer wg.Done()

	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.InputQueue.ExtendVisibility(ctx, msgID, heartbeatExtend); err != nil {
				logger.WarnErr("heartbeat extend visibility failed", err, zap.Int64("msg_id", msgID))
				continue
			}
			metrics.Get().HeartbeatExtensionsTotal.WithLabelValues(models.QueueInput).Inc()
		}
	}
}

// bestEffortExternalID recovers whatever external id was persisted before
// the retry ceiling was hit, tolerating a missing or unreadable row.
func (w *Worker) bestEffortExternalID(ctx context.Context, jobID string) string {
	wd, err := w.Store.Get(ctx, jobID)
	if err != nil {
		var appErr *apperr.Error
		if !(errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound) {
			logger.WarnErr("best-effort work_data read failed", err, logger.WithJobID(jobID))
		}
		return ""
	}
	return wd.ExternalID
}

func (w *Worker) emitResult(ctx context.Context, job models.ASRMessage, externalID string, finished bool, errMsg string) {
	result := models.ResultMessage{
		ID:         job.ID,
		File:       job.File,
		BaseDir:    job.BaseDir,
		ExternalID: externalID,
		Finished:   finished,
	}
	if errMsg != "" {
		result.Error = &errMsg
		if err := w.Store.RecordError(ctx, job.ID, errMsg); err != nil {
			var appErr *apperr.Error
			if !(errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound) {
				logger.WarnErr("record work_data error failed", err, logger.WithJobID(job.ID))
			}
		}
	}
	if _, err := w.ResultQueue.Send(ctx, result); err != nil {
		logger.ErrorErr("failed to enqueue result message", err, logger.WithJobID(job.ID))
	}
}
