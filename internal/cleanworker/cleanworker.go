// Package cleanworker implements the third pipeline stage: best-effort
// deletion of a finished job on the remote ASR service.
package cleanworker

import (
	"context"

	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
)

const retryCeiling = 3

// ASRClient is the subset of asrclient.Client cleanworker depends on.
type ASRClient interface {
	Clean(ctx context.Context, externalID string) error
}

// Worker wraps the remote cleanup call.
type Worker struct {
	Client ASRClient
}

// New returns a Worker ready to be wrapped by consume.Run.
func New(client ASRClient) *Worker {
	return &Worker{Client: client}
}

// Handle is the consume.Handler for the asr_clean queue. A remote job that
// never cleans up past the retry ceiling is abandoned silently: it is not
// worth failing the pipeline over a leaked remote record.
func (w *Worker) Handle(ctx context.Context, msg pgqueue.Message[models.CleanMessage]) bool {
	job := msg.Payload

	if msg.ReadCt > retryCeiling {
		logger.Warn("clean retry ceiling reached, abandoning remote cleanup",
			logger.WithExternalID(job.ExternalID), logger.WithTry(msg.ReadCt))
		return true
	}

	if err := w.Client.Clean(ctx, job.ExternalID); err != nil {
		logger.WarnErr("remote clean failed", err, logger.WithExternalID(job.ExternalID))
		return false
	}
	return true
}
