// Command ingest is a minimal demo injector: it copies one audio file
// into the incoming stage, promotes it to working, and enqueues the
// first asr_input message. It exists to exercise the pipeline end to
// end; it is not part of the worker's core runtime.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/batchtx/transcriber/internal/config"
	"github.com/batchtx/transcriber/internal/filer"
	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
	"github.com/batchtx/transcriber/internal/workdata"
)

func main() {
	srcPath := flag.String("file", "", "path to the audio file to ingest")
	flag.Parse()

	if *srcPath == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	f := filer.New(cfg.BaseDir)
	if err := f.EnsureStages(); err != nil {
		log.Fatalf("failed to create stage directories: %v", err)
	}

	name := filepath.Base(*srcPath)
	if err := copyIntoStage(*srcPath, f, name); err != nil {
		log.Fatalf("failed to ingest %s: %v", *srcPath, err)
	}

	workingName, err := f.CollisionFreeName(name, filer.StageWorking)
	if err != nil {
		log.Fatalf("failed to pick a working name: %v", err)
	}
	if err := f.Move(name, workingName, filer.StageIncoming, filer.StageWorking); err != nil {
		log.Fatalf("failed to move file into working: %v", err)
	}

	pool, err := workdata.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database pool: %v", err)
	}
	defer pool.Close()

	queue := pgqueue.NewQueue[models.ASRMessage](pool, models.QueueInput)
	jobID := ulid.Make().String()
	msg := models.ASRMessage{ID: jobID, File: workingName, BaseDir: cfg.BaseDir}
	if _, err := queue.Send(ctx, msg); err != nil {
		log.Fatalf("failed to enqueue job: %v", err)
	}

	logger.Log.Info("ingested job", logger.WithJobID(jobID))
}

func copyIntoStage(srcPath string, f *filer.Filer, name string) error {
	r, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer r.Close()
	return f.SaveStream(name, filer.StageIncoming, r)
}
