// Command worker runs the three pipeline stages (ASR upload/poll, result
// handling, remote cleanup), each as its own pool of consume loops against
// the shared Postgres-backed queue.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/asrclient"
	"github.com/batchtx/transcriber/internal/asrworker"
	"github.com/batchtx/transcriber/internal/cleanworker"
	"github.com/batchtx/transcriber/internal/config"
	"github.com/batchtx/transcriber/internal/consume"
	"github.com/batchtx/transcriber/internal/filer"
	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/metrics"
	"github.com/batchtx/transcriber/internal/models"
	"github.com/batchtx/transcriber/internal/pgqueue"
	"github.com/batchtx/transcriber/internal/resultworker"
	"github.com/batchtx/transcriber/internal/workdata"
	"github.com/batchtx/transcriber/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== transcriber worker starting ===",
		zap.Int("asr_workers", cfg.ASRWorkers), zap.String("base_dir", cfg.BaseDir))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := filer.New(cfg.BaseDir)
	if err := f.EnsureStages(); err != nil {
		logger.ErrorErr("failed to create stage directories", err)
		os.Exit(1)
	}

	pool, err := workdata.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.ErrorErr("failed to open database pool", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		logger.ErrorErr("failed to apply migrations", err)
		os.Exit(1)
	}

	store := workdata.NewPGStore(pool)
	client := asrclient.New(asrclient.Config{
		BaseURL:    cfg.ASRBaseURL,
		AuthKey:    cfg.ASRAuthKey,
		Recognizer: cfg.ASRRecognizer,
	})

	inputQueue := pgqueue.NewQueue[models.ASRMessage](pool, models.QueueInput)
	resultQueue := pgqueue.NewQueue[models.ResultMessage](pool, models.QueueResult)
	cleanQueue := pgqueue.NewQueue[models.CleanMessage](pool, models.QueueClean)

	metrics.Initialize()
	go serveMetrics(cfg.MetricsAddr)

	var wg sync.WaitGroup

	asrHandler := asrworker.New(client, store, inputQueue, resultQueue)
	for i := 0; i < cfg.ASRWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume.Run(ctx, inputQueue, asrHandler.Handle, models.QueueInput)
		}()
	}

	resultHandler := resultworker.New(client, f, cleanQueue)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume.Run(ctx, resultQueue, resultHandler.Handle, models.QueueResult)
	}()

	cleanHandler := cleanworker.New(client)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume.Run(ctx, cleanQueue, cleanHandler.Handle, models.QueueClean)
	}()

	<-ctx.Done()
	logger.Log.Info("shutdown signal received, waiting for in-flight work to stop")
	wg.Wait()
	logger.Log.Info("transcriber worker exited")
}

// serveMetrics runs the Prometheus exposition endpoint until the process
// exits; a failure here is logged but never fatal to the pipeline.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.ErrorErr("metrics server stopped", err, zap.String("addr", addr))
	}
}
