// Package asrclient implements the HTTP contract with the remote ASR
// service: upload, status polling, result retrieval, and cleanup, each
// wrapped in a size-adaptive or fixed timeout and a shared retry policy.
package asrclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/metrics"
)

const (
	statusTimeout = 10 * time.Second
	resultTimeout = 15 * time.Second

	mib = 1024 * 1024
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	AuthKey    string
	Recognizer string
}

// Client is a thin, goroutine-safe wrapper over a resty client, sharing
// one underlying connection pool across every worker.
type Client struct {
	http       *resty.Client
	authKey    string
	recognizer string
}

// New builds a Client against cfg.BaseURL. The returned Client is safe to
// share by pointer across every ASR/result/clean worker.
func New(cfg Config) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")

	http.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Log.Debug("asr client request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})
	http.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Log.Debug("asr client response",
			zap.String("url", resp.Request.URL), zap.Int("status", resp.StatusCode()))
		return nil
	})

	return &Client{http: http, authKey: cfg.AuthKey, recognizer: cfg.Recognizer}
}

// UploadTimeout returns the size-adaptive timeout for an upload of the
// given size in bytes: 10s + 0.5s * ceil(size / 1 MiB).
func UploadTimeout(sizeBytes int64) time.Duration {
	mb := math.Ceil(float64(sizeBytes) / float64(mib))
	return 10*time.Second + time.Duration(mb*0.5*float64(time.Second))
}

// instrument records call latency and, on failure, the error's class,
// against the shared metrics registry.
func instrument(operation string, start time.Time, err error) {
	metrics.Get().ASRCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	class := "other"
	var ce *ClientError
	if errors.As(err, &ce) {
		class = classLabel(ce.Class)
	}
	metrics.Get().ASRCallErrorsTotal.WithLabelValues(operation, class).Inc()
}

func classLabel(c ErrClass) string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassHTTPStatus:
		return "http_status"
	case ClassIO:
		return "io"
	default:
		return "other"
	}
}

// Upload streams filePath to the transcriber/upload endpoint and returns
// the external id assigned by the ASR service.
func (c *Client) Upload(ctx context.Context, filePath string) (string, error) {
	start := time.Now()
	var err error
	defer func() { instrument("upload", start, err) }()

	info, statErr := os.Stat(filePath)
	if statErr != nil {
		err = &ClientError{Class: ClassIO, Err: fmt.Errorf("stat upload file: %w", statErr)}
		return "", err
	}

	timeout := UploadTimeout(info.Size())
	var externalID string

	err = withRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		f, openErr := os.Open(filePath)
		if openErr != nil {
			return &ClientError{Class: ClassIO, Err: openErr}
		}
		defer f.Close()

		req := c.http.R().
			SetContext(reqCtx).
			SetFormData(map[string]string{
				"recognizer":       c.recognizer,
				"numberOfSpeakers": "",
			}).
			SetFileReader("file", filepath.Base(filePath), f)

		if c.authKey != "" {
			req.SetHeader("Authorization", "Key "+c.authKey)
		}

		resp, reqErr := req.Post("/transcriber/upload")
		if ce := classify(resp, reqErr); ce != nil {
			return ce
		}

		var parsed uploadResponse
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return &ClientError{Class: ClassOther, Err: fmt.Errorf("decode upload response: %w", err)}
		}
		externalID = parsed.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return externalID, nil
}

// Status fetches the current status of externalID.
func (c *Client) Status(ctx context.Context, externalID string) (*StatusResult, error) {
	start := time.Now()
	var result StatusResult

	err := withRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()

		resp, reqErr := c.http.R().
			SetContext(reqCtx).
			Get("/status.service/status/" + externalID)
		if ce := classify(resp, reqErr); ce != nil {
			return ce
		}

		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return &ClientError{Class: ClassOther, Err: fmt.Errorf("decode status response: %w", err)}
		}
		return nil
	})
	instrument("status", start, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Result fetches one named result file (e.g. "resultFinal.txt" or
// "lat.restored.txt") for externalID and returns its body as text.
func (c *Client) Result(ctx context.Context, externalID, fileName string) (string, error) {
	start := time.Now()
	var body string

	err := withRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, resultTimeout)
		defer cancel()

		resp, reqErr := c.http.R().
			SetContext(reqCtx).
			Get(fmt.Sprintf("/result.service/result/%s/%s", externalID, fileName))
		if ce := classify(resp, reqErr); ce != nil {
			return ce
		}

		body = string(resp.Body())
		return nil
	})
	instrument("result", start, err)
	if err != nil {
		return "", err
	}
	return body, nil
}

// Clean asks the remote ASR service to purge externalID's job data.
func (c *Client) Clean(ctx context.Context, externalID string) error {
	start := time.Now()
	err := withRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()

		resp, reqErr := c.http.R().
			SetContext(reqCtx).
			Delete("/transcriber/jobs/" + externalID)
		if ce := classify(resp, reqErr); ce != nil {
			return ce
		}
		return nil
	})
	instrument("clean", start, err)
	return err
}

// classify turns a resty response/error pair into a ClientError, or nil on
// success.
func classify(resp *resty.Response, err error) *ClientError {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &ClientError{Class: ClassTimeout, Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &ClientError{Class: ClassTimeout, Err: err}
		}
		return &ClientError{Class: ClassIO, Err: err}
	}
	if resp.IsError() {
		return &ClientError{
			Class:      ClassHTTPStatus,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status: %s", resp.Status()),
		}
	}
	return nil
}
