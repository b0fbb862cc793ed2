package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

// downloadJob is one target handed to the worker pool
type downloadJob struct {
	index  int
	target internal.DownloadTarget
}

// jobResult carries a finished job back to the collector
type jobResult struct {
	index  int
	result internal.DownloadResult
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	workers int
	jobs    chan downloadJob
	results chan jobResult
	wg      sync.WaitGroup
	ctx     context.Context
	run     func(ctx context.Context, target internal.DownloadTarget) internal.DownloadResult
}

// VideoDownloader streams targets to disk. Finished files only ever appear
// under their final name; partial transfers stay in hidden temp files that
// are removed on failure.
type VideoDownloader struct {
	config      *internal.DownloadConfig
	fileOps     *utils.FileOperations
	rateLimiter internal.RateLimiter
	newProgress func(label string, total int64) internal.ProgressReporter
}

// NewVideoDownloader creates a downloader for config
func NewVideoDownloader(config *internal.DownloadConfig) *VideoDownloader {
	cfg := internal.DownloadConfig{Workers: 1}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > internal.MaxWorkers {
		cfg.Workers = internal.MaxWorkers
	}

	d := &VideoDownloader{
		config:  &cfg,
		fileOps: utils.NewFileOperations(),
		newProgress: func(label string, total int64) internal.ProgressReporter {
			return utils.NewProgressTracker(label, total, false)
		},
	}
	if cfg.RateLimit > 0 {
		d.rateLimiter = utils.NewTokenBucketLimiter(cfg.RateLimit)
	}
	return d
}

// Download processes every target and reports the outcome of each, in target
// order. A failed target never stops the run; cancelling ctx marks the
// targets not yet finished as failed.
func (d *VideoDownloader) Download(ctx context.Context, session *utils.Session, targets []internal.DownloadTarget) *internal.DownloadReport {
	start := time.Now()
	report := &internal.DownloadReport{}
	if d.rateLimiter != nil {
		internal.LogInfo("Bandwidth capped at %s/s across %d worker(s)", utils.FormatBytes(d.rateLimiter.Rate()), d.config.Workers)
	}

	var results []internal.DownloadResult
	if d.config.Workers > 1 && len(targets) > 1 {
		results = d.downloadConcurrent(ctx, session, targets)
	} else {
		results = d.downloadSequential(ctx, session, targets)
	}

	for _, result := range results {
		report.Record(result)
	}
	report.Elapsed = time.Since(start)

	internal.LogInfo("Download finished: %s", report.String())
	return report
}

func (d *VideoDownloader) downloadSequential(ctx context.Context, session *utils.Session, targets []internal.DownloadTarget) []internal.DownloadResult {
	results := make([]internal.DownloadResult, 0, len(targets))
	showProgress := !d.config.Quiet

	for i, target := range targets {
		internal.LogInfo("[%d/%d] %s", i+1, len(targets), target.Record.LessonTitle)
		results = append(results, d.downloadTarget(ctx, session, target, showProgress))
	}
	return results
}

func (d *VideoDownloader) downloadConcurrent(ctx context.Context, session *utils.Session, targets []internal.DownloadTarget) []internal.DownloadResult {
	workers := d.config.Workers
	if workers > len(targets) {
		workers = len(targets)
	}

	pool := d.createWorkerPool(ctx, session, workers)
	pool.start()

	go func() {
		defer close(pool.jobs)
		for i, target := range targets {
			pool.jobs <- downloadJob{index: i, target: target}
		}
	}()

	results := make([]internal.DownloadResult, len(targets))
	for r := range pool.results {
		results[r.index] = r.result
	}
	return results
}

// createWorkerPool creates a new worker pool for downloads
func (d *VideoDownloader) createWorkerPool(ctx context.Context, session *utils.Session, workers int) *WorkerPool {
	return &WorkerPool{
		workers: workers,
		jobs:    make(chan downloadJob, workers*2),
		results: make(chan jobResult, workers*2),
		ctx:     ctx,
		run: func(ctx context.Context, target internal.DownloadTarget) internal.DownloadResult {
			return d.downloadTarget(ctx, session, target, false)
		},
	}
}

// start begins the worker pool execution
func (wp *WorkerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	go func() {
		wp.wg.Wait()
		close(wp.results)
	}()
}

// worker processes download jobs until the job channel is drained. Jobs
// received after cancellation still produce a (failed) result so that every
// target is reported.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		internal.LogDebug("worker %d: %s", id, job.target.Record.LessonTitle)
		wp.results <- jobResult{index: job.index, result: wp.run(wp.ctx, job.target)}
	}
}

// downloadTarget runs the per-target policy: skip finished files, otherwise
// stream to a temp file and rename it into place.
func (d *VideoDownloader) downloadTarget(ctx context.Context, session *utils.Session, target internal.DownloadTarget, showProgress bool) internal.DownloadResult {
	result := internal.DownloadResult{Target: target}
	dest := target.DestinationPath
	videoURL := target.Record.VideoURL

	fail := func(err error) internal.DownloadResult {
		result.Status = internal.StatusFailed
		result.Err = err
		if fetchErr, ok := err.(*internal.FetchError); ok {
			fetchErr.WithContext("lesson", target.Record.LessonTitle)
			internal.LogFetchError(fetchErr)
		} else {
			internal.LogError("%s: %v", target.Record.LessonTitle, err)
		}
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(internal.NewTransportFailureError(videoURL, fmt.Errorf("download cancelled: %w", err)))
	}

	if err := d.fileOps.EnsureDir(dest); err != nil {
		return fail(internal.NewWriteFailureError(dest, err))
	}

	if d.fileOps.NonEmptyFile(dest) {
		size, _ := d.fileOps.GetFileSize(dest)
		internal.LogInfo("Skipping %s (already downloaded, %s)", dest, utils.FormatBytes(size))
		result.Status = internal.StatusSkipped
		return result
	}
	if d.fileOps.FileExists(dest) {
		internal.LogWarn("Replacing empty file %s", dest)
	}

	n, err := d.streamToFile(ctx, session, videoURL, dest, showProgress)
	if err != nil {
		return fail(err)
	}

	internal.LogInfo("Saved %s (%s)", dest, utils.FormatBytes(n))
	result.Status = internal.StatusDownloaded
	result.Bytes = n
	return result
}

// streamToFile downloads videoURL into dest through a temp file beside it.
// Returned errors are *internal.FetchError.
func (d *VideoDownloader) streamToFile(ctx context.Context, session *utils.Session, videoURL, dest string, showProgress bool) (written int64, err error) {
	resp, err := session.Stream(ctx, videoURL)
	if err != nil {
		return 0, internal.NewTransportFailureError(videoURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, internal.NewTransportFailureError(videoURL, fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode))
	}
	if err := checkVideoResponse(resp, session.LoginURL()); err != nil {
		return 0, internal.NewTransportFailureError(videoURL, err)
	}

	tmp, err := d.fileOps.CreateTempBeside(dest)
	if err != nil {
		return 0, internal.NewWriteFailureError(dest, err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			tmp.Close()
		}
		if err != nil {
			d.fileOps.RemoveQuiet(tmpPath)
		}
	}()

	var progress internal.ProgressReporter = noopProgress{}
	if showProgress {
		progress = d.newProgress(filepath.Base(dest), resp.ContentLength)
	}
	written, err = d.copyWithRateLimit(ctx, tmp, resp.Body, progress)
	progress.Finish()

	if err != nil {
		var werr *writeError
		if errors.As(err, &werr) {
			return written, internal.NewWriteFailureError(dest, werr.err)
		}
		return written, internal.NewTransportFailureError(videoURL, err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, internal.NewTransportFailureError(videoURL,
			fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength))
	}
	if written == 0 {
		return 0, internal.NewTransportFailureError(videoURL, fmt.Errorf("empty response body"))
	}

	if err = tmp.Sync(); err != nil {
		return written, internal.NewWriteFailureError(dest, err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return written, internal.NewWriteFailureError(dest, err)
	}
	if err = d.fileOps.AtomicRename(tmpPath, dest); err != nil {
		return written, internal.NewWriteFailureError(dest, err)
	}

	return written, nil
}

// checkVideoResponse rejects a response that is a page rather than a video:
// a redirect that ended on the sign-in page, or any HTML document.
func checkVideoResponse(resp *http.Response, loginURL string) error {
	if resp.Request != nil && resp.Request.URL != nil && loginURL != "" &&
		utils.SamePath(resp.Request.URL.String(), loginURL) {
		return fmt.Errorf("session expired: redirected to the sign-in page")
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && (mediaType == "text/html" || mediaType == "application/xhtml+xml") {
			return fmt.Errorf("session expired: got an HTML page (%s) instead of a video", mediaType)
		}
	}
	return nil
}

// writeError marks a failure on the local side of a copy
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// copyWithRateLimit copies src to dst in chunks, honouring the shared rate
// limiter and stopping after the current chunk once ctx is cancelled.
func (d *VideoDownloader) copyWithRateLimit(ctx context.Context, dst io.Writer, src io.Reader, progress internal.ProgressReporter) (int64, error) {
	const bufferSize = 32 * 1024 // 32KB buffer
	buffer := make([]byte, bufferSize)
	var totalWritten int64

	for {
		n, err := src.Read(buffer)
		if n > 0 {
			if d.rateLimiter != nil {
				if err := d.rateLimiter.Wait(ctx, n); err != nil {
					return totalWritten, fmt.Errorf("rate limiting error: %w", err)
				}
			}

			written, writeErr := dst.Write(buffer[:n])
			totalWritten += int64(written)
			progress.Add(int64(written))

			if writeErr != nil {
				return totalWritten, &writeError{err: writeErr}
			}
			if written != n {
				return totalWritten, &writeError{err: io.ErrShortWrite}
			}
		}

		if err != nil {
			if err == io.EOF {
				return totalWritten, nil
			}
			return totalWritten, err
		}

		select {
		case <-ctx.Done():
			return totalWritten, ctx.Err()
		default:
		}
	}
}

type noopProgress struct{}

func (noopProgress) Add(int64) {}
func (noopProgress) Finish()   {}
