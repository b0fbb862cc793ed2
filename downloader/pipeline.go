package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

// Authenticator produces a signed-in session
type Authenticator interface {
	Authenticate(ctx context.Context, creds internal.Credentials, loginURL string) (*utils.Session, error)
}

// Scraper turns a course into an ordered manifest of videos
type Scraper interface {
	Scrape(ctx context.Context, session *utils.Session, course internal.CourseDescriptor) (*internal.Manifest, error)
}

// Downloader writes targets to disk and reports per-target outcomes
type Downloader interface {
	Download(ctx context.Context, session *utils.Session, targets []internal.DownloadTarget) *internal.DownloadReport
}

// DriverOptions configures a Driver
type DriverOptions struct {
	Registry   *internal.Registry
	Session    *utils.SessionConfig
	Download   *internal.DownloadConfig
	MaxRetries int
	Retry      *utils.RetryConfig
	DryRun     bool
}

// Driver runs the sign-in, scrape, plan and download stages in order
type Driver struct {
	registry   *internal.Registry
	auth       Authenticator
	scraper    Scraper
	planner    *DownloadPlanner
	downloader Downloader
	retry      *utils.RetryConfig
	maxRetries int
	dryRun     bool
}

// NewDriver wires the default stage implementations
func NewDriver(opts DriverOptions) *Driver {
	registry := opts.Registry
	if registry == nil {
		registry = internal.DefaultRegistry()
	}
	retry := opts.Retry
	if retry == nil {
		retry = utils.DefaultRetryConfig()
	}

	return &Driver{
		registry:   registry,
		auth:       NewFormAuthenticator(opts.Session),
		scraper:    NewPageScraper(),
		planner:    NewDownloadPlanner(),
		downloader: NewVideoDownloader(opts.Download),
		retry:      retry,
		maxRetries: opts.MaxRetries,
		dryRun:     opts.DryRun,
	}
}

// RunResult is everything a completed run produced
type RunResult struct {
	Course   internal.CourseDescriptor
	Manifest *internal.Manifest
	Targets  []internal.DownloadTarget
	Report   *internal.DownloadReport
	DryRun   bool
}

// Run downloads courseKey into destRoot. A returned error is fatal and
// means later stages did not run; per-video failures are in the report.
func (d *Driver) Run(ctx context.Context, creds internal.Credentials, courseKey, destRoot string) (*RunResult, error) {
	course, err := d.registry.Lookup(courseKey)
	if err != nil {
		return nil, err
	}
	result := &RunResult{Course: course, DryRun: d.dryRun}

	session, err := d.authenticate(ctx, creds, course.LoginURL())
	if err != nil {
		return nil, err
	}

	manifest, err := d.scraper.Scrape(ctx, session, course)
	if err != nil {
		return nil, err
	}
	result.Manifest = manifest

	targets, err := d.planner.PlanTargets(destRoot, course.Key, manifest.Records)
	if err != nil {
		return nil, err
	}
	result.Targets = targets

	if d.dryRun {
		internal.LogInfo("Dry run: %d file(s) planned, nothing downloaded", len(targets))
		return result, nil
	}

	result.Report = d.downloader.Download(ctx, session, targets)
	return result, nil
}

// authenticate signs in, retrying network failures with backoff.
// Rejected credentials are never retried.
func (d *Driver) authenticate(ctx context.Context, creds internal.Credentials, loginURL string) (*utils.Session, error) {
	for attempt := 0; ; attempt++ {
		session, err := d.auth.Authenticate(ctx, creds, loginURL)
		if err == nil {
			return session, nil
		}
		var fetchErr *internal.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.IsRetryable() || attempt >= d.maxRetries {
			return nil, err
		}

		delay := d.retry.Delay(attempt + 1)
		internal.LogWarn("Sign-in failed (%v), retrying in %v (%d/%d)", err, delay.Round(time.Millisecond), attempt+1, d.maxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// Summary renders the end-of-run report
func (r *RunResult) Summary() string {
	var b strings.Builder

	title := r.Course.Title
	if title == "" {
		title = r.Course.Key
	}
	fmt.Fprintf(&b, "Course: %s (%s)\n", title, r.Course.Key)

	if r.Manifest != nil {
		fmt.Fprintf(&b, "Lessons: %d with video", len(r.Manifest.Records))
		if n := len(r.Manifest.Diagnostics); n > 0 {
			fmt.Fprintf(&b, ", %d skipped while scraping", n)
		}
		b.WriteString("\n")
		for _, diag := range r.Manifest.Diagnostics {
			fmt.Fprintf(&b, "  - %s: %s\n", diag.LessonTitle, diag.Reason)
		}
	}

	if r.DryRun || r.Report == nil {
		fmt.Fprintf(&b, "Planned %d file(s):\n", len(r.Targets))
		for _, target := range r.Targets {
			fmt.Fprintf(&b, "  %s\n", target.DestinationPath)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%d video(s): %s (%s in %v)\n", r.Report.Total(), r.Report.String(), utils.FormatBytes(r.Report.Bytes), r.Report.Elapsed.Round(time.Second))
	if len(r.Report.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, failure := range r.Report.Failures {
			fmt.Fprintf(&b, "  - %s: %v\n", failure.Target.Record.LessonTitle, failure.Reason)
		}
	}
	return b.String()
}
