package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

// siteRegistry returns the built-in registry with testwithgo pointed at site
func siteRegistry(t *testing.T, site *fakeSite) *internal.Registry {
	t.Helper()
	registry, err := internal.MergeRegistry(internal.DefaultRegistry().Courses(), []internal.CourseDescriptor{
		{Key: "testwithgo", BaseURL: site.URL()},
	})
	require.NoError(t, err)
	return registry
}

func siteDriver(t *testing.T, site *fakeSite, dryRun bool) *Driver {
	t.Helper()
	return NewDriver(DriverOptions{
		Registry:   siteRegistry(t, site),
		Session:    testSessionConfig(),
		Download:   &internal.DownloadConfig{Workers: 1, Quiet: true},
		MaxRetries: 2,
		Retry:      &utils.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		DryRun:     dryRun,
	})
}

func TestDriver_EndToEnd(t *testing.T) {
	site := newFakeSite(t)
	dest := t.TempDir()

	result, err := siteDriver(t, site, false).Run(contextForTest(t), testCredentials(), "testwithgo", dest)
	require.NoError(t, err)
	require.NotNil(t, result.Report)

	require.Equal(t, 4, result.Report.Downloaded)
	require.Equal(t, 0, result.Report.Skipped)
	require.Equal(t, 0, result.Report.Failed)

	expected := []string{
		filepath.Join(dest, "testwithgo", "01_Section_One_Basics", "001_Intro_Setup_Install.mp4"),
		filepath.Join(dest, "testwithgo", "01_Section_One_Basics", "002_Table_Tests.mp4"),
		filepath.Join(dest, "testwithgo", "02_Section_Two", "003_Mocks.mp4"),
		filepath.Join(dest, "testwithgo", "02_Section_Two", "004_Fakes.mp4"),
	}
	for i, path := range expected {
		require.Equal(t, path, result.Targets[i].DestinationPath)
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}

	summary := result.Summary()
	require.Contains(t, summary, "Test with Go (testwithgo)")
	require.Contains(t, summary, "downloaded: 4, skipped: 0, failed: 0")

	// A second run over the same destination downloads nothing.
	again, err := siteDriver(t, site, false).Run(contextForTest(t), testCredentials(), "testwithgo", dest)
	require.NoError(t, err)
	require.Equal(t, 0, again.Report.Downloaded)
	require.Equal(t, 4, again.Report.Skipped)
}

func TestDriver_UnknownCourse(t *testing.T) {
	site := newFakeSite(t)

	_, err := siteDriver(t, site, false).Run(contextForTest(t), testCredentials(), "gophercises", t.TempDir())
	require.True(t, internal.IsErrorType(err, internal.ErrUnknownCourse), "got %v", err)
	require.Equal(t, 0, site.loginPosts, "no network activity before the course is known")
}

func TestDriver_EveryRegisteredCourseIsKnown(t *testing.T) {
	registry := internal.DefaultRegistry()
	driver := NewDriver(DriverOptions{Registry: registry})
	driver.auth = failingAuth{err: internal.NewInvalidCredentialsError("", "stop")}

	for _, key := range registry.Keys() {
		_, err := driver.Run(context.Background(), testCredentials(), key, t.TempDir())
		require.False(t, internal.IsErrorType(err, internal.ErrUnknownCourse), "course %s", key)
	}
}

func TestDriver_InvalidCredentialsStopsPipeline(t *testing.T) {
	site := newFakeSite(t)
	dest := t.TempDir()

	_, err := siteDriver(t, site, false).Run(contextForTest(t), internal.Credentials{Email: testEmail, Password: "wrong"}, "testwithgo", dest)
	require.True(t, internal.IsErrorType(err, internal.ErrInvalidCredentials), "got %v", err)
	require.Equal(t, 1, site.loginPosts, "invalid credentials are not retried")

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDriver_RetriesNetworkFailure(t *testing.T) {
	site := newFakeSite(t)
	site.loginOutages = 2

	result, err := siteDriver(t, site, false).Run(contextForTest(t), testCredentials(), "testwithgo", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 4, result.Report.Downloaded)
}

func TestDriver_GivesUpAfterMaxRetries(t *testing.T) {
	auth := &countingAuth{err: internal.NewNetworkFailureError("https://x.io/signin", errors.New("connection refused"))}
	driver := NewDriver(DriverOptions{
		MaxRetries: 2,
		Retry:      &utils.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	driver.auth = auth

	_, err := driver.Run(context.Background(), testCredentials(), "testwithgo", t.TempDir())
	require.True(t, internal.IsErrorType(err, internal.ErrNetworkFailure), "got %v", err)
	require.Equal(t, 3, auth.calls)
}

func TestDriver_SessionExpiredStopsBeforeDownload(t *testing.T) {
	driver := NewDriver(DriverOptions{})
	driver.auth = &countingAuth{}
	driver.scraper = failingScraper{err: internal.NewSessionExpiredError("https://x.io/courses/cor_test")}
	downloads := &recordingDownloader{}
	driver.downloader = downloads

	_, err := driver.Run(context.Background(), testCredentials(), "testwithgo", t.TempDir())
	require.True(t, internal.IsErrorType(err, internal.ErrSessionExpired), "got %v", err)
	require.False(t, downloads.called)
}

func TestDriver_DryRun(t *testing.T) {
	site := newFakeSite(t)
	dest := t.TempDir()

	result, err := siteDriver(t, site, true).Run(contextForTest(t), testCredentials(), "testwithgo", dest)
	require.NoError(t, err)
	require.Nil(t, result.Report)
	require.Len(t, result.Targets, 4)
	require.Equal(t, 0, site.hits("fil_twg_01"))

	summary := result.Summary()
	require.Contains(t, summary, "Planned 4 file(s)")
	require.Contains(t, summary, "001_Intro_Setup_Install.mp4")
}

func TestRunResult_SummaryListsFailures(t *testing.T) {
	report := &internal.DownloadReport{}
	report.Record(internal.DownloadResult{Status: internal.StatusDownloaded, Bytes: 2048})
	report.Record(internal.DownloadResult{
		Target: internal.DownloadTarget{Record: internal.LessonRecord{LessonTitle: "Mocks"}},
		Status: internal.StatusFailed,
		Err:    errors.New("unexpected HTTP status: 404"),
	})

	result := &RunResult{
		Course: internal.CourseDescriptor{Key: "testwithgo"},
		Manifest: &internal.Manifest{
			Records:     make([]internal.LessonRecord, 2),
			Diagnostics: []internal.ScrapeDiagnostic{{LessonTitle: "Bonus", Reason: "no video link found on lesson page"}},
		},
		Report: report,
	}

	summary := result.Summary()
	for _, want := range []string{
		"Course: testwithgo (testwithgo)",
		"Lessons: 2 with video, 1 skipped while scraping",
		"Bonus: no video link found on lesson page",
		"downloaded: 1, skipped: 0, failed: 1",
		"Mocks: unexpected HTTP status: 404",
	} {
		require.True(t, strings.Contains(summary, want), "summary missing %q:\n%s", want, summary)
	}
}

type failingAuth struct {
	err error
}

func (a failingAuth) Authenticate(context.Context, internal.Credentials, string) (*utils.Session, error) {
	return nil, a.err
}

type countingAuth struct {
	calls int
	err   error
}

func (a *countingAuth) Authenticate(context.Context, internal.Credentials, string) (*utils.Session, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return utils.NewSession(nil)
}

type failingScraper struct {
	err error
}

func (s failingScraper) Scrape(context.Context, *utils.Session, internal.CourseDescriptor) (*internal.Manifest, error) {
	return nil, s.err
}

type recordingDownloader struct {
	called bool
}

func (d *recordingDownloader) Download(context.Context, *utils.Session, []internal.DownloadTarget) *internal.DownloadReport {
	d.called = true
	return &internal.DownloadReport{}
}
