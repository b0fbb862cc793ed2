package internal

import (
	"fmt"
	"time"
)

// Credentials holds the account used to sign in for a single run
type Credentials struct {
	Email    string
	Password string
}

// CourseDescriptor describes where a course lives on the site
type CourseDescriptor struct {
	Key         string `json:"key"`
	Title       string `json:"title,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	TOCPath     string `json:"toc_path,omitempty"`
	LoginPath   string `json:"login_path,omitempty"`
	VideoPrefix string `json:"video_prefix,omitempty"`
}

// TOCURL returns the absolute table-of-contents URL
func (c CourseDescriptor) TOCURL() string {
	return c.BaseURL + c.TOCPath
}

// LoginURL returns the absolute sign-in URL
func (c CourseDescriptor) LoginURL() string {
	return c.BaseURL + c.LoginPath
}

// LessonRecord identifies one video and its place in the course ordering
type LessonRecord struct {
	SectionIndex int    `json:"section_index"`
	SectionTitle string `json:"section_title"`
	LessonTitle  string `json:"lesson_title"`
	LessonURL    string `json:"lesson_url"`
	VideoURL     string `json:"video_url"`
	OrderIndex   int    `json:"order_index"`
}

// ScrapeDiagnostic records a lesson that was skipped during scraping
type ScrapeDiagnostic struct {
	SectionTitle string `json:"section_title"`
	LessonTitle  string `json:"lesson_title"`
	LessonURL    string `json:"lesson_url"`
	Reason       string `json:"reason"`
}

// Manifest is the ordered result of scraping one course
type Manifest struct {
	Course      CourseDescriptor   `json:"course"`
	Records     []LessonRecord     `json:"records"`
	Diagnostics []ScrapeDiagnostic `json:"diagnostics,omitempty"`
}

// DownloadTarget pairs a lesson with the local path it is written to
type DownloadTarget struct {
	Record          LessonRecord
	DestinationPath string
}

// DownloadStatus is the outcome of a single target
type DownloadStatus int

const (
	StatusDownloaded DownloadStatus = iota
	StatusSkipped
	StatusFailed
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusDownloaded:
		return "Downloaded"
	case StatusSkipped:
		return "Skipped"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DownloadResult is the per-target entry of a DownloadReport
type DownloadResult struct {
	Target DownloadTarget
	Status DownloadStatus
	Bytes  int64
	Err    error
}

// DownloadFailure is a failed target with its reason
type DownloadFailure struct {
	Target DownloadTarget
	Reason error
}

// DownloadReport summarises a downloader run
type DownloadReport struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Elapsed    time.Duration
	Results    []DownloadResult
	Failures   []DownloadFailure
}

// Record appends a result and updates the counters
func (r *DownloadReport) Record(result DownloadResult) {
	r.Results = append(r.Results, result)
	switch result.Status {
	case StatusDownloaded:
		r.Downloaded++
		r.Bytes += result.Bytes
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, DownloadFailure{Target: result.Target, Reason: result.Err})
	}
}

// Total returns the number of targets processed
func (r *DownloadReport) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// String returns the one-line count summary
func (r *DownloadReport) String() string {
	return fmt.Sprintf("downloaded: %d, skipped: %d, failed: %d", r.Downloaded, r.Skipped, r.Failed)
}

// DownloadConfig contains configuration for download operations
type DownloadConfig struct {
	Workers   int
	RateLimit int64 // bytes per second
	Quiet     bool
}
