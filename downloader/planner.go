package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

const videoExtension = ".mp4"

// DownloadPlanner maps lesson records to local destination paths
type DownloadPlanner struct{}

// NewDownloadPlanner creates a new instance of DownloadPlanner
func NewDownloadPlanner() *DownloadPlanner {
	return &DownloadPlanner{}
}

// PlanTargets derives one target per record, laid out as
// {destRoot}/{courseKey}/{NN}_{section}/{NNN}_{lesson}.mp4.
// Every record must carry a video URL; clashing paths get a numeric suffix.
func (p *DownloadPlanner) PlanTargets(destRoot, courseKey string, records []internal.LessonRecord) ([]internal.DownloadTarget, error) {
	if destRoot == "" {
		return nil, fmt.Errorf("destination root cannot be empty")
	}

	courseDir := filepath.Join(destRoot, utils.SanitizeSegment(courseKey))
	used := make(map[string]bool, len(records))
	targets := make([]internal.DownloadTarget, 0, len(records))

	for _, record := range records {
		if strings.TrimSpace(record.VideoURL) == "" {
			return nil, fmt.Errorf("lesson %q has no video URL", record.LessonTitle)
		}

		sectionDir := fmt.Sprintf("%02d_%s", record.SectionIndex, utils.SanitizeSegment(record.SectionTitle))
		base := fmt.Sprintf("%03d_%s", record.OrderIndex+1, utils.SanitizeSegment(lessonName(record.LessonTitle)))
		dir := filepath.Join(courseDir, sectionDir)

		dest := p.uniquePath(dir, base, used)
		targets = append(targets, internal.DownloadTarget{
			Record:          record,
			DestinationPath: dest,
		})
	}

	return targets, nil
}

// uniquePath returns dir/base.mp4, or dir/base_N.mp4 for the first free N >= 2.
// Names are compared case-insensitively so targets cannot clash on
// case-folding file systems.
func (p *DownloadPlanner) uniquePath(dir, base string, used map[string]bool) string {
	candidate := filepath.Join(dir, base+videoExtension)
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, videoExtension))
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// lessonName drops a trailing video extension so it is not doubled
func lessonName(title string) string {
	if strings.HasSuffix(strings.ToLower(title), videoExtension) {
		return title[:len(title)-len(videoExtension)]
	}
	return title
}

// PlanTargets is a convenience wrapper around DownloadPlanner.PlanTargets
func PlanTargets(destRoot, courseKey string, records []internal.LessonRecord) ([]internal.DownloadTarget, error) {
	return NewDownloadPlanner().PlanTargets(destRoot, courseKey, records)
}
