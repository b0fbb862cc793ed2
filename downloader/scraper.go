package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

// UncategorizedSection holds lessons listed before the first section heading
const UncategorizedSection = "Uncategorized"

// lessonLink is a lesson found on the table-of-contents page
type lessonLink struct {
	sectionIndex int
	sectionTitle string
	title        string
	url          string
}

// PageScraper reads a course's table of contents and lesson pages
type PageScraper struct{}

// NewPageScraper creates a scraper
func NewPageScraper() *PageScraper {
	return &PageScraper{}
}

// Scrape builds the ordered manifest of videos for course. Fatal problems
// with the table of contents are returned as *internal.FetchError; lessons
// that cannot be resolved are recorded as diagnostics.
func (s *PageScraper) Scrape(ctx context.Context, session *utils.Session, course internal.CourseDescriptor) (*internal.Manifest, error) {
	tocURL := course.TOCURL()
	internal.LogInfo("Reading table of contents for %s", course.Key)

	doc, _, err := s.fetchCoursePage(ctx, session, course, tocURL)
	if err != nil {
		return nil, err
	}

	links, err := s.collectLessons(doc, course.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, internal.NewPageStructureChangedError(tocURL, "no lesson links found on the table-of-contents page")
	}
	internal.LogInfo("Found %d lesson(s)", len(links))

	manifest := &internal.Manifest{Course: course}
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		videoURL, reason := s.resolveVideo(ctx, session, course, link)
		if reason != "" {
			internal.LogWarn("Skipping lesson %q: %s", link.title, reason)
			manifest.Diagnostics = append(manifest.Diagnostics, internal.ScrapeDiagnostic{
				SectionTitle: link.sectionTitle,
				LessonTitle:  link.title,
				LessonURL:    link.url,
				Reason:       reason,
			})
			continue
		}

		manifest.Records = append(manifest.Records, internal.LessonRecord{
			SectionIndex: link.sectionIndex,
			SectionTitle: link.sectionTitle,
			LessonTitle:  link.title,
			LessonURL:    link.url,
			VideoURL:     videoURL,
			OrderIndex:   len(manifest.Records),
		})
		internal.LogDebug("Lesson %q -> %s", link.title, videoURL)
	}

	return manifest, nil
}

// fetchCoursePage loads a page that requires a signed-in session
func (s *PageScraper) fetchCoursePage(ctx context.Context, session *utils.Session, course internal.CourseDescriptor, pageURL string) (*goquery.Document, *resty.Response, error) {
	res, err := session.Get(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, internal.NewUnreachableError(pageURL, err)
	}

	status := res.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, res, internal.NewSessionExpiredError(pageURL)
	case status < 200 || status >= 300:
		return nil, res, internal.NewUnreachableError(pageURL, fmt.Errorf("server returned HTTP %d", status))
	}

	if utils.SamePath(utils.FinalURL(res), course.LoginURL()) {
		return nil, res, internal.NewSessionExpiredError(pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, res, internal.NewPageStructureChangedError(pageURL, fmt.Sprintf("unparsable HTML: %v", err))
	}

	if doc.Find(`input[type="password"]`).Length() > 0 {
		return nil, res, internal.NewSessionExpiredError(pageURL)
	}

	return doc, res, nil
}

// collectLessons walks h3 headings and links in document order. The first h3
// is the page title; each later one opens a section.
func (s *PageScraper) collectLessons(doc *goquery.Document, baseURL string) ([]lessonLink, error) {
	validator, err := utils.NewURLValidator(baseURL)
	if err != nil {
		return nil, err
	}

	var links []lessonLink
	seen := make(map[string]bool)
	headingSeen := false
	sectionIndex := 0
	sectionTitle := UncategorizedSection

	doc.Find("h3, a").Each(func(_ int, sel *goquery.Selection) {
		node := sel.Get(0)
		if node.Data == "h3" {
			if !headingSeen {
				headingSeen = true
				return
			}
			sectionIndex++
			sectionTitle = utils.NodeText(node)
			if sectionTitle == "" {
				sectionTitle = fmt.Sprintf("Section %d", sectionIndex)
			}
			return
		}

		href, ok := utils.Attr(node, "href")
		if !ok || !utils.IsLessonLink(href) {
			return
		}
		lessonURL, err := validator.Resolve(href)
		if err != nil {
			internal.LogDebug("Ignoring lesson link %q: %v", href, err)
			return
		}
		if !validator.SameSite(lessonURL) {
			internal.LogDebug("Ignoring off-site lesson link %s", lessonURL)
			return
		}
		if seen[lessonURL] {
			return
		}
		seen[lessonURL] = true

		title := utils.NodeText(node)
		if title == "" {
			title = lessonSlug(lessonURL)
		}
		links = append(links, lessonLink{
			sectionIndex: sectionIndex,
			sectionTitle: sectionTitle,
			title:        title,
			url:          lessonURL,
		})
	})

	return links, nil
}

// resolveVideo fetches a lesson page and returns its video URL, or a reason
// the lesson has to be skipped.
func (s *PageScraper) resolveVideo(ctx context.Context, session *utils.Session, course internal.CourseDescriptor, link lessonLink) (string, string) {
	doc, res, err := s.fetchCoursePage(ctx, session, course, link.url)
	if err != nil {
		if internal.IsErrorType(err, internal.ErrSessionExpired) {
			return "", "session expired"
		}
		if ctx.Err() != nil {
			return "", "cancelled"
		}
		return "", fmt.Sprintf("lesson page could not be loaded: %v", err)
	}

	pageURL := utils.FinalURL(res)
	if pageURL == "" {
		pageURL = link.url
	}

	videoURL := findVideoURL(doc, pageURL, course.VideoPrefix)
	if videoURL == "" {
		return "", "no video link found on lesson page"
	}
	return videoURL, ""
}

// findVideoURL looks for, in order: a hosted file link with the course
// prefix, any link to an .mp4 file, then an embedded player source.
func findVideoURL(doc *goquery.Document, pageURL, prefix string) string {
	resolve := func(ref string) string {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return ""
		}
		resolved, err := utils.ResolveURL(pageURL, ref)
		if err != nil {
			return ""
		}
		return resolved
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if utils.IsVideoLink(href, prefix) {
			found = resolve(href)
		}
		return found == ""
	})
	if found != "" {
		return found
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if candidate := resolve(href); candidate != "" && utils.HasMP4Path(candidate) {
			found = candidate
		}
		return found == ""
	})
	if found != "" {
		return found
	}

	doc.Find("video source[src], video[src]").EachWithBreak(func(_ int, v *goquery.Selection) bool {
		src, _ := v.Attr("src")
		found = resolve(src)
		return found == ""
	})
	return found
}

func lessonSlug(lessonURL string) string {
	u, err := url.Parse(lessonURL)
	if err != nil {
		return ""
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}
