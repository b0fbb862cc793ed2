package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

const (
	testEmail     = "gopher@example.com"
	testPassword  = "s3cret"
	testCSRFToken = "csrf-token-123"
	testSession   = "session-abc"
)

func TestMain(m *testing.M) {
	internal.SetLogger(internal.NewSecureLogger(io.Discard, internal.LogLevelError, false, true))
	os.Exit(m.Run())
}

// fakeSite is an in-process course site: a sign-in form guarded by a CSRF
// token, a table of contents with two sections of two lessons, lesson pages
// and video files.
type fakeSite struct {
	server *httptest.Server

	mu            sync.Mutex
	tocHTML       string
	lessonHTML    map[string]string
	truncated     map[string]bool
	missingVideos map[string]bool
	videoHits     map[string]int
	loginOutages  int
	loginPosts    int
	expireAfter   int // lesson pages served before the session stops being accepted; 0 = never
	lessonHits    int
	videoDelay    time.Duration
}

const defaultTOC = `<html><body>
<h3>Test with Go</h3>
<p>Welcome back!</p>
<h3>Section One: Basics</h3>
<ul>
  <li><a href="/lessons/les_twg_01">Intro: Setup/Install</a></li>
  <li><a href="/lessons/les_twg_02">Table Tests</a></li>
</ul>
<h3>Section Two</h3>
<ul>
  <li><a href="/lessons/les_twg_03">Mocks</a></li>
  <li><a href="/lessons/les_twg_04">Fakes</a></li>
  <li><a href="/lessons/les_twg_04">Fakes</a></li>
</ul>
<a href="/signout">Sign out</a>
</body></html>`

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{
		tocHTML:       defaultTOC,
		lessonHTML:    make(map[string]string),
		truncated:     make(map[string]bool),
		missingVideos: make(map[string]bool),
		videoHits:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signin", site.handleSignin)
	mux.HandleFunc("/courses", site.requireSession(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><h1>Your courses</h1><a href="/courses/cor_test">Test with Go</a><a href="/signout">Sign out</a></body></html>`)
	}))
	mux.HandleFunc("/courses/cor_test", site.requireSession(site.handleTOC))
	mux.HandleFunc("/lessons/", site.requireSession(site.handleLesson))
	mux.HandleFunc("/files/", site.requireSession(site.handleFile))

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) URL() string {
	return s.server.URL
}

func (s *fakeSite) course() internal.CourseDescriptor {
	return internal.CourseDescriptor{
		Key:         "testwithgo",
		Title:       "Test with Go",
		BaseURL:     s.server.URL,
		TOCPath:     "/courses/cor_test",
		LoginPath:   "/signin",
		VideoPrefix: "fil_twg_",
	}
}

func (s *fakeSite) videoBody(name string) string {
	return strings.Repeat(name+"|", 4096)
}

func (s *fakeSite) hits(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoHits[name]
}

const loginPage = `<html><body>
<h1>Sign in</h1>
<form method="POST" action="/signin">
  <input type="hidden" name="gorilla.csrf.Token" value="%s">
  <input type="email" name="email">
  <input type="password" name="password">
  <button type="submit">Sign in</button>
</form>
</body></html>`

func (s *fakeSite) handleSignin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.loginOutages > 0 {
		s.loginOutages--
		s.mu.Unlock()
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		http.SetCookie(w, &http.Cookie{Name: "_gorilla_csrf", Value: "csrf-cookie", Path: "/"})
		fmt.Fprintf(w, loginPage, testCSRFToken)
	case http.MethodPost:
		s.mu.Lock()
		s.loginPosts++
		s.mu.Unlock()

		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		csrfCookie, err := r.Cookie("_gorilla_csrf")
		if err != nil || csrfCookie.Value != "csrf-cookie" || r.PostForm.Get("gorilla.csrf.Token") != testCSRFToken {
			http.Error(w, "forbidden - CSRF token invalid", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("email") != testEmail || r.PostForm.Get("password") != testPassword {
			fmt.Fprintf(w, loginPage, testCSRFToken)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: testSession, Path: "/"})
		http.Redirect(w, r, "/courses", http.StatusFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeSite) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != testSession {
			http.Redirect(w, r, "/signin", http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (s *fakeSite) handleTOC(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	page := s.tocHTML
	s.mu.Unlock()
	io.WriteString(w, page)
}

func (s *fakeSite) handleLesson(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/lessons/")

	s.mu.Lock()
	s.lessonHits++
	expired := s.expireAfter > 0 && s.lessonHits > s.expireAfter
	page, custom := s.lessonHTML[id]
	s.mu.Unlock()

	if expired {
		http.Redirect(w, r, "/signin", http.StatusFound)
		return
	}
	if !custom {
		suffix := strings.TrimPrefix(id, "les_twg_")
		page = fmt.Sprintf(`<html><body><h1>Lesson %s</h1>
<a href="/courses/cor_test">Back to course</a>
<a href="/files/fil_twg_%s">Download video</a>
</body></html>`, suffix, suffix)
	}
	io.WriteString(w, page)
}

func (s *fakeSite) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/files/")

	s.mu.Lock()
	s.videoHits[name]++
	missing := s.missingVideos[name]
	truncated := s.truncated[name]
	delay := s.videoDelay
	s.mu.Unlock()

	if missing {
		http.NotFound(w, r)
		return
	}

	body := s.videoBody(name)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	if truncated {
		// Declared length is never reached; the server closes the connection.
		io.WriteString(w, body[:len(body)/3])
		return
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	io.WriteString(w, body)
}

func testSessionConfig() *utils.SessionConfig {
	return &utils.SessionConfig{
		RequestTimeout:  5 * time.Second,
		DownloadTimeout: 10 * time.Second,
		UserAgent:       "jcdl-test/1.0",
	}
}

func testCredentials() internal.Credentials {
	return internal.Credentials{Email: testEmail, Password: testPassword}
}

// signIn returns an authenticated session against site
func signIn(t *testing.T, site *fakeSite) *utils.Session {
	t.Helper()
	auth := NewFormAuthenticator(testSessionConfig())
	session, err := auth.Authenticate(contextForTest(t), testCredentials(), site.URL()+"/signin")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	return session
}

func contextForTest(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// signInlessSession returns a fresh session without cookies
func signInlessSession(t *testing.T) *utils.Session {
	t.Helper()
	session, err := utils.NewSession(testSessionConfig())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session
}
