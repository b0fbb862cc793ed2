package internal

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

const calhounBaseURL = "https://courses.calhoun.io"

// builtinCourses is the course list shipped with the binary
var builtinCourses = []CourseDescriptor{
	{
		Key:         "testwithgo",
		Title:       "Test with Go",
		BaseURL:     calhounBaseURL,
		TOCPath:     "/courses/cor_test",
		LoginPath:   "/signin",
		VideoPrefix: "fil_twg_",
	},
	{
		Key:         "webdevwithgo",
		Title:       "Web Development with Go",
		BaseURL:     calhounBaseURL,
		TOCPath:     "/courses/cor_wdv2",
		LoginPath:   "/signin",
		VideoPrefix: "fil_wdwgv2_",
	},
}

// Registry is a read-only course_key -> CourseDescriptor mapping
type Registry struct {
	courses map[string]CourseDescriptor
}

// NewRegistry builds a registry, rejecting duplicate keys and incomplete entries
func NewRegistry(courses []CourseDescriptor) (*Registry, error) {
	r := &Registry{courses: make(map[string]CourseDescriptor, len(courses))}
	for _, c := range courses {
		if _, exists := r.courses[c.Key]; exists {
			return nil, fmt.Errorf("duplicate course key %q", c.Key)
		}
		if err := validateDescriptor(c); err != nil {
			return nil, err
		}
		r.courses[c.Key] = c
	}
	return r, nil
}

// DefaultRegistry returns the built-in course registry
func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinCourses)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRegistry returns the built-in registry merged with the optional override file
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewValidationErrorWithValue("registry", fmt.Sprintf("cannot read registry file: %v", err), path)
	}

	var overrides []CourseDescriptor
	if err := json5.Unmarshal(data, &overrides); err != nil {
		return nil, NewValidationErrorWithValue("registry", fmt.Sprintf("invalid registry file: %v", err), path).
			WithSuggestion("The file must hold a JSON5 array of {key, title, base_url, toc_path, login_path, video_prefix} objects")
	}

	return MergeRegistry(builtinCourses, overrides)
}

// MergeRegistry overlays overrides onto base. Entries with a known key only
// replace the fields they set; unknown keys are added.
func MergeRegistry(base, overrides []CourseDescriptor) (*Registry, error) {
	merged := make([]CourseDescriptor, len(base))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.Key] = i
	}

	seen := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		if o.Key == "" {
			return nil, fmt.Errorf("registry entry without a key")
		}
		if seen[o.Key] {
			return nil, fmt.Errorf("duplicate course key %q in registry file", o.Key)
		}
		seen[o.Key] = true

		i, exists := index[o.Key]
		if !exists {
			index[o.Key] = len(merged)
			merged = append(merged, o)
			continue
		}
		if err := mergo.Merge(&merged[i], o, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge course %q: %w", o.Key, err)
		}
	}

	return NewRegistry(merged)
}

// Lookup returns the descriptor for key
func (r *Registry) Lookup(key string) (CourseDescriptor, error) {
	c, ok := r.courses[key]
	if !ok {
		return CourseDescriptor{}, NewUnknownCourseError(key, r.Keys())
	}
	return c, nil
}

// Keys returns the registered course keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.courses))
	for k := range r.courses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Courses returns all descriptors sorted by key
func (r *Registry) Courses() []CourseDescriptor {
	out := make([]CourseDescriptor, 0, len(r.courses))
	for _, k := range r.Keys() {
		out = append(out, r.courses[k])
	}
	return out
}

func validateDescriptor(c CourseDescriptor) error {
	if c.Key == "" {
		return fmt.Errorf("course key cannot be empty")
	}
	if strings.ContainsAny(c.Key, `/\ `) {
		return fmt.Errorf("course key %q must be a single path segment", c.Key)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("course %q: base_url must be an absolute http(s) URL, got %q", c.Key, c.BaseURL)
	}
	if !strings.HasPrefix(c.TOCPath, "/") {
		return fmt.Errorf("course %q: toc_path must start with '/'", c.Key)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("course %q: login_path must start with '/'", c.Key)
	}

	return nil
}
