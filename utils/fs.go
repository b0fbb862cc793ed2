package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
)

// MaxSegmentBytes bounds a sanitized path segment in UTF-8 bytes, leaving
// room under the usual 255-byte name limit for the index prefix, the
// extension and the temp-file decoration.
const MaxSegmentBytes = 200

// SanitizeSegment turns a display title into a single safe path segment.
// Separators, reserved and control characters and whitespace become '_',
// runs of '_' collapse, and leading/trailing dots, underscores and spaces
// are trimmed. An empty result becomes "untitled".
func SanitizeSegment(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range title {
		if r == '/' || r == '\\' || strings.ContainsRune(`:*?"<>|`, r) || unicode.IsControl(r) || unicode.IsSpace(r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), "._ ")
	if len(out) > MaxSegmentBytes {
		cut := MaxSegmentBytes
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimRight(out[:cut], "._ ")
	}
	if out == "" {
		return "untitled"
	}
	return out
}

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// NonEmptyFile reports whether path is a regular file with at least one byte
func (f *FileOperations) NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CreateTempBeside creates a hidden temporary file in the same directory as
// path, so that a later rename onto path stays on one file system.
func (f *FileOperations) CreateTempBeside(path string) (*os.File, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	file, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return file, nil
}

// AtomicRename performs an atomic file rename operation
func (f *FileOperations) AtomicRename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// RemoveQuiet deletes path, ignoring a missing file
func (f *FileOperations) RemoveQuiet(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		internal.LogDebug("failed to remove %s: %v", path, err)
	}
}
