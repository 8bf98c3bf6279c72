package services

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename keeps a basename made of letters, digits, dots, dashes and
// underscores. It never returns an empty name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "." {
		return "upload"
	}
	return name
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Upload is a request-scoped scratch copy of an uploaded file.
type Upload struct {
	Path     string
	Name     string
	Original string
	Size     int64
}

// Remove deletes the scratch file. It is safe to call more than once.
func (u *Upload) Remove() {
	if u == nil || u.Path == "" {
		return
	}
	_ = os.Remove(u.Path)
}

func EnsureUploadDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}
	return base, nil
}

// SaveUpload writes body into dir under a per-request unique name so that
// concurrent uploads of the same filename never collide.
func SaveUpload(dir, original string, body io.Reader) (*Upload, error) {
	if _, err := EnsureUploadDir(dir); err != nil {
		return nil, Internal(err, "Failed to prepare upload folder")
	}
	name := uuid.NewString() + "_" + SanitizeFilename(original)
	target := filepath.Join(dir, name)
	file, err := os.Create(target)
	if err != nil {
		return nil, Internal(err, "Failed to save upload")
	}
	size, err := io.Copy(file, body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, Internal(err, "Failed to save upload")
	}
	return &Upload{Path: target, Name: name, Original: original, Size: size}, nil
}
