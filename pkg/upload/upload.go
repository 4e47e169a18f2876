package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// ErrNotFound is returned when a temp file doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrTypeDenied is returned when a file's content type is not allowed.
var ErrTypeDenied = errors.New("upload: file type not allowed")

// Store is the interface for upload storage backends.
type Store interface {
	// Save stores the uploaded file and returns a temp ID.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (tempID string, err error)

	// Claim retrieves and removes a temp file, returning a file handle.
	Claim(ctx context.Context, tempID string) (*File, error)

	// Cleanup removes temp files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File represents an uploaded file.
type File struct {
	// ID is the unique identifier for this upload.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the MIME type of the file.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Path is the local filesystem path (for DiskStore).
	Path string

	// URL is the remote URL (for S3Store).
	URL string

	// Reader provides access to the file contents.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Config holds upload limits.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Default: 10MB.
	MaxFileSize int64

	// AllowedTypes is a list of allowed MIME types. Entries ending in "/*"
	// match a whole family. If empty, all types are allowed.
	AllowedTypes []string

	// TempExpiry is how long temp files live before cleanup.
	// Default: 1 hour.
	TempExpiry time.Duration
}

// DefaultConfig returns limits suited to listing and post images.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  10 * 1024 * 1024, // 10MB
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		TempExpiry:   time.Hour,
	}
}

func (c *Config) maxSize() int64 {
	if c == nil || c.MaxFileSize <= 0 {
		return 10 * 1024 * 1024
	}
	return c.MaxFileSize
}

// Allows reports whether contentType is permitted.
func (c *Config) Allows(contentType string) bool {
	if c == nil || len(c.AllowedTypes) == 0 {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, allowed := range c.AllowedTypes {
		allowed = strings.ToLower(allowed)
		if allowed == ct {
			return true
		}
		if strings.HasSuffix(allowed, "/*") && strings.HasPrefix(ct, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

// Validate checks a file's declared size and content type against c. It
// returns a validation error from the error taxonomy.
func Validate(c *Config, filename, contentType string, size int64) error {
	if size > c.maxSize() {
		return apperrors.New(apperrors.CodeFileTooLarge).
			WithDetail(fmt.Sprintf("%s is %d bytes; the limit is %d", filename, size, c.maxSize())).
			Wrap(ErrTooLarge)
	}
	if !c.Allows(contentType) {
		return apperrors.New(apperrors.CodeFileTypeDenied).
			WithDetail(fmt.Sprintf("%s has type %q", filename, contentType)).
			Wrap(ErrTypeDenied)
	}
	return nil
}

// Sniff detects the content type of r from its first 512 bytes. The
// returned reader yields the full content.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), r), nil
}
