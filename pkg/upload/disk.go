package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File name suffixes inside a DiskStore directory. An upload with id X
// lives in X; X.json describes it; X.part is an unfinished write and
// X.claimed a blob handed to a reader.
const (
	sidecarExt = ".json"
	partialExt = ".part"
	claimedExt = ".claimed"
)

// DiskStore keeps uploads in a directory. Everything it knows about an
// upload is on disk, so several processes may share the directory and
// uploads survive restarts. Claims are made exclusive by renaming the blob.
type DiskStore struct {
	dir     string
	maxSize int64
}

type sidecar struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewDiskStore creates dir if needed and stores uploads of at most maxSize
// bytes in it. A maxSize of 0 disables the limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskStore) path(id, ext string) string {
	return filepath.Join(s.dir, id+ext)
}

// Save writes r to a new upload. The blob only becomes claimable once it is
// complete and described.
func (s *DiskStore) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	id := uuid.NewString()
	part := s.path(id, partialExt)
	written, err := s.writeBlob(part, r)
	if err != nil {
		os.Remove(part)
		return "", err
	}

	meta, err := json.Marshal(sidecar{Filename: filename, ContentType: contentType, Size: written})
	if err == nil {
		err = os.WriteFile(s.path(id, sidecarExt), meta, 0o644)
	}
	if err == nil {
		err = os.Rename(part, s.path(id, ""))
	}
	if err != nil {
		os.Remove(part)
		os.Remove(s.path(id, sidecarExt))
		return "", err
	}
	return id, nil
}

// writeBlob copies r to a fresh file at path, enforcing the size limit on
// the bytes actually read rather than the declared size.
func (s *DiskStore) writeBlob(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	if s.maxSize > 0 {
		r = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if s.maxSize > 0 && n > s.maxSize {
		return 0, ErrTooLarge
	}
	return n, nil
}

// Claim hands the upload to the caller exactly once. The blob is deleted
// when the returned File is closed.
func (s *DiskStore) Claim(ctx context.Context, tempID string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(tempID); err != nil {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(s.path(tempID, sidecarExt))
	if err != nil {
		return nil, ErrNotFound
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	claimed := s.path(tempID, claimedExt)
	if err := os.Rename(s.path(tempID, ""), claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	os.Remove(s.path(tempID, sidecarExt))

	f, err := os.Open(claimed)
	if err != nil {
		os.Remove(claimed)
		return nil, err
	}
	return &File{
		ID:          tempID,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Path:        claimed,
		Reader:      removeOnClose{f},
	}, nil
}

// Cleanup removes uploads older than maxAge along with abandoned partial
// writes and claimed blobs. An upload's age is that of its sidecar when it
// has one.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)

	type group struct {
		names   []string
		age     time.Time
		sidecar bool
	}
	groups := make(map[string]*group)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name := e.Name()
		id := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(name, sidecarExt), partialExt), claimedExt)
		g, ok := groups[id]
		if !ok {
			g = &group{}
			groups[id] = g
		}
		g.names = append(g.names, name)
		switch mod := info.ModTime(); {
		case strings.HasSuffix(name, sidecarExt):
			g.age, g.sidecar = mod, true
		case !g.sidecar && mod.After(g.age):
			g.age = mod
		}
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !g.age.Before(cutoff) {
			continue
		}
		for _, name := range g.names {
			os.Remove(filepath.Join(s.dir, name))
		}
	}
	return nil
}

// removeOnClose deletes the claimed blob once the reader is done with it.
type removeOnClose struct {
	*os.File
}

func (r removeOnClose) Close() error {
	err := r.File.Close()
	if rerr := os.Remove(r.Name()); err == nil && !errors.Is(rerr, fs.ErrNotExist) {
		err = rerr
	}
	return err
}
