package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestValidate(t *testing.T) {
	cfg := upload.DefaultConfig()
	cfg.MaxFileSize = 100

	if err := upload.Validate(cfg, "a.png", "image/png", 50); err != nil {
		t.Errorf("Validate(small png) = %v", err)
	}

	err := upload.Validate(cfg, "a.png", "image/png", 101)
	if !errors.Is(err, upload.ErrTooLarge) {
		t.Errorf("Validate(large) = %v, want ErrTooLarge", err)
	}
	if !apperrors.IsCategory(err, apperrors.CategoryValidation) {
		t.Errorf("Validate(large) category = %q", apperrors.CategoryOf(err))
	}

	err = upload.Validate(cfg, "a.exe", "application/x-msdownload", 10)
	if !errors.Is(err, upload.ErrTypeDenied) {
		t.Errorf("Validate(exe) = %v, want ErrTypeDenied", err)
	}
}

func TestConfigAllowsWildcard(t *testing.T) {
	cfg := &upload.Config{AllowedTypes: []string{"image/*"}}
	if !cfg.Allows("image/webp") || !cfg.Allows("IMAGE/PNG; charset=binary") {
		t.Error("wildcard did not match image types")
	}
	if cfg.Allows("text/plain") {
		t.Error("wildcard matched text/plain")
	}
	if !(&upload.Config{}).Allows("anything/else") {
		t.Error("empty AllowedTypes must allow all")
	}
}

func TestSniff(t *testing.T) {
	ct, r, err := upload.Sniff(bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	all, _ := io.ReadAll(r)
	if !bytes.Equal(all, pngHeader) {
		t.Error("Sniff lost bytes")
	}
}

func TestDiskStoreSaveAndClaim(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	content := []byte("listing photo")
	tempID, err := store.Save(ctx, "photo.png", "image/png", int64(len(content)), bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := store.Claim(ctx, tempID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	got, _ := io.ReadAll(f.Reader)
	if !bytes.Equal(got, content) || f.Filename != "photo.png" || f.ContentType != "image/png" {
		t.Errorf("claimed file = %+v content=%q", f, got)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, tempID)); !os.IsNotExist(err) {
		t.Error("temp file not removed after close")
	}
	if _, err := store.Claim(ctx, tempID); !errors.Is(err, upload.ErrNotFound) {
		t.Errorf("second Claim = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreRejectsOversizedStream(t *testing.T) {
	store, err := upload.NewDiskStore(t.TempDir(), 5)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	// Declared size is 4, the reader yields 6 bytes.
	_, err = store.Save(context.Background(), "x.txt", "text/plain", 4, bytes.NewReader([]byte("123456")))
	if err != upload.ErrTooLarge {
		t.Fatalf("err = %v, want %v", err, upload.ErrTooLarge)
	}
}

func TestDiskStoreClaimAfterRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store1, _ := upload.NewDiskStore(dir, 0)
	tempID, err := store1.Save(ctx, "persist.txt", "text/plain", 10, bytes.NewReader([]byte("persist me")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	store2, _ := upload.NewDiskStore(dir, 0)
	f, err := store2.Claim(ctx, tempID)
	if err != nil {
		t.Fatalf("Claim after restart: %v", err)
	}
	defer f.Close()
	if f.Filename != "persist.txt" {
		t.Errorf("Filename = %q", f.Filename)
	}
}

func TestDiskStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, _ := upload.NewDiskStore(dir, 0)
	oldID, _ := store.Save(ctx, "old.txt", "text/plain", 3, bytes.NewReader([]byte("old")))
	freshID, _ := store.Save(ctx, "new.txt", "text/plain", 3, bytes.NewReader([]byte("new")))

	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(filepath.Join(dir, oldID+".json"), past, past)
	// An abandoned partial write from a crashed process.
	orphan := filepath.Join(dir, "4b1e0c38-0000-4000-8000-000000000000.part")
	os.WriteFile(orphan, []byte("half"), 0o644)
	os.Chtimes(orphan, past, past)

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	for _, name := range []string{oldID, oldID + ".json", filepath.Base(orphan)} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s survived cleanup", name)
		}
	}
	if _, err := store.Claim(ctx, freshID); err != nil {
		t.Errorf("fresh upload removed: %v", err)
	}
}

func TestDiskStoreClaimRejectsForeignIDs(t *testing.T) {
	dir := t.TempDir()
	store, _ := upload.NewDiskStore(dir, 0)
	os.WriteFile(filepath.Join(dir, "secret"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "secret.json"), []byte(`{"filename":"secret"}`), 0o644)

	for _, id := range []string{"secret", "../secret", ""} {
		if _, err := store.Claim(context.Background(), id); !errors.Is(err, upload.ErrNotFound) {
			t.Errorf("Claim(%q) = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDiskStoreClaimIsExclusive(t *testing.T) {
	store, _ := upload.NewDiskStore(t.TempDir(), 0)
	ctx := context.Background()
	tempID, err := store.Save(ctx, "a.txt", "text/plain", 1, bytes.NewReader([]byte("a")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	var won atomic.Int32
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f, err := store.Claim(ctx, tempID); err == nil {
				won.Add(1)
				f.Close()
			}
		}()
	}
	wg.Wait()
	if n := won.Load(); n != 1 {
		t.Errorf("%d claims succeeded, want 1", n)
	}
}
