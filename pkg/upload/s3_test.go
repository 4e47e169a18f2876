package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mohallaa/mohallaa/pkg/upload"
)

type fakeObject struct {
	body        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]fakeObject)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), meta: in.Metadata, modified: time.Now()}
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	o, ok := f.get(aws.ToString(in.Key))
	if !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(o.contentType),
		ContentLength: aws.Int64(int64(len(o.body))),
		Metadata:      o.meta,
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	o, ok := f.get(aws.ToString(in.Key))
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k, o := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: aws.Time(o.modified)})
	}
	return out, nil
}

func TestS3StoreSaveClaim(t *testing.T) {
	api := newFakeS3()
	store := upload.NewS3StoreWithAPI(api, "media", "uploads/", 1024)
	ctx := context.Background()

	tempID, err := store.Save(ctx, "bell.png", "image/png", int64(len(pngHeader)), bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := api.get("uploads/" + tempID); !ok {
		t.Fatal("object not written under prefix")
	}

	f, err := store.Claim(ctx, tempID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	got, _ := io.ReadAll(f.Reader)
	if !bytes.Equal(got, pngHeader) || f.Filename != "bell.png" || f.ContentType != "image/png" || f.Size != int64(len(pngHeader)) {
		t.Errorf("claimed = %+v", f)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := api.get("uploads/" + tempID); ok {
		t.Error("claimed object not deleted")
	}
	if _, err := store.Claim(ctx, tempID); !errors.Is(err, upload.ErrNotFound) {
		t.Errorf("second Claim = %v", err)
	}
}

func TestS3StoreTooLarge(t *testing.T) {
	store := upload.NewS3StoreWithAPI(newFakeS3(), "media", "", 4)
	_, err := store.Save(context.Background(), "x", "text/plain", 2, bytes.NewReader([]byte("too long")))
	if !errors.Is(err, upload.ErrTooLarge) {
		t.Fatalf("err = %v", err)
	}
}

func TestS3StoreCleanup(t *testing.T) {
	api := newFakeS3()
	store := upload.NewS3StoreWithAPI(api, "media", "", 0)
	ctx := context.Background()
	id, _ := store.Save(ctx, "a", "text/plain", 1, bytes.NewReader([]byte("a")))

	api.mu.Lock()
	o := api.objects[id]
	o.modified = time.Now().Add(-2 * time.Hour)
	api.objects[id] = o
	api.mu.Unlock()

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, ok := api.get(id); ok {
		t.Error("expired object survived cleanup")
	}
}

func TestNewS3Client(t *testing.T) {
	c := upload.NewS3Client(upload.S3Options{
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	if c == nil {
		t.Fatal("NewS3Client returned nil")
	}
	if got := c.Options().Region; got != "us-east-1" {
		t.Errorf("Region = %q", got)
	}
}
