package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner creates time-limited GET URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an S3 client for NewS3Client.
type S3Options struct {
	Region          string
	Endpoint        string // empty for AWS; set for MinIO and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client from static credentials.
func NewS3Client(o S3Options) *s3.Client {
	opts := s3.Options{
		Region:       o.Region,
		UsePathStyle: o.UsePathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     o.AccessKeyID,
				SecretAccessKey: o.SecretAccessKey,
				Source:          "mohallaa-config",
			}, nil
		})),
	}
	if o.Endpoint != "" {
		opts.BaseEndpoint = aws.String(o.Endpoint)
	}
	return s3.New(opts)
}

// S3Store stores uploads in S3 or an S3-compatible object store.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	maxSize   int64
	urlExpiry time.Duration
	now       func() time.Time
}

// NewS3Store creates an S3 upload store.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: Key prefix for uploads (e.g., "uploads/temp/")
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewS3Store(client *s3.Client, bucket, prefix string, maxSize int64) *S3Store {
	s := NewS3StoreWithAPI(client, bucket, prefix, maxSize)
	s.presigner = s3.NewPresignClient(client)
	return s
}

// NewS3StoreWithAPI creates a store over any S3API implementation. Claimed
// files carry no URL unless WithPresigner is used.
func NewS3StoreWithAPI(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		maxSize:   maxSize,
		urlExpiry: 24 * time.Hour,
		now:       time.Now,
	}
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// WithPresigner sets the presigner used for claimed file URLs.
func (s *S3Store) WithPresigner(p Presigner) *S3Store {
	s.presigner = p
	return s
}

// Save uploads a file to S3 and returns a temp ID.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	tempID := generateTempID()
	key := s.prefix + tempID

	// Buffered so that the size limit holds even when the declared size lies.
	var buf bytes.Buffer
	if s.maxSize > 0 {
		n, err := io.Copy(&buf, io.LimitReader(r, s.maxSize+1))
		if err != nil {
			return "", err
		}
		if n > s.maxSize {
			return "", ErrTooLarge
		}
	} else if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"original-filename": filename,
			"upload-time":       s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return tempID, nil
}

// Claim retrieves a temp file from S3 and schedules its deletion.
func (s *S3Store) Claim(ctx context.Context, tempID string) (*File, error) {
	key := s.prefix + tempID

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}

	filename := tempID
	if fn, ok := head.Metadata["original-filename"]; ok {
		filename = fn
	}
	contentType := "application/octet-stream"
	if head.ContentType != nil {
		contentType = *head.ContentType
	}
	size := int64(0)
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	url := ""
	if s.presigner != nil {
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.urlExpiry))
		if err == nil {
			url = req.URL
		}
	}

	return &File{
		ID:          tempID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URL:         url,
		Reader:      &deleteOnCloseObject{ReadCloser: obj.Body, store: s, key: key},
	}, nil
}

// Cleanup removes temp objects older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := s.now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) && obj.Key != nil {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	for _, key := range toDelete {
		if err := s.delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// deleteOnCloseObject removes the claimed object once its body is closed.
type deleteOnCloseObject struct {
	io.ReadCloser
	store *S3Store
	key   string
}

func (o *deleteOnCloseObject) Close() error {
	err := o.ReadCloser.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if derr := o.store.delete(ctx, o.key); err == nil {
		err = derr
	}
	return err
}
