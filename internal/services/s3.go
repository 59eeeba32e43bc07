package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// S3Storage puts pictures into an S3-compatible bucket (MinIO in dev) and
// returns "<publicURL>/<bucket>/<name>".
type S3Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// normaliseEndpoint turns S3_ENDPOINT into the host:port minio.New wants.
// A bare host:port is plain HTTP; a URL picks TLS from its scheme.
func normaliseEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		return raw, false, nil
	}

	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return "", false, errors.Wrap(err, "parse endpoint")
	case u.Host == "":
		return "", false, errors.New("endpoint has no host")
	case strings.Trim(u.Path, "/") != "":
		return "", false, errors.New("endpoint must not contain a path")
	}
	return u.Host, u.Scheme == "https", nil
}

func NewS3Storage(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket, publicURL string) (*S3Storage, error) {
	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, errors.New("s3 configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse s3 endpoint")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "check s3 bucket")
	}
	if !exists {
		return nil, errors.Errorf("s3 bucket does not exist: %s", bucket)
	}

	if publicURL == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		publicURL = scheme + "://" + endpoint
	}

	return &S3Storage{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

func (s *S3Storage) Save(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	file, contentType, ext, err := openImage(fileHeader)
	if err != nil {
		return "", err
	}
	defer file.Close()

	name := uuid.New().String() + ext
	_, err = s.client.PutObject(ctx, s.bucket, name, file, fileHeader.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.Wrap(err, "put object")
	}

	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, name), nil
}
