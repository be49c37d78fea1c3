package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Publisher makes an artifact available remotely and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, key string, a Artifact) (string, error)
}

// GCSPublisher writes objects to a bucket once; an existing object counts as published.
type GCSPublisher struct {
	client *gcs.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func NewGCSPublisher(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*GCSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket, prefix: normalizePrefix(prefix), logger: logger}, nil
}

func (p *GCSPublisher) Close() error { return p.client.Close() }

func (p *GCSPublisher) Publish(ctx context.Context, key string, a Artifact) (string, error) {
	object := p.prefix + key
	w := p.client.Bucket(p.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = a.ContentType
	if _, err := io.Copy(w, bytes.NewReader(a.Data)); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			return p.objectURL(object), nil
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			p.logger.Info("storage.publish.exists", "object", object)
			return p.objectURL(object), nil
		}
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return p.objectURL(object), nil
}

func (p *GCSPublisher) objectURL(object string) string {
	return ObjectURL(p.bucket, object)
}

// ObjectURL is the public URL of object in bucket.
func ObjectURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + object
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// permanentPublishError reports client errors that retrying cannot fix.
func permanentPublishError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests && gerr.Code != http.StatusRequestTimeout
	}
	return false
}
