package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mixfm/config"
	"mixfm/logger"
)

// ArtworkStore mirrors cover art into MinIO and serves it back. Objects
// live under covers/ keyed by the provider-side track id, so re-mirroring
// the same track overwrites in place.
type ArtworkStore struct {
	client *minio.Client
	bucket string
	http   *http.Client
}

// NewArtworkStore connects to MinIO and ensures the bucket exists.
func NewArtworkStore(cfg *config.Config) (*ArtworkStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created artwork bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &ArtworkStore{
		client: client,
		bucket: cfg.MinioBucket,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func coverObjectName(sourceID string) string {
	return path.Join("covers", sourceID)
}

// MirrorCover downloads the cover from the provider URL and stores it,
// returning the object path recorded on the track.
func (s *ArtworkStore) MirrorCover(ctx context.Context, sourceID, coverURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build cover request for %q: %w", sourceID, err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch cover for %q: %w", sourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover fetch for %q returned status %d", sourceID, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "application/octet-stream"
	}

	objectName := coverObjectName(sourceID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store cover %q: %w", objectName, err)
	}
	return objectName, nil
}

// PutCover stores cover bytes directly, for uploads that do not come from
// a provider URL.
func (s *ArtworkStore) PutCover(ctx context.Context, sourceID, contentType string, size int64, body io.Reader) (string, error) {
	objectName := coverObjectName(sourceID)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, body, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store cover %q: %w", objectName, err)
	}
	return objectName, nil
}

// GetCover opens the stored cover for streaming to a client. The caller
// closes the returned object.
func (s *ArtworkStore) GetCover(ctx context.Context, objectName string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cover %q: %w", objectName, err)
	}
	// GetObject is lazy; a missing object only surfaces on first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, fmt.Errorf("failed to stat cover %q: %w", objectName, err)
	}
	return object, nil
}
