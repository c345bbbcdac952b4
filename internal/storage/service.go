package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Service handles Cloud Storage operations for screenshot files.
type Service struct {
	client     *storage.Client
	bucketName string
}

// NewService creates a new storage service
func NewService(ctx context.Context, bucketName string) (*Service, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Service{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// ScreenshotUploadResult contains the stored object reference plus a
// time-limited read URL for the parent app.
type ScreenshotUploadResult struct {
	ScreenshotID string `json:"screenshot_id"`
	URL          string `json:"url"`
	ObjectPath   string `json:"-"`
}

// UploadScreenshot stores a screen-time screenshot under the child's prefix
// and returns a signed read URL.
func (s *Service) UploadScreenshot(ctx context.Context, childID string, data io.Reader, filename string) (*ScreenshotUploadResult, error) {
	screenshotID := uuid.New().String()
	ext := fileExtension(filename)
	objectPath := fmt.Sprintf("screenshots/%s/%s%s", childID, screenshotID, ext)

	url, err := s.uploadObject(ctx, objectPath, data, contentTypeFor(ext))
	if err != nil {
		return nil, fmt.Errorf("failed to upload screenshot: %w", err)
	}

	return &ScreenshotUploadResult{
		ScreenshotID: screenshotID,
		URL:          url,
		ObjectPath:   objectPath,
	}, nil
}

// SignedReadURL generates a fresh signed URL for a previously stored object.
func (s *Service) SignedReadURL(objectPath string, expiration time.Duration) (string, error) {
	return s.generateSignedURL(objectPath, expiration)
}

// uploadObject uploads data to Cloud Storage and returns a signed URL
func (s *Service) uploadObject(ctx context.Context, objectPath string, data io.Reader, contentType string) (string, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(objectPath)

	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "private, max-age=3600"

	_, err := io.Copy(writer, data)
	if err != nil {
		return "", fmt.Errorf("failed to write to storage: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	signedURL, err := s.generateSignedURL(objectPath, 24*time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

// generateSignedURL creates a signed URL for an object
func (s *Service) generateSignedURL(objectPath string, expiration time.Duration) (string, error) {
	bucket := s.client.Bucket(s.bucketName)

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiration),
	}

	url, err := bucket.SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

func fileExtension(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i:]
		}
	}
	return ".jpg"
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Close closes the storage client
func (s *Service) Close() error {
	return s.client.Close()
}
