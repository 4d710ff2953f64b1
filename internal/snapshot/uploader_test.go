package snapshot

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/hyperengineering/sitecms/internal/config"
)

func TestNoopUploader(t *testing.T) {
	u := &NoopUploader{}
	if err := u.Upload(context.Background(), CurrentKey, "/some/path"); err != nil {
		t.Errorf("NoopUploader.Upload() should not error, got %v", err)
	}
	if _, _, err := u.PresignedURL(context.Background(), CurrentKey); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NoopUploader.PresignedURL() should return ErrNotConfigured, got %v", err)
	}
}

func TestNewUploader_EmptyBucket_ReturnsNoopUploader(t *testing.T) {
	u, err := NewUploader(config.SnapshotStorageConfig{})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	if _, ok := u.(*NoopUploader); !ok {
		t.Errorf("expected *NoopUploader, got %T", u)
	}
}

func TestNewUploader_WithBucket_ReturnsS3Uploader(t *testing.T) {
	u, err := NewUploader(config.SnapshotStorageConfig{
		Bucket:    "site-snapshots",
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		URLExpiry: config.Duration(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}

	s3u, ok := u.(*S3Uploader)
	if !ok {
		t.Fatalf("expected *S3Uploader, got %T", u)
	}
	if s3u.bucket != "site-snapshots" {
		t.Errorf("bucket = %q, want %q", s3u.bucket, "site-snapshots")
	}
}

type mockS3Client struct {
	uploads     []string
	uploadErr   error
	presignURL  *url.URL
	presignErr  error
	lastBucket  string
	lastPath    string
	contentType string
}

func (m *mockS3Client) FPutObject(ctx context.Context, bucket, objectName, filePath string, contentType string) error {
	m.uploads = append(m.uploads, objectName)
	m.lastBucket = bucket
	m.lastPath = filePath
	m.contentType = contentType
	return m.uploadErr
}

func (m *mockS3Client) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	if m.presignErr != nil {
		return nil, m.presignErr
	}
	if m.presignURL != nil {
		return m.presignURL, nil
	}
	return url.Parse("https://s3.example.com/" + bucket + "/" + objectName + "?presigned=true")
}

func TestS3Uploader_Upload(t *testing.T) {
	mock := &mockS3Client{}
	u := &S3Uploader{client: mock, bucket: "b", urlExpiry: time.Minute}

	if err := u.Upload(context.Background(), CurrentKey, "/tmp/site_config.json"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(mock.uploads) != 1 || mock.uploads[0] != CurrentKey {
		t.Errorf("uploads = %v", mock.uploads)
	}
	if mock.contentType != "application/json" {
		t.Errorf("contentType = %q", mock.contentType)
	}

	mock.uploadErr = errors.New("network timeout")
	if err := u.Upload(context.Background(), CurrentKey, "/x"); !errors.Is(err, mock.uploadErr) {
		t.Errorf("expected wrapped network timeout error, got %v", err)
	}
}

func TestS3Uploader_PresignedURL(t *testing.T) {
	expectedURL, _ := url.Parse("https://s3.example.com/b/site_config/current.json?token=abc")
	u := &S3Uploader{client: &mockS3Client{presignURL: expectedURL}, bucket: "b", urlExpiry: 15 * time.Minute}

	got, expiry, err := u.PresignedURL(context.Background(), CurrentKey)
	if err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}
	if got != expectedURL.String() {
		t.Errorf("url = %q, want %q", got, expectedURL.String())
	}
	want := time.Now().Add(15 * time.Minute)
	if expiry.Before(want.Add(-time.Second)) || expiry.After(want.Add(time.Second)) {
		t.Errorf("expiry = %v, want approximately %v", expiry, want)
	}

	u.client = &mockS3Client{presignErr: errors.New("access denied")}
	if _, _, err := u.PresignedURL(context.Background(), CurrentKey); err == nil {
		t.Fatal("PresignedURL() expected error, got nil")
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantHost string
		wantSSL  bool
	}{
		{"bare host", "s3.example.com", "s3.example.com", true},
		{"bare host:port", "minio:9000", "minio:9000", true},
		{"https URL", "https://s3.example.com", "s3.example.com", true},
		{"http URL", "http://minio:9000", "minio:9000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ssl := true
			got := stripScheme(tt.endpoint, &ssl)
			if got != tt.wantHost {
				t.Errorf("stripScheme(%q) host = %q, want %q", tt.endpoint, got, tt.wantHost)
			}
			if ssl != tt.wantSSL {
				t.Errorf("stripScheme(%q) ssl = %v, want %v", tt.endpoint, ssl, tt.wantSSL)
			}
		})
	}
}

func TestHistoryKey(t *testing.T) {
	if got := HistoryKey("01J0000000000000000000000"); got != "site_config/history/01J0000000000000000000000.json" {
		t.Errorf("HistoryKey() = %q", got)
	}
}
