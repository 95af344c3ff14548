package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MediaStore persists downloaded WhatsApp media into the object store and
// hands back a stable public URL, so message rows never reference the
// gateway's short-lived media links.
type MediaStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

func NewMediaStore(cfg *config.ObjectStoreConfig, logger *zap.Logger) (*MediaStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &MediaStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        logger,
	}, nil
}

// EnsureBucket creates the media bucket if missing. Called once at startup.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check media bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create media bucket: %w", err)
	}
	return nil
}

// Store writes one media object under tenant_{id}/{uuid}{ext} and returns
// its public URL.
func (s *MediaStore) Store(ctx context.Context, tenantID string, data []byte, contentType, extension string) (string, error) {
	objectName := fmt.Sprintf("tenant_%s/%s%s", tenantID, uuid.NewString(), extension)

	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store media object: %w", err)
	}

	s.logger.Debug("media stored",
		zap.String("tenant_id", tenantID),
		zap.String("object", objectName),
		zap.Int("bytes", len(data)))

	return s.publicBaseURL + "/" + objectName, nil
}

// extensionForMime maps the media mime types the gateway delivers to file
// extensions; unknown types fall back to .bin.
func extensionForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
