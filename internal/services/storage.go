package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"alfredoptarigan/cv-eval-pipeline/internal/config"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// StorageService keeps the raw uploaded files. Keys are driver-relative.
type StorageService interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ObjectReader reads from an arbitrary bucket, used for s3:// sources.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// UploadKey builds a unique key for a task's file, keeping its extension.
func UploadKey(taskID uuid.UUID, role, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s_%s%s", taskID, role, uuid.New().String(), ext)
}

func NewStorageService(ctx context.Context, cfg config.StorageConfig) (StorageService, error) {
	switch cfg.Driver {
	case StorageDriverLocal, "":
		return NewLocalStorage(cfg.UploadPath)
	case StorageDriverS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, &ConfigurationError{Param: "storage driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
}

type localStorage struct {
	uploadPath string
}

func NewLocalStorage(uploadPath string) (StorageService, error) {
	if err := os.MkdirAll(uploadPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &localStorage{uploadPath: uploadPath}, nil
}

func (s *localStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.uploadPath, clean), nil
}

func (s *localStorage) Save(_ context.Context, key string, data []byte, _ string) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

func (s *localStorage) Open(_ context.Context, key string) ([]byte, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *localStorage) Delete(_ context.Context, key string) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

type s3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage works against AWS or any S3-compatible endpoint such as R2 or MinIO.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig) (StorageService, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Storage{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *s3Storage) Save(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *s3Storage) Open(ctx context.Context, key string) ([]byte, error) {
	return s.ReadObject(ctx, s.bucket, key)
}

// ReadObject implements ObjectReader.
func (s *s3Storage) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
