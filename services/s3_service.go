package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Service signs upload and read URLs for profile photos.
type S3Service struct {
	Presigner objectPresigner
	Bucket    string
	TTL       time.Duration
}

func NewS3Service(cfg aws.Config, bucket string, ttl time.Duration) *S3Service {
	return &S3Service{
		Presigner: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		Bucket:    bucket,
		TTL:       ttl,
	}
}

// ReadURL generates a presigned URL for reading a file
func (s *S3Service) ReadURL(ctx context.Context, key string) (string, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}
	presigned, err := s.Presigner.PresignGetObject(ctx, params, s3.WithPresignExpires(s.TTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return presigned.URL, nil
}

// UploadURL generates a presigned URL for uploading a file
func (s *S3Service) UploadURL(ctx context.Context, key, contentType string) (string, error) {
	params := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	presigned, err := s.Presigner.PresignPutObject(ctx, params, s3.WithPresignExpires(s.TTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload %s: %w", key, err)
	}
	return presigned.URL, nil
}

var _ PhotoSigner = (*S3Service)(nil)
