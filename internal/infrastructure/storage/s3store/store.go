package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
)

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store keeps uploaded files in an S3 bucket under an optional key prefix.
type Store struct {
	client    objectAPI
	presigner presignAPI
	bucket    string
	prefix    string
	executor  *resilience.Executor
}

func New(client *s3.Client, bucket, prefix string, executor *resilience.Executor) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		executor:  executor,
	}, nil
}

func (s *Store) Put(ctx context.Context, objectPath string, body []byte, contentType string) error {
	key := s.key(objectPath)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	err := s.executor.Execute(ctx, "s3.put_object", func(ctx context.Context) error {
		input.Body = bytes.NewReader(body)
		if _, err := s.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("put object %s: %w", key, err)
		}
		return nil
	}, classifyS3Error)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, objectPath string) error {
	key := s.key(objectPath)
	err := s.executor.Execute(ctx, "s3.delete_object", func(ctx context.Context) error {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
		return nil
	}, classifyS3Error)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectPath)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

func (s *Store) key(objectPath string) string {
	clean := strings.TrimLeft(path.Clean("/"+objectPath), "/")
	if s.prefix == "" {
		return clean
	}
	return s.prefix + "/" + clean
}

func classifyS3Error(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsTransient(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if classifyS3Error(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "s3 put object", err)
	}
	return err
}
