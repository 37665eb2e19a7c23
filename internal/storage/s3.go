// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

const (
	s3KeyPrefix    = "photos/"
	s3OwnerMetaKey = "owner"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps photos in an S3-compatible bucket and returns presigned GET
// URLs.
type S3Store struct {
	client   s3API
	presign  presignAPI
	bucket   string
	ttl      time.Duration
	maxBytes int64
}

// NewS3 builds a store from the default AWS credential chain.
func NewS3(ctx context.Context, cfg *config.StorageConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	logging.Info().
		Str("bucket", cfg.S3.Bucket).
		Str("region", awsCfg.Region).
		Str("endpoint", cfg.S3.Endpoint).
		Msg("Photo store using S3")
	return newS3WithClients(client, s3.NewPresignClient(client), cfg.S3.Bucket, cfg.URLTTL, cfg.MaxPhotoBytes), nil
}

func newS3WithClients(client s3API, presign presignAPI, bucket string, ttl time.Duration, maxBytes int64) *S3Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Store{client: client, presign: presign, bucket: bucket, ttl: ttl, maxBytes: maxBytes}
}

// Backend returns "s3".
func (s *S3Store) Backend() string { return BackendS3 }

func (s *S3Store) key(ref string) *string {
	return aws.String(s3KeyPrefix + ref)
}

// Put uploads the photo read from body.
func (s *S3Store) Put(ctx context.Context, owner string, body io.Reader) (ref string, err error) {
	defer func() { metrics.RecordPhotoUpload(BackendS3, err) }()

	data, contentType, err := readPhoto(body, s.maxBytes)
	if err != nil {
		return "", err
	}

	ref = uuid.NewString()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.key(ref),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{s3OwnerMetaKey: url.QueryEscape(owner)},
	})
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return ref, nil
}

// Get downloads the photo stored under ref.
func (s *S3Store) Get(ctx context.Context, ref string) (Photo, error) {
	if err := ValidateRef(ref); err != nil {
		return Photo{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: s.key(ref)})
	if err != nil {
		return Photo{}, classifyS3Error("get photo", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxBytes+1))
	if err != nil {
		return Photo{}, fmt.Errorf("read photo: %w", err)
	}
	p := Photo{Ref: ref, Owner: ownerFromMetadata(out.Metadata), ContentType: aws.ToString(out.ContentType), Data: data}
	if out.LastModified != nil {
		p.CreatedAt = *out.LastModified
	}
	return p, nil
}

// Owner reads the uploader from the object metadata.
func (s *S3Store) Owner(ctx context.Context, ref string) (string, error) {
	if err := ValidateRef(ref); err != nil {
		return "", err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: s.key(ref)})
	if err != nil {
		return "", classifyS3Error("head photo", err)
	}
	return ownerFromMetadata(out.Metadata), nil
}

// ownerFromMetadata undoes the escaping S3's ASCII-only metadata needs.
func ownerFromMetadata(meta map[string]string) string {
	owner, err := url.QueryUnescape(meta[s3OwnerMetaKey])
	if err != nil {
		return ""
	}
	return owner
}

// SignedURL presigns a GET for a stored photo.
func (s *S3Store) SignedURL(ctx context.Context, ref string) (string, error) {
	if err := ValidateRef(ref); err != nil {
		return "", err
	}
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: s.key(ref)}); err != nil {
		return "", classifyS3Error("head photo", err)
	}

	req, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: s.key(ref)},
		s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign photo: %w", err)
	}
	return req.URL, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *S3Store) Close() error { return nil }

func classifyS3Error(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrPhotoNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
