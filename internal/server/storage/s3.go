package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
)

// Package-level seams over the AWS SDK so tests can swap in fakes without
// a network-backed S3 endpoint.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3 is the object-storage-backed Provider. Object key is
// {owner_id}/{file_id}; multipart is delegated end-to-end to the
// provider's own native multipart API.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds an S3 provider from static credentials and a base endpoint
// (MinIO or any S3-compatible store).
func NewS3(ctx context.Context, region, accessKey, secretKey, bucket, baseEndpoint string) (*S3, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(baseEndpoint)
		o.UsePathStyle = true
	})

	return &S3{client: client, bucket: bucket}, nil
}

func (s *S3) key(ownerID, fileID string) string {
	return ownerID + "/" + fileID
}

func (s *S3) Save(ctx context.Context, fileID, ownerID string, r io.Reader, maxSize int64) (int64, error) {
	counted := NewByteCountingBody(r, maxSize)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ownerID, fileID)),
		Body:   counted,
	})
	if errors.Is(err, common.ErrOversizeStream) || errors.Is(counted.err(), common.ErrOversizeStream) {
		return 0, common.ErrOversizeStream
	}
	if err != nil {
		return 0, classifyS3Error(err)
	}

	return counted.BytesReceived(), nil
}

func (s *S3) GetResponse(ctx context.Context, fileID, ownerID string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ownerID, fileID)),
	})
	if err != nil {
		return nil, 0, classifyS3Error(err)
	}
	length := int64(0)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return out.Body, length, nil
}

func (s *S3) Delete(ctx context.Context, fileID, ownerID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ownerID, fileID)),
	})
	if err != nil {
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, fileID, ownerID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ownerID, fileID)),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(classifyS3Error(err), common.ErrNotFound) {
		return false, nil
	}
	return false, classifyS3Error(err)
}

func (s *S3) InitiateMultipart(ctx context.Context, fileID, ownerID string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ownerID, fileID)),
	})
	if err != nil {
		return "", classifyS3Error(err)
	}
	return aws.ToString(out.UploadId), nil
}

func (s *S3) UploadPart(ctx context.Context, fileID, ownerID, uploadID string, partNumber int, r io.Reader, maxSize int64) (Part, error) {
	counted := NewByteCountingBody(r, maxSize)

	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(ownerID, fileID)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       counted,
	})
	if errors.Is(counted.err(), common.ErrOversizeStream) {
		return Part{}, common.ErrOversizeStream
	}
	if err != nil {
		return Part{}, classifyS3Error(err)
	}

	return Part{PartNumber: partNumber, ETag: strings.Trim(aws.ToString(out.ETag), `"`), Size: counted.BytesReceived()}, nil
}

func (s *S3) CompleteMultipart(ctx context.Context, fileID, ownerID, uploadID string, parts []Part) error {
	sorted := append([]Part(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(`"` + p.ETag + `"`),
		})
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(ownerID, fileID)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		if isInvalidPartError(err) {
			return common.ErrBadChunkSet
		}
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3) AbortMultipart(ctx context.Context, fileID, ownerID, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(ownerID, fileID)),
		UploadId: aws.String(uploadID),
	})
	if err != nil && !isNoSuchUploadError(err) {
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3) DeleteUserData(ctx context.Context, ownerID string) error {
	prefix := ownerID + "/"
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return classifyS3Error(err)
		}

		for _, obj := range out.Contents {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				return classifyS3Error(err)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		continuationToken = out.NextContinuationToken
	}
}

func (s *S3) GetUserStorageSize(ctx context.Context, ownerID string) (int64, error) {
	prefix := ownerID + "/"
	var continuationToken *string
	var total int64

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return 0, classifyS3Error(err)
		}

		for _, obj := range out.Contents {
			if obj.Size != nil {
				total += *obj.Size
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return total, nil
		}
		continuationToken = out.NextContinuationToken
	}
}

func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == 404:
			return fmt.Errorf("%w: %v", common.ErrNotFound, err)
		case respErr.HTTPStatusCode() >= 500:
			return fmt.Errorf("%w: %v", common.ErrProviderTransient, err)
		default:
			return fmt.Errorf("%w: %v", common.ErrProviderFatal, err)
		}
	}

	return fmt.Errorf("%w: %v", common.ErrProviderTransient, err)
}

func isInvalidPartError(err error) bool {
	return strings.Contains(err.Error(), "InvalidPart")
}

func isNoSuchUploadError(err error) bool {
	return strings.Contains(err.Error(), "NoSuchUpload")
}
