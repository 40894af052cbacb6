package video

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates a bucket on any S3-compatible endpoint.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes object keys to form the public URL.
	PublicBaseURL string
	PathStyle     bool
}

// NewS3Client builds an S3 client from static credentials.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("video: load s3 config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// S3Uploader puts objects straight into a bucket.
type S3Uploader struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// NewS3Uploader creates an uploader for bucket.
func NewS3Uploader(client *s3.Client, bucket, publicBase string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("video: s3 bucket is required")
	}
	return &S3Uploader{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, obj Object) (Uploaded, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(obj.Name),
		Body:        obj.Body,
		ContentType: aws.String(obj.ContentType),
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return Uploaded{}, fmt.Errorf("video: put %s/%s: %w", u.bucket, obj.Name, err)
	}
	return Uploaded{PublicURL: u.publicBase + "/" + obj.Name, ObjectName: obj.Name}, nil
}
