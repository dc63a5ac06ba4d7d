package account

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	goerrors "github.com/goliatone/go-errors"
)

// S3Assets stores binary assets in an S3 (or S3-compatible, e.g. minio)
// bucket.
type S3Assets struct {
	client *s3.Client
	bucket string
}

var _ AssetStore = (*S3Assets)(nil)

// NewS3Assets builds a store from asset settings. BaseEndpoint and
// path-style addressing support minio-style deployments.
func NewS3Assets(ctx context.Context, settings AssetSettings) (*S3Assets, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
	}

	if settings.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to load S3 configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(settings.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Assets{
		client: client,
		bucket: settings.Bucket,
	}, nil
}

func (a *S3Assets) Save(ctx context.Context, prefix, filename string, content io.Reader) (string, error) {
	key := assetKey(prefix, filename)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to store asset object").
			WithMetadata(map[string]any{"bucket": a.bucket, "key": key})
	}

	return key, nil
}

// Remove deletes a stored object. S3 reports success for keys that do not
// exist, which matches the tolerate-absence contract.
func (a *S3Assets) Remove(ctx context.Context, assetPath string) error {
	if assetPath == "" {
		return nil
	}

	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(assetPath),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to remove asset object").
			WithMetadata(map[string]any{"bucket": a.bucket, "key": assetPath})
	}

	return nil
}
