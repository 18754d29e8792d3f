// Package awsboot loads AWS configuration and the S3 clients used for s3://
// sources and archive publishing.
package awsboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/s3util"
)

// S3Options configures InitS3.
type S3Options struct {
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	Endpoint     string
	UsePathStyle bool
	Bucket       string
	Prefix       string
	Expiry       time.Duration
}

// InitAWS loads the default AWS config, optionally pinned to region.
func InitAWS(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// InitS3 creates an S3 client and presigner and wraps them in a Bucket.
func InitS3(ctx context.Context, o S3Options) (*s3util.Bucket, error) {
	cfg, err := InitAWS(ctx, o.Region)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if o.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.Endpoint)
		}
		opts.UsePathStyle = o.UsePathStyle
	})
	log.Info().
		Str("bucket", o.Bucket).
		Str("prefix", o.Prefix).
		Str("endpoint", o.Endpoint).
		Msg("S3 client initialized")
	return &s3util.Bucket{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Name:      o.Bucket,
		Prefix:    o.Prefix,
		Expiry:    o.Expiry,
	}, nil
}
