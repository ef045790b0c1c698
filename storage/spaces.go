// Package storage mirrors downloaded videos to S3-compatible object storage
// (DigitalOcean Spaces). The mirror is optional; nothing in the pipeline
// fails when it is absent or erroring.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"ytcourse/config"
)

// Uploader is the mirror surface the download service needs.
type Uploader interface {
	UploadVideo(ctx context.Context, localPath, key string) (publicURL string, err error)
}

type SpacesClient struct {
	client *s3.Client
	cfg    config.SpacesConfig
	log    zerolog.Logger
}

func NewSpacesClient(ctx context.Context, cfg config.SpacesConfig, log zerolog.Logger) (*SpacesClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading spaces credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://" + cfg.Endpoint)
		o.UsePathStyle = false
	})

	return &SpacesClient{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("service", "spaces").Logger(),
	}, nil
}

// UploadVideo streams the local file into the bucket under key and returns
// the public URL. The object is made world-readable; videos served from the
// mirror are already public on YouTube.
func (c *SpacesClient) UploadVideo(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	key = strings.TrimPrefix(key, "/")
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.%s/%s", c.cfg.Bucket, c.cfg.Endpoint, key)
	c.log.Info().Str("key", key).Str("url", url).Msg("video mirrored")
	return url, nil
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
