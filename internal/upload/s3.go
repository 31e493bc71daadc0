package upload

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

// S3Options locate the bucket used as upload destination.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Service maps folders onto key prefixes.
type s3Service struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Factory returns a Factory that loads the default AWS credential chain.
func NewS3Factory(opts S3Options) Factory {
	return func(ctx context.Context) (Service, error) {
		if strings.TrimSpace(opts.Bucket) == "" {
			return nil, models.Configuration("s3 bucket is not set")
		}
		var loadOpts []func(*awscfg.LoadOptions) error
		if opts.Region != "" {
			loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, models.Configuration("aws config: %v", err)
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
				o.UsePathStyle = true
			}
		})
		return newS3Service(client, opts.Bucket, opts.Prefix), nil
	}
}

func newS3Service(client s3API, bucket, prefix string) *s3Service {
	return &s3Service{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *s3Service) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	base := parentID
	if base == "" {
		base = s.prefix
	}
	key := path.Join(base, name)

	// zero-byte marker so empty folders show up in consoles
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key + "/"),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", key, err)
	}
	return key, nil
}

func (s *s3Service) Upload(ctx context.Context, localPath, folderID, name string) (string, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := path.Join(folderID, name)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		in.ContentType = aws.String(ct)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
