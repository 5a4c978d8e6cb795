// Package s3publish uploads exported CSV files to an S3 bucket.
package s3publish

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/dustin/go-humanize"

	"taxietl/internal/export"
)

// Config names the upload target. Credentials come from the usual AWS
// environment (variables, shared config, instance role).
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint points at an S3-compatible service (MinIO, localstack);
	// path-style addressing is used when set.
	Endpoint string
}

// Publisher uploads files with their content hash as object metadata.
type Publisher struct {
	up     s3manageriface.UploaderAPI
	bucket string
	prefix string
}

// New builds a Publisher from an AWS session.
func New(cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3publish: bucket is required")
	}
	ac := &aws.Config{}
	if cfg.Region != "" {
		ac.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		ac.Endpoint = aws.String(cfg.Endpoint)
		ac.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(ac)
	if err != nil {
		return nil, fmt.Errorf("s3publish: session: %w", err)
	}
	return NewWithUploader(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

// NewWithUploader returns a Publisher over an existing uploader.
func NewWithUploader(up s3manageriface.UploaderAPI, bucket, prefix string) *Publisher {
	return &Publisher{up: up, bucket: bucket, prefix: prefix}
}

// Key returns the object key of f.
func (p *Publisher) Key(f export.File) string {
	return path.Join(p.prefix, f.View+".csv")
}

// Publish uploads files in order and returns their locations. It stops at
// the first failure.
func (p *Publisher) Publish(ctx context.Context, files []export.File) ([]string, error) {
	locations := make([]string, 0, len(files))
	for _, f := range files {
		loc, err := p.upload(ctx, f)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func (p *Publisher) upload(ctx context.Context, f export.File) (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("s3publish: %w", err)
	}
	defer fh.Close()

	key := p.Key(f)
	out, err := p.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        fh,
		ContentType: aws.String("text/csv"),
		Metadata: map[string]*string{
			"xxh3": aws.String(f.HashHex()),
			"rows": aws.String(strconv.FormatInt(f.Rows, 10)),
			"view": aws.String(f.View),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3publish: upload s3://%s/%s: %w", p.bucket, key, err)
	}
	log.Printf("s3publish: uploaded %s to %s (%s)", f.Path, out.Location, humanize.Bytes(uint64(f.Bytes)))
	return out.Location, nil
}
