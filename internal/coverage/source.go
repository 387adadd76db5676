package coverage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source yields the raw coverage CSV produced by the ETL.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads the coverage CSV from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open coverage file: %w", err)
	}
	return f, nil
}

func (s FileSource) String() string { return s.Path }

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the coverage CSV from an S3 object.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string
}

func (s S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	return out.Body, nil
}

func (s S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// ParseSource builds a Source from a path or an s3://bucket/key URI. S3
// credentials and region come from the default AWS configuration chain.
func ParseSource(ctx context.Context, uri string) (Source, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		if uri == "" {
			return nil, fmt.Errorf("coverage: empty source")
		}
		return FileSource{Path: uri}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("coverage: invalid s3 uri %q (expected s3://bucket/key)", uri)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return S3Source{Client: s3.NewFromConfig(cfg), Bucket: bucket, Key: key}, nil
}
