package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/metrics"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// S3API is the part of the S3 client the fetcher uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds the S3 client settings. Endpoint is set for S3-compatible
// stores such as MinIO.
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Client builds an S3 client from the default credentials chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewHTTPClient returns the resty client used for http(s) sources.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
}

// Fetcher opens source documents from local paths, s3://bucket/key and
// http(s) URLs.
type Fetcher struct {
	s3     S3API
	http   *resty.Client
	logger ectologger.Logger
}

// NewFetcher builds a fetcher. A nil s3 client disables s3:// locations and
// a nil http client disables http(s) ones.
func NewFetcher(s3Client S3API, httpClient *resty.Client, logger ectologger.Logger) *Fetcher {
	return &Fetcher{s3: s3Client, http: httpClient, logger: logger}
}

// Open returns the document at location. The caller closes it.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	ctx, span := tracing.StartSpan(ctx, "sources.Fetcher.Open")
	defer span.End()

	scheme := "file"
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}

	start := time.Now()
	body, err := f.open(ctx, scheme, location)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordSourceFetch(scheme, status, time.Since(start).Seconds())

	if err != nil {
		f.logger.WithContext(ctx).WithError(err).WithField("location", location).Error("Failed to fetch source")
		return nil, err
	}
	f.logger.WithContext(ctx).WithField("location", location).Debug("Fetched source")
	return body, nil
}

func (f *Fetcher) open(ctx context.Context, scheme, location string) (io.ReadCloser, error) {
	switch scheme {
	case "file":
		path := strings.TrimPrefix(location, "file://")
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open source file: %w", err)
		}
		return file, nil

	case "s3":
		if f.s3 == nil {
			return nil, fmt.Errorf("s3 sources are not configured")
		}
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse s3 location: %w", err)
		}
		bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("s3 location %q needs a bucket and a key", location)
		}
		out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
		}
		return out.Body, nil

	case "http", "https":
		if f.http == nil {
			return nil, fmt.Errorf("http sources are not configured")
		}
		resp, err := f.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(location)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", location, err)
		}
		if resp.IsError() {
			resp.RawBody().Close()
			return nil, fmt.Errorf("download %s: status %d", location, resp.StatusCode())
		}
		return resp.RawBody(), nil
	}
	return nil, fmt.Errorf("unsupported source scheme %q", scheme)
}
