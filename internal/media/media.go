// Package media imports images referenced by synced records into S3.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultMaxBytes caps the size of a single downloaded image.
const DefaultMaxBytes = 20 << 20

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FeaturedImageSetter is implemented by destinations that record a featured image.
type FeaturedImageSetter interface {
	SetFeaturedImage(ctx context.Context, localID int64, imageURL string) error
}

// Config holds S3 settings.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix" toml:"prefix"`
	Region string `mapstructure:"region" yaml:"region" toml:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" toml:"endpoint"`

	// PublicBaseURL is prepended to object keys to form image URLs.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url" toml:"public_base_url"`
}

// Option configures the Importer.
type Option func(*Importer)

// WithHTTPClient sets the client used to download images.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Importer) { i.httpClient = client }
}

// WithFeaturedImage sets the destination that receives the first imported image.
func WithFeaturedImage(setter FeaturedImageSetter) Option {
	return func(i *Importer) { i.featured = setter }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

// Importer downloads images and uploads them to a bucket.
type Importer struct {
	client     ObjectPutter
	httpClient *http.Client
	featured   FeaturedImageSetter
	logger     *log.Logger
	cfg        Config
	maxBytes   int64
}

// NewS3Importer builds an Importer backed by the default AWS credential chain.
func NewS3Importer(ctx context.Context, cfg Config, opts ...Option) (*Importer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return New(client, cfg, opts...), nil
}

// New creates an Importer using client for uploads.
func New(client ObjectPutter, cfg Config, opts ...Option) *Importer {
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix = cfg.Prefix + "/"
	}
	i := &Importer{
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = log.New(os.Stderr, "[media] ", log.LstdFlags)
	}
	return i
}

// ImportMedia uploads every absolute http(s) image in body under the
// record's key prefix. The first uploaded image becomes the featured image.
// Individual failures do not stop the remaining uploads.
func (i *Importer) ImportMedia(ctx context.Context, localID int64, body string) error {
	sources, err := ImageURLs(body)
	if err != nil {
		return err
	}

	var errs []error
	featuredSet := false
	for _, src := range sources {
		objectURL, err := i.importOne(ctx, localID, src)
		if err != nil {
			i.logger.Printf("Failed to import %s for record %d: %v", src, localID, err)
			errs = append(errs, err)
			continue
		}

		if !featuredSet && i.featured != nil {
			if err := i.featured.SetFeaturedImage(ctx, localID, objectURL); err != nil {
				errs = append(errs, fmt.Errorf("failed to set featured image: %w", err))
				continue
			}
			featuredSet = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d images failed: %w", len(errs), len(sources), errors.Join(errs...))
	}
	return nil
}

func (i *Importer) importOne(ctx context.Context, localID int64, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return "", fmt.Errorf("image exceeds %d bytes", i.maxBytes)
	}

	key := i.objectKey(localID, src)
	input := &s3.PutObjectInput{
		Bucket: aws.String(i.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := i.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	return i.objectURL(key), nil
}

// objectKey is <prefix><localID>/<hash>-<basename>, where hash is the first
// 8 hex digits of sha256(src), so same-named images from different paths in
// one record get distinct keys.
func (i *Importer) objectKey(localID int64, src string) string {
	name := "image"
	if u, err := url.Parse(src); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	sum := sha256.Sum256([]byte(src))
	return fmt.Sprintf("%s%d/%s-%s", i.cfg.Prefix, localID, hex.EncodeToString(sum[:4]), name)
}

func (i *Importer) objectURL(key string) string {
	if i.cfg.PublicBaseURL != "" {
		return strings.TrimRight(i.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", i.cfg.Bucket, key)
}

// ImageURLs returns the distinct absolute http(s) img sources in body, in
// document order.
func ImageURLs(body string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		if !seen[src] {
			seen[src] = true
			urls = append(urls, src)
		}
	})
	return urls, nil
}
