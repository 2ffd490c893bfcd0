// Package publisher uploads rendered RSS documents to S3-compatible object
// storage and returns their public URLs.
package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/0x0BSoD/repofeed/internal/metrics"
	"github.com/0x0BSoD/repofeed/internal/model"
)

const (
	contentType  = "application/rss+xml; charset=utf-8"
	cacheControl = "public, max-age=300"
)

// ObjectPutter is the subset of *minio.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Options struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

type Publisher struct {
	objects ObjectPutter
	bucket  string
	baseURL string
}

// New connects to the object storage described by opts.
func New(opts Options) (*Publisher, error) {
	if opts.Endpoint == "" || opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("%w: storage endpoint and credentials are required", model.ErrConfiguration)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: storage client: %v", model.ErrConfiguration, err)
	}

	return NewWithClient(client, opts.Bucket, opts.PublicBaseURL)
}

func NewWithClient(objects ObjectPutter, bucket, publicBaseURL string) (*Publisher, error) {
	if bucket == "" || publicBaseURL == "" {
		return nil, fmt.Errorf("%w: storage bucket and public base url are required", model.ErrConfiguration)
	}
	return &Publisher{
		objects: objects,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Key is the object key of a feed document: rss/{owner}-{repo}/{feedType}.xml.
func Key(id model.Identity, feedType model.FeedType) string {
	return "rss/" + id.PathKey() + "/" + string(feedType) + ".xml"
}

// URL returns the public URL a feed document is served from.
func (p *Publisher) URL(id model.Identity, feedType model.FeedType) string {
	return p.baseURL + "/" + Key(id, feedType)
}

// Publish uploads every document independently, overwriting the previous
// version. A failed upload leaves that feed type unset in the result; the
// other uploads still run.
func (p *Publisher) Publish(ctx context.Context, id model.Identity, docs map[model.FeedType]string) model.Feeds {
	var feeds model.Feeds

	for _, feedType := range model.FeedTypes {
		doc, ok := docs[feedType]
		if !ok {
			continue
		}

		key := Key(id, feedType)
		_, err := p.objects.PutObject(ctx, p.bucket, key, strings.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
			ContentType:  contentType,
			CacheControl: cacheControl,
		})
		metrics.RecordFeed(string(feedType), "publish", err)
		if err != nil {
			perr := &model.PublishError{FeedType: feedType, Key: key, Err: err}
			slog.Error("failed to publish feed", "repository", id.String(), "err", perr)
			continue
		}

		u := p.URL(id, feedType)
		feeds.Set(feedType, &u)
	}

	return feeds
}
