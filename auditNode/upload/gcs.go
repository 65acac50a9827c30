package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/pushchain/push-audit-node/auditNode/config"
)

const publicURLFormat = "https://storage.googleapis.com/%s/%s"

// objectWriterFunc opens a writer for one object in the bucket.
type objectWriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// GCS uploads to a Google Cloud Storage bucket.
type GCS struct {
	client    *storage.Client
	bucket    string
	cfg       config.UploadConfig
	newWriter objectWriterFunc
	logger    zerolog.Logger
}

// NewGCS creates a GCS uploader. Without a credentials file the default application
// credentials are used.
func NewGCS(ctx context.Context, cfg config.UploadConfig, logger zerolog.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs upload requires a bucket")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, errors.Wrapf(err, "service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS storage client")
	}

	g := &GCS{client: client, bucket: cfg.Bucket, cfg: cfg, logger: logger}
	g.newWriter = func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := client.Bucket(cfg.Bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = "no-cache, no-store, must-revalidate"
		return w
	}
	return g, nil
}

func (g *GCS) UploadReport(ctx context.Context, text []byte, hash string) (string, error) {
	return g.put(ctx, reportObject(g.cfg.ReportPrefix, hash), "application/json", text)
}

func (g *GCS) UploadContract(ctx context.Context, requestID uint64, body []byte, filename string) (string, error) {
	return g.put(ctx, contractObject(g.cfg.ContractPrefix, requestID, filename), "text/plain", body)
}

func (g *GCS) put(ctx context.Context, object, contentType string, body []byte) (string, error) {
	w := g.newWriter(ctx, object, contentType)
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "failed to copy to GCS object %s", object)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close GCS writer for %s", object)
	}
	url := fmt.Sprintf(publicURLFormat, g.bucket, object)
	g.logger.Info().Str("object", object).Str("url", url).Msg("uploaded")
	return url, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
