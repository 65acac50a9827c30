// Package upload copies full audit reports and audited contracts to durable storage so the
// compact on-chain report can point at a human-readable copy.
package upload

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/config"
)

const (
	ProviderNone  = "none"
	ProviderLocal = "local"
	ProviderGCS   = "gcs"
)

// Uploader stores reports and contracts and returns where they can be read back.
type Uploader interface {
	UploadReport(ctx context.Context, text []byte, hash string) (string, error)
	UploadContract(ctx context.Context, requestID uint64, body []byte, filename string) (string, error)
	Close() error
}

// New creates the uploader selected by cfg. localDir is used by the local provider.
func New(ctx context.Context, cfg config.UploadConfig, localDir string, logger zerolog.Logger) (Uploader, error) {
	log := logger.With().Str("component", "uploader").Str("provider", cfg.Provider).Logger()
	switch cfg.Provider {
	case "", ProviderNone:
		return None{}, nil
	case ProviderLocal:
		return NewLocal(localDir, cfg, log), nil
	case ProviderGCS:
		return NewGCS(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown upload provider %q", cfg.Provider)
}

// None discards uploads.
type None struct{}

func (None) UploadReport(context.Context, []byte, string) (string, error) { return "", nil }

func (None) UploadContract(context.Context, uint64, []byte, string) (string, error) { return "", nil }

func (None) Close() error { return nil }

func reportObject(prefix, hash string) string {
	return joinObject(prefix, hash+".json")
}

func contractObject(prefix string, requestID uint64, filename string) string {
	return joinObject(prefix, fmt.Sprintf("%d/%s", requestID, filename))
}

func joinObject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
