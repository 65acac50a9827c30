package upload

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/config"
)

// Local writes uploads under a directory and returns file:// URLs.
type Local struct {
	dir    string
	cfg    config.UploadConfig
	logger zerolog.Logger
}

// NewLocal creates a local uploader rooted at dir.
func NewLocal(dir string, cfg config.UploadConfig, logger zerolog.Logger) *Local {
	return &Local{dir: dir, cfg: cfg, logger: logger}
}

func (l *Local) UploadReport(_ context.Context, text []byte, hash string) (string, error) {
	return l.write(reportObject(l.cfg.ReportPrefix, hash), text)
}

func (l *Local) UploadContract(_ context.Context, requestID uint64, body []byte, filename string) (string, error) {
	return l.write(contractObject(l.cfg.ContractPrefix, requestID, filename), body)
}

func (l *Local) write(object string, body []byte) (string, error) {
	path := filepath.Join(l.dir, filepath.FromSlash(object))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %s", object)
	}
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	l.logger.Debug().Str("path", path).Msg("stored upload")
	return "file://" + path, nil
}

func (l *Local) Close() error { return nil }
