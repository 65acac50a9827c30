package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const maxSourceBytes = 10 << 20

// Source is a fetched contract.
type Source struct {
	Path     string // Local copy
	FileName string // Name from the URI
	Body     []byte
	Hash     string // Lowercase hex sha256 of Body
}

// ErrOutsideFileRoot rejects file URIs when no root is configured or the path escapes it.
var ErrOutsideFileRoot = errors.New("file contract uri outside the allowed source root")

// Fetch downloads the contract at uri (http, https or file) into dir. File URIs are read
// only from below fileRoot; an empty fileRoot rejects them.
func Fetch(ctx context.Context, client *http.Client, uri, dir, fileRoot string) (*Source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid contract uri %q", uri)
	}

	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = fetchHTTP(ctx, client, uri)
	case "file":
		body, err = readUnder(fileRoot, u.Path)
	default:
		return nil, errors.Errorf("unsupported contract uri scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", uri)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "contract.sol"
	}
	if !strings.HasSuffix(name, ".sol") {
		name += ".sol"
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dir)
	}
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, body, 0o640); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", local)
	}

	sum := sha256.Sum256(body)
	return &Source{Path: local, FileName: name, Body: body, Hash: hex.EncodeToString(sum[:])}, nil
}

// readUnder reads name if it resolves, symlinks included, to a path inside root.
func readUnder(root, name string) ([]byte, error) {
	if root == "" {
		return nil, ErrOutsideFileRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(name))
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return nil, ErrOutsideFileRoot
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSourceBytes {
		return nil, fmt.Errorf("contract exceeds %d bytes", maxSourceBytes)
	}
	return body, nil
}

func fetchHTTP(ctx context.Context, client *http.Client, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSourceBytes {
		return nil, fmt.Errorf("contract exceeds %d bytes", maxSourceBytes)
	}
	return body, nil
}
