package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalCAS keeps blob bytes under root as sha256/ab/cd/<digest>. Uploads are
// spooled in root/tmp and renamed into place once their digest is known.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates root and its spool directory if needed.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalCAS{root: abs}, nil
}

func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	if c == nil {
		return BlobPutResult{}, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return BlobPutResult{}, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return BlobPutResult{}, err
	}

	tmpPath, result, err := c.spool(r)
	if err != nil {
		return BlobPutResult{}, err
	}
	if err := c.commit(tmpPath, result.BlobKey); err != nil {
		_ = os.Remove(tmpPath)
		return BlobPutResult{}, err
	}
	return result, nil
}

// spool copies r into a temporary file and reports its digest.
func (c *LocalCAS) spool(r io.Reader) (string, BlobPutResult, error) {
	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "put-*")
	if err != nil {
		return "", BlobPutResult{}, err
	}
	dr := newDigestReader(r)
	_, copyErr := io.Copy(tmp, dr)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", BlobPutResult{}, err
	}
	return tmp.Name(), dr.result(), nil
}

// commit moves the spooled file to key. Existing content for the key wins,
// since equal keys mean equal bytes.
func (c *LocalCAS) commit(tmpPath, key string) error {
	dst := filepath.Join(c.root, filepath.FromSlash(key))
	if _, err := os.Stat(dst); err == nil {
		return os.Remove(tmpPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		// A concurrent Put of the same bytes may have won the rename.
		if _, statErr := os.Stat(dst); statErr == nil {
			return os.Remove(tmpPath)
		}
		return err
	}
	return nil
}

func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := c.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

// Delete removes a blob. Missing content is not an error.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	path, err := c.resolve(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (c *LocalCAS) Backend() string {
	return BackendLocalCAS
}

// Root returns the absolute directory holding blob content.
func (c *LocalCAS) Root() string {
	return c.root
}

func (c *LocalCAS) resolve(ctx context.Context, key string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(c.root, rel), nil
}

var _ BlobStore = (*LocalCAS)(nil)
