package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vidfriends/accounts/internal/logging"
)

// StageUpload copies a multipart file into dir under a collision-free name and returns the
// local path. Callers hand the path to an uploader, which removes it.
func StageUpload(dir string, header *multipart.FileHeader) (string, error) {
	if header == nil {
		return "", errors.New("stage upload: missing file")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stage upload: create dir: %w", err)
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("stage upload: open %s: %w", header.Filename, err)
	}
	defer src.Close()

	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(header.Filename)))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("stage upload: create %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("stage upload: copy %s: %w", header.Filename, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage upload: close %s: %w", path, err)
	}

	return path, nil
}

// Discard removes staged files. Missing files are ignored; other failures are logged.
func Discard(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Warn("failed to remove staged upload", "path", path, "error", err)
		}
	}
}

// DiskStorage publishes staged media into a local directory served over HTTP. It backs
// local development when no bucket is configured.
type DiskStorage struct {
	dir     string
	baseURL string
}

// NewDiskStorage returns a DiskStorage writing into dir and linking files under baseURL.
func NewDiskStorage(dir, baseURL string) (*DiskStorage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("disk storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk storage: create dir: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the directory files are published into.
func (d *DiskStorage) Dir() string { return d.dir }

// Upload moves the staged file into the media directory and returns its URL.
func (d *DiskStorage) Upload(ctx context.Context, localPath string) (string, error) {
	defer Discard(ctx, localPath)

	name := uuid.NewString() + strings.ToLower(filepath.Ext(localPath))
	dst := filepath.Join(d.dir, name)

	if err := os.Rename(localPath, dst); err != nil {
		if err := copyFile(localPath, dst); err != nil {
			return "", fmt.Errorf("disk storage: publish %s: %w", localPath, err)
		}
	}

	return d.baseURL + "/" + name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
