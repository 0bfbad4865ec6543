package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

// Deliverer hands a finished artifact to its final owner.
// Errors returned by Deliver are DeliveryErrors.
type Deliverer interface {
	// Deliver takes ownership of the artifact at src and returns its final path.
	Deliver(ctx context.Context, id domain.JobID, src string) (string, error)

	// Remove discards a previously delivered artifact.
	Remove(ctx context.Context, id domain.JobID, path string) error
}

// FilesystemDeliverer stores each artifact under <basePath>/<job id>/.
type FilesystemDeliverer struct {
	basePath    string
	maxFileSize int64
	logger      *slog.Logger
}

// NewFilesystemDeliverer creates a deliverer rooted at cfg.BasePath.
func NewFilesystemDeliverer(cfg config.StorageConfig, logger *slog.Logger) *FilesystemDeliverer {
	return &FilesystemDeliverer{
		basePath:    cfg.BasePath,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger,
	}
}

// Deliver moves src to <basePath>/<id>/<id><ext>.
func (d *FilesystemDeliverer) Deliver(ctx context.Context, id domain.JobID, src string) (string, error) {
	dir := filepath.Join(d.basePath, string(id))
	dest := filepath.Join(dir, string(id)+filepath.Ext(src))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.NewDeliveryError(fmt.Errorf("create delivery dir: %w", err))
	}
	if err := deliverFile(ctx, src, dest, d.maxFileSize); err != nil {
		_ = os.Remove(dir)
		return "", err
	}

	d.logger.Info("artifact delivered", "job_id", id, "path", dest)
	return dest, nil
}

// Remove deletes the job's delivery directory.
func (d *FilesystemDeliverer) Remove(ctx context.Context, id domain.JobID, path string) error {
	dir := filepath.Join(d.basePath, string(id))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove delivery dir: %w", err)
	}
	return nil
}

// PathDeliverer moves the artifact to one fixed path.
type PathDeliverer struct {
	path        string
	maxFileSize int64
}

// NewPathDeliverer creates a deliverer that writes to path. A maxFileSize of
// zero disables the size check.
func NewPathDeliverer(path string, maxFileSize int64) *PathDeliverer {
	return &PathDeliverer{path: path, maxFileSize: maxFileSize}
}

// Deliver moves src to the configured path, replacing any existing file.
func (d *PathDeliverer) Deliver(ctx context.Context, id domain.JobID, src string) (string, error) {
	if dir := filepath.Dir(d.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", domain.NewDeliveryError(fmt.Errorf("create output dir: %w", err))
		}
	}
	if err := deliverFile(ctx, src, d.path, d.maxFileSize); err != nil {
		return "", err
	}
	return d.path, nil
}

// Remove deletes the delivered file.
func (d *PathDeliverer) Remove(ctx context.Context, id domain.JobID, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// deliverFile checks src against the size limit and free space, then moves it to dest.
func deliverFile(ctx context.Context, src, dest string, maxFileSize int64) error {
	if err := ctx.Err(); err != nil {
		return domain.NewDeliveryError(err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return domain.NewDeliveryError(fmt.Errorf("stat artifact: %w", err))
	}
	size := info.Size()

	if maxFileSize > 0 && size > maxFileSize {
		return domain.NewDeliveryError(fmt.Errorf("%w: %s > %s",
			domain.ErrArtifactTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxFileSize))))
	}
	if free := freeDiskSpace(filepath.Dir(dest)); free >= 0 && free < size {
		return domain.NewDeliveryError(fmt.Errorf("%w: need %s, have %s",
			domain.ErrInsufficientSpace, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(free))))
	}

	if err := moveFile(src, dest); err != nil {
		return domain.NewDeliveryError(err)
	}
	return nil
}

// moveFile renames src to dest, copying when they live on different filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("close artifact: %w", err)
	}

	return os.Remove(src)
}
