package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestFilesystemDeliverer_Deliver(t *testing.T) {
	base := t.TempDir()
	src := writeArtifact(t, t.TempDir(), "merged.ts", "tsdata")

	d := NewFilesystemDeliverer(config.StorageConfig{BasePath: base}, testLogger())
	dest, err := d.Deliver(context.Background(), "job_abc", src)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	want := filepath.Join(base, "job_abc", "job_abc.ts")
	if dest != want {
		t.Errorf("dest = %q, want %q", dest, want)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "tsdata" {
		t.Errorf("delivered content = %q, err %v", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be moved, not copied")
	}

	if err := d.Remove(context.Background(), "job_abc", dest); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "job_abc")); !os.IsNotExist(err) {
		t.Error("Remove should delete the job directory")
	}
}

func TestFilesystemDeliverer_TooLarge(t *testing.T) {
	base := t.TempDir()
	src := writeArtifact(t, t.TempDir(), "merged.ts", "0123456789")

	d := NewFilesystemDeliverer(config.StorageConfig{BasePath: base, MaxFileSize: 5}, testLogger())
	_, err := d.Deliver(context.Background(), "job_big", src)

	if !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("error = %v, want DeliveryError", err)
	}
	if !errors.Is(err, domain.ErrArtifactTooLarge) {
		t.Errorf("error = %v, want ErrArtifactTooLarge", err)
	}
	if domain.KindOf(err) != "DeliveryError" {
		t.Errorf("KindOf = %q", domain.KindOf(err))
	}
	if _, err := os.Stat(filepath.Join(base, "job_big")); !os.IsNotExist(err) {
		t.Error("rejected delivery should leave no directory behind")
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("rejected artifact should stay in place for cleanup by its owner")
	}
}

func TestFilesystemDeliverer_MissingSource(t *testing.T) {
	d := NewFilesystemDeliverer(config.StorageConfig{BasePath: t.TempDir()}, testLogger())
	_, err := d.Deliver(context.Background(), "job_x", filepath.Join(t.TempDir(), "missing.ts"))
	if !errors.Is(err, domain.ErrDelivery) {
		t.Errorf("error = %v, want DeliveryError", err)
	}
}

func TestFilesystemDeliverer_CancelledContext(t *testing.T) {
	src := writeArtifact(t, t.TempDir(), "merged.ts", "x")
	d := NewFilesystemDeliverer(config.StorageConfig{BasePath: t.TempDir()}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Deliver(ctx, "job_x", src); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPathDeliverer(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "episode.mp4")
	src := writeArtifact(t, t.TempDir(), "merged.mp4", "mp4data")

	d := NewPathDeliverer(out, 0)
	dest, err := d.Deliver(context.Background(), "job_cli", src)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if dest != out {
		t.Errorf("dest = %q, want %q", dest, out)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "mp4data" {
		t.Errorf("content = %q", data)
	}

	if err := d.Remove(context.Background(), "job_cli", out); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := d.Remove(context.Background(), "job_cli", out); err != nil {
		t.Errorf("Remove of a missing file should succeed, got %v", err)
	}
}

func TestMoveFile(t *testing.T) {
	src := writeArtifact(t, t.TempDir(), "a.ts", "abc")
	dest := filepath.Join(t.TempDir(), "b.ts")

	if err := moveFile(src, dest); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "abc" {
		t.Errorf("dest content = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone")
	}
}

func TestFreeDiskSpace(t *testing.T) {
	if free := freeDiskSpace(t.TempDir()); free <= 0 {
		t.Errorf("freeDiskSpace(tempdir) = %d, want > 0", free)
	}
	if free := freeDiskSpace(filepath.Join(t.TempDir(), "missing")); free != -1 {
		t.Errorf("freeDiskSpace(missing) = %d, want -1", free)
	}
}
