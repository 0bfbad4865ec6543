package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	tests := []struct {
		container string
		wantBSF   bool
	}{
		{"mp4", true},
		{"MOV", true},
		{"m4a", true},
		{"mkv", false},
		{"ts", false},
	}

	for _, tt := range tests {
		t.Run(tt.container, func(t *testing.T) {
			args := Args("in.ts", "out."+tt.container, tt.container)

			want := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "in.ts", "-c", "copy"}
			if tt.wantBSF {
				want = append(want, "-bsf:a", "aac_adtstoasc")
			}
			want = append(want, "out."+tt.container)

			if !reflect.DeepEqual(args, want) {
				t.Errorf("Args() = %v, want %v", args, want)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, container, want string
	}{
		{"/tmp/job/merged.ts", "mp4", "/tmp/job/merged.mp4"},
		{"/tmp/job/merged.ts", ".MKV", "/tmp/job/merged.mkv"},
		{"/tmp/job/merged.ts", "ts", "/tmp/job/merged.remux.ts"},
		{"/tmp/job/merged", "mp4", "/tmp/job/merged.mp4"},
	}

	for _, tt := range tests {
		if got := OutputPath(tt.input, tt.container); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.input, tt.container, got, tt.want)
		}
	}
}

func TestNewRemuxer_NotFound(t *testing.T) {
	if _, err := NewRemuxer(filepath.Join(t.TempDir(), "no-such-ffmpeg")); err == nil {
		t.Error("NewRemuxer should fail for a missing binary")
	}
}

func TestRemuxer_Remux_Success(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	// Record arguments, then copy input (arg 6) to output (last arg).
	bin := fakeFFmpeg(t, `printf '%s\n' "$@" > "`+argsFile+`"
for last; do :; done
cp "$6" "$last"
`)

	input := filepath.Join(dir, "merged.ts")
	if err := os.WriteFile(input, []byte("tsdata"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	r, err := NewRemuxer(bin)
	if err != nil {
		t.Fatalf("NewRemuxer failed: %v", err)
	}

	out, err := r.Remux(context.Background(), input, "mp4")
	if err != nil {
		t.Fatalf("Remux failed: %v", err)
	}
	if out != filepath.Join(dir, "merged.mp4") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "tsdata" {
		t.Errorf("output content = %q, err %v", data, err)
	}

	recorded, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(recorded), "aac_adtstoasc") || !strings.Contains(string(recorded), "copy") {
		t.Errorf("ffmpeg args = %q", recorded)
	}
}

func TestRemuxer_Remux_NonZeroExit(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "Invalid data found when processing input" >&2
exit 1
`)
	input := filepath.Join(t.TempDir(), "merged.ts")
	if err := os.WriteFile(input, []byte("junk"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	r, err := NewRemuxer(bin)
	if err != nil {
		t.Fatalf("NewRemuxer failed: %v", err)
	}

	_, err = r.Remux(context.Background(), input, "mp4")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error should carry stderr, got %v", err)
	}
}

func TestRemuxer_Remux_MissingInput(t *testing.T) {
	bin := fakeFFmpeg(t, "exit 0\n")
	r, err := NewRemuxer(bin)
	if err != nil {
		t.Fatalf("NewRemuxer failed: %v", err)
	}

	if _, err := r.Remux(context.Background(), filepath.Join(t.TempDir(), "missing.ts"), "mp4"); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestRemuxer_Remux_NoOutput(t *testing.T) {
	bin := fakeFFmpeg(t, "exit 0\n")
	input := filepath.Join(t.TempDir(), "merged.ts")
	os.WriteFile(input, []byte("x"), 0644)

	r, _ := NewRemuxer(bin)
	if _, err := r.Remux(context.Background(), input, "mkv"); err == nil {
		t.Error("expected error when ffmpeg writes nothing")
	}
}

func TestRemuxer_Version(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "ffmpeg version 6.1-test Copyright (c)"
echo "built with gcc"
`)
	r, err := NewRemuxer(bin)
	if err != nil {
		t.Fatalf("NewRemuxer failed: %v", err)
	}

	v, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != "ffmpeg version 6.1-test Copyright (c)" {
		t.Errorf("Version() = %q", v)
	}
}

func TestTail(t *testing.T) {
	long := strings.Repeat("a", maxStderr+100) + "END"
	got := tail(long)
	if len(got) != maxStderr {
		t.Errorf("len = %d, want %d", len(got), maxStderr)
	}
	if !strings.HasSuffix(got, "END") {
		t.Error("tail should keep the end of the output")
	}
}
