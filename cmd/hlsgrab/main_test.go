package main

import (
	"testing"

	"github.com/VkTheEncoder/Anime4i/internal/config"
)

func TestOptionsApply(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	options{
		concurrency: 8,
		remux:       true,
		container:   "mkv",
		cookie:      "sid=1",
		referer:     "https://site.example/",
		userAgent:   "agent/1.0",
		verbose:     true,
	}.apply(cfg)

	if cfg.Download.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Download.Concurrency)
	}
	if !cfg.Remux.Enabled || cfg.Remux.Container != "mkv" {
		t.Errorf("remux = %+v", cfg.Remux)
	}
	if cfg.Download.Cookie != "sid=1" || cfg.Download.Referer != "https://site.example/" || cfg.Download.UserAgent != "agent/1.0" {
		t.Errorf("download headers = %+v", cfg.Download)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestOptionsApply_KeepsConfigWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	options{}.apply(cfg)

	if cfg.Download.Concurrency != 4 || cfg.Download.UserAgent != config.DefaultUserAgent {
		t.Errorf("download = %+v", cfg.Download)
	}
	if cfg.Remux.Enabled {
		t.Error("remux should stay disabled")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name  string
		opts  options
		remux bool
		want  string
	}{
		{"explicit", options{output: "ep1.mp4"}, true, "ep1.mp4"},
		{"merged only", options{}, false, "output.ts"},
		{"remuxed", options{}, true, "output.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Remux: config.RemuxConfig{Enabled: tt.remux}}
			cfg.ApplyDefaults()
			if got := tt.opts.outputPath(cfg); got != tt.want {
				t.Errorf("outputPath = %q, want %q", got, tt.want)
			}
		})
	}
}
