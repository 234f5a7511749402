// Package config loads the player configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

// Config mirrors the options recognised by the video surface.
type Config struct {
	Namespace string `yaml:"namespace"`

	Height                         int     `yaml:"height"`
	Width                          int     `yaml:"width"`
	VideoFPS                       float64 `yaml:"videoFps"`
	LoopVideo                      bool    `yaml:"loopVideo"`
	UseWallRate                    bool    `yaml:"useWallRate"`
	BufferAllFramesForFastSeek     bool    `yaml:"bufferAllFramesForFastSeek"`
	VideoPaused                    bool    `yaml:"videoPaused"`
	DefaultVideoPath               string  `yaml:"defaultVideoPath"`
	DefaultImagePath               string  `yaml:"defaultImagePath"`
	UseDoubleSideRenderingOnPlanes bool    `yaml:"useDoubleSideRenderingOnPlanes"`

	// Directories searched for relative default paths
	SearchPaths []string `yaml:"searchPaths"`

	TopicName        string `yaml:"topicName"`
	TopicImagePath   string `yaml:"topicImagePath"`
	TopicVideoPath   string `yaml:"topicVideoPath"`
	TopicVideoSeek   string `yaml:"topicVideoSeek"`
	TopicVideoPaused string `yaml:"topicVideoPaused"`
}

var _ io.ReaderFrom = (*Config)(nil)

// Returns the configuration with every default applied
func Default() Config {
	return Config{
		Height:                         240,
		Width:                          320,
		VideoFPS:                       24,
		LoopVideo:                      true,
		UseWallRate:                    true,
		UseDoubleSideRenderingOnPlanes: true,

		TopicName:        "image_raw",
		TopicImagePath:   "set_image_path",
		TopicVideoPath:   "set_video_path",
		TopicVideoSeek:   "set_video_seek",
		TopicVideoPaused: "set_video_paused",
	}
}

// Reads YAML over the current values; keys missing from the input keep them
func (cfg *Config) ReadFrom(r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), fmt.Errorf("unable to read: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return int64(len(b)), fmt.Errorf("unable to parse: %w", err)
	}
	return int64(len(b)), nil
}

// Loads path on top of Default(). An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to open config '%s': %w", path, err)
	}
	defer f.Close()

	if _, err := cfg.ReadFrom(f); err != nil {
		return cfg, fmt.Errorf("config '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config '%s': %w", path, err)
	}
	return cfg, nil
}

// Checks values that would make the surface unusable
func (cfg Config) Validate() error {
	if !video.ValidSize(cfg.Width, cfg.Height) {
		return fmt.Errorf("invalid surface size %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}

// Resolves a file path or file:// URI against the working directory and
// the search paths. Returns "" when nothing exists.
func (cfg Config) Resolve(path string) string {
	path = strings.TrimPrefix(path, "file://")
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		if exists(path) {
			return path
		}
		return ""
	}
	if exists(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		return abs
	}
	for _, dir := range cfg.SearchPaths {
		candidate := filepath.Join(dir, path)
		if exists(candidate) {
			return candidate
		}
	}
	return ""
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
