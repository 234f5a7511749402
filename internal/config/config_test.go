package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 240, cfg.Height)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 24.0, cfg.VideoFPS)
	assert.True(t, cfg.LoopVideo)
	assert.True(t, cfg.UseWallRate)
	assert.False(t, cfg.BufferAllFramesForFastSeek)
	assert.False(t, cfg.VideoPaused)
	assert.True(t, cfg.UseDoubleSideRenderingOnPlanes)
	assert.Equal(t, "image_raw", cfg.TopicName)
	assert.NoError(t, cfg.Validate())
}

func TestReadFromKeepsMissingKeys(t *testing.T) {
	cfg := Default()
	input := "height: 2\nwidth: 2\nloopVideo: false\nvideoFps: 0\ntopicVideoSeek: seek\n"

	_, err := cfg.ReadFrom(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Height)
	assert.Equal(t, 2, cfg.Width)
	assert.False(t, cfg.LoopVideo)
	assert.Equal(t, 0.0, cfg.VideoFPS)
	assert.Equal(t, "seek", cfg.TopicVideoSeek)
	assert.True(t, cfg.UseWallRate)
	assert.Equal(t, "set_video_path", cfg.TopicVideoPath)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "surface.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bufferAllFramesForFastSeek: true\nsearchPaths: [/a, /b]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.BufferAllFramesForFastSeek)
	assert.Equal(t, []string{"/a", "/b"}, cfg.SearchPaths)
	assert.Equal(t, 320, cfg.Width)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad_yaml", content: "height: [1, 2\n"},
		{name: "zero_width", content: "width: 0\n"},
		{name: "negative_height", content: "height: -4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := Default()
	cfg.SearchPaths = []string{filepath.Join(dir, "missing"), dir}

	assert.Equal(t, file, cfg.Resolve("clip.mp4"))
	assert.Equal(t, file, cfg.Resolve("file://"+file))
	assert.Equal(t, file, cfg.Resolve(file))
	assert.Equal(t, "", cfg.Resolve("other.mp4"))
	assert.Equal(t, "", cfg.Resolve(""))
	assert.Equal(t, "", cfg.Resolve(dir))
}

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		ok            bool
	}{
		{"default", 320, 240, true},
		{"zero_width", 0, 240, false},
		{"negative_height", 320, -1, false},
		{"too_many_pixels", 8193, 8192, false},
		{"overflowing", 1 << 32, 1 << 32, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Width, cfg.Height = tt.width, tt.height
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}
