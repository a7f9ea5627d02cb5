package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deblur.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate(4))
	assert.Equal(t, 256, cfg.ImageWidth)
	assert.Equal(t, 256, cfg.ImageHeight)
	assert.Equal(t, DisplayAuto, cfg.Display)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
image_width = 128
model_path = "weights/unet.safetensors"
display = "none"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	want := Default()
	want.ImageWidth = 128
	want.ModelPath = "weights/unet.safetensors"
	want.Display = DisplayNone
	assert.Equal(t, want, cfg)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "image_depth = 3\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, "image_width = 128\nparallel = 2\n")
	t.Setenv("DEBLUR_IMAGE_WIDTH", "64")
	t.Setenv("DEBLUR_INPUT_PATH", "blurred.jpg")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.ImageWidth)
	assert.Equal(t, 256, cfg.ImageHeight)
	assert.Equal(t, "blurred.jpg", cfg.InputPath)
	assert.Equal(t, 2, cfg.Parallel)
}

func TestLoad_UnprefixedEnvIsIgnored(t *testing.T) {
	t.Setenv("PARALLEL", "7")
	t.Setenv("INPUT_PATH", "/elsewhere.png")
	t.Setenv("IMAGE_WIDTH", "64")
	t.Setenv("DISPLAY", ":0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DEBLUR_IMAGE_HEIGHT", "tall")
	_, err := Load("")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	testdata := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "zero width", modify: func(c *Config) { c.ImageWidth = 0 }},
		{name: "negative height", modify: func(c *Config) { c.ImageHeight = -4 }},
		{name: "indivisible width", modify: func(c *Config) { c.ImageWidth = 250 }},
		{name: "empty model path", modify: func(c *Config) { c.ModelPath = " " }},
		{name: "empty input path", modify: func(c *Config) { c.InputPath = "" }},
		{name: "unknown display", modify: func(c *Config) { c.Display = "window" }},
		{name: "negative parallel", modify: func(c *Config) { c.Parallel = -1 }},
	}
	for _, tt := range testdata {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate(4))
		})
	}
}
