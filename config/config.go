// Package config holds the settings of the deblur command.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of environment variables overriding the configuration.
const EnvPrefix = "DEBLUR"

// Display modes.
const (
	DisplayAuto     = "auto"
	DisplayTerminal = "terminal"
	DisplayNone     = "none"
)

// Config is the configuration of a deblurring run.
// Environment variables are DEBLUR_ followed by the field name in
// upper snake case, e.g. DEBLUR_IMAGE_WIDTH. Unprefixed names are ignored.
type Config struct {
	// ImageWidth and ImageHeight are the size the input is resized to.
	ImageWidth  int `toml:"image_width" split_words:"true"`
	ImageHeight int `toml:"image_height" split_words:"true"`
	// ModelPath is the safetensors weights file.
	ModelPath string `toml:"model_path" split_words:"true"`
	// InputPath is the blurred image.
	InputPath string `toml:"input_path" split_words:"true"`
	// OutputPath, if set, receives the side-by-side comparison as PNG.
	OutputPath string `toml:"output_path" split_words:"true"`
	// Display selects the terminal rendering: auto, terminal or none.
	Display string `toml:"display" split_words:"true"`
	// Parallel limits the goroutines of a convolution.
	Parallel int `toml:"parallel" split_words:"true"`
}

// Default returns the configuration of the pretrained model and sample image.
func Default() Config {
	return Config{
		ImageWidth:  256,
		ImageHeight: 256,
		ModelPath:   "models/unet_deblur.safetensors",
		InputPath:   "samples/blurred_image_10.png",
		Display:     DisplayAuto,
		Parallel:    0,
	}
}

// These settings ensure that TOML keys use the names of the toml struct tags.
var tomlSettings = toml.Config{
	NormFieldName: func(_ reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(_ reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadFile overlays the TOML file named by path onto cfg.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// LoadEnv overlays the DEBLUR_* environment variables that are set onto cfg.
func LoadEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}

// Load returns the default configuration overlaid by the file named by
// path (skipped when empty) and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "config file")
		}
	}
	if err := LoadEnv(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config env")
	}
	return cfg, nil
}

// Validate checks the configuration. factor is the number the image size must be divisible by.
func (c Config) Validate(factor int) error {
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if factor > 0 && (c.ImageWidth%factor != 0 || c.ImageHeight%factor != 0) {
		return fmt.Errorf("image size %dx%d must be divisible by %d", c.ImageWidth, c.ImageHeight, factor)
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("model path is empty")
	}
	if strings.TrimSpace(c.InputPath) == "" {
		return fmt.Errorf("input path is empty")
	}
	switch c.Display {
	case DisplayAuto, DisplayTerminal, DisplayNone:
	default:
		return fmt.Errorf("invalid display %q, choose from 'auto', 'terminal' or 'none'", c.Display)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("invalid parallel %d", c.Parallel)
	}
	return nil
}
