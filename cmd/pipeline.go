package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ikawaha/deblur.go/config"
	"github.com/ikawaha/deblur.go/display"
	"github.com/ikawaha/deblur.go/engine"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// pipeline runs load image -> load model -> deblur -> display, once.
type pipeline struct {
	cfg     config.Config
	stdout  io.Writer
	logger  *zap.Logger
	loadImg func(path string, width, height int) (*engine.Image, error)
	loadNet func(path string, arch engine.Architecture) (*engine.Network, error)
	display display.Displayer
}

func newPipeline(cfg config.Config, stdout io.Writer, logger *zap.Logger, d display.Displayer) *pipeline {
	return &pipeline{
		cfg:     cfg,
		stdout:  stdout,
		logger:  logger,
		loadImg: engine.LoadImage,
		loadNet: engine.LoadModel,
		display: d,
	}
}

func (p *pipeline) printf(format string, a ...interface{}) {
	fmt.Fprintf(p.stdout, format, a...)
}

func (p *pipeline) run(ctx context.Context) error {
	p.printf("%s\nIMAGE DEBLURRING\n%s\n", rule, rule)

	p.printf("\n1. Loading image: %s\n", filepath.Base(p.cfg.InputPath))
	original, err := p.loadImg(p.cfg.InputPath, p.cfg.ImageWidth, p.cfg.ImageHeight)
	if err != nil {
		return describe(err, p.cfg)
	}
	p.printf("   Loaded and resized to %dx%d\n", p.cfg.ImageWidth, p.cfg.ImageHeight)

	p.printf("\n2. Loading model: %s\n", filepath.Base(p.cfg.ModelPath))
	p.printf("   Building U-Net deblurring architecture...\n")
	arch := engine.DefaultArchitecture(p.cfg.ImageWidth, p.cfg.ImageHeight)
	net, err := p.loadNet(p.cfg.ModelPath, arch)
	if err != nil {
		return describe(err, p.cfg)
	}
	p.logger.Debug("model loaded",
		zap.String("name", net.Name),
		zap.Int("params", net.NumParams()),
		zap.Stringer("input", net.InputShape()))
	p.printf("   Model loaded (%d parameters)\n", net.NumParams())

	p.printf("\n3. Deblurring...\n")
	opts := []engine.Option{engine.Logger(p.logger)}
	if p.cfg.Parallel > 0 {
		opts = append(opts, engine.Parallel(p.cfg.Parallel))
	}
	d, err := engine.NewDeblurrer(net, opts...)
	if err != nil {
		return err
	}
	deblurred, err := d.Deblur(ctx, original)
	if err != nil {
		return errors.Wrap(err, "deblur")
	}
	p.printf("   Done\n")

	p.printf("\n4. Showing results...\n")
	if p.display == nil {
		p.logger.Info("no display configured")
	} else if err := p.display.Show(original, deblurred); err != nil {
		return errors.Wrap(err, "display")
	}
	p.printf("\n✓ Complete!\n")
	return nil
}

const rule = "============================================================"

// describe turns a pipeline error into a message naming the failed condition.
func describe(err error, cfg config.Config) error {
	var (
		le *engine.LoadError
		de *engine.DecodeError
	)
	switch {
	case errors.Is(err, engine.ErrInputNotFound):
		return fmt.Errorf("image not found at %s, set input_path or --input: %w", cfg.InputPath, err)
	case errors.Is(err, engine.ErrModelNotFound):
		return fmt.Errorf("model not found at %s, set model_path or --model: %w", cfg.ModelPath, err)
	case errors.As(err, &le):
		return fmt.Errorf("cannot load model %s: %w", cfg.ModelPath, err)
	case errors.As(err, &de):
		return fmt.Errorf("cannot decode image %s: %w", cfg.InputPath, err)
	}
	return err
}
