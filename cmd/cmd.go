package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ikawaha/deblur.go/config"
	"github.com/ikawaha/deblur.go/display"
	"github.com/ikawaha/deblur.go/engine"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const commandName = "deblur"

type option struct {
	configFile string
	input      string
	model      string
	output     string
	display    string
	width      int
	height     int
	parallel   int
	columns    int
	verbose    bool
}

func (o *option) bind(c *cobra.Command) {
	f := c.PersistentFlags()
	f.StringVarP(&o.configFile, "config", "c", "", "TOML configuration file")
	f.StringVarP(&o.input, "input", "i", "", "input image file")
	f.StringVarP(&o.model, "model", "m", "", "model weights file (safetensors)")
	f.StringVarP(&o.output, "output", "o", "", "write the side-by-side comparison to this PNG file")
	f.StringVar(&o.display, "display", "", "terminal rendering, choose from 'auto', 'terminal' and 'none'")
	f.IntVar(&o.width, "width", 0, "image width the input is resized to")
	f.IntVar(&o.height, "height", 0, "image height the input is resized to")
	f.IntVarP(&o.parallel, "parallel", "p", 0, "limit number of goroutines (default GOMAXPROCS)")
	f.IntVar(&o.columns, "columns", display.DefaultColumns, "terminal width of each rendered image")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "verbose")
}

// config returns the configuration with the flags set on the command line applied last.
func (o *option) config(c *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, err
	}
	f := c.Flags()
	if f.Changed("input") {
		cfg.InputPath = o.input
	}
	if f.Changed("model") {
		cfg.ModelPath = o.model
	}
	if f.Changed("output") {
		cfg.OutputPath = o.output
	}
	if f.Changed("display") {
		cfg.Display = o.display
	}
	if f.Changed("width") {
		cfg.ImageWidth = o.width
	}
	if f.Changed("height") {
		cfg.ImageHeight = o.height
	}
	if f.Changed("parallel") {
		cfg.Parallel = o.parallel
	}
	factor := engine.DefaultArchitecture(cfg.ImageWidth, cfg.ImageHeight).Factor()
	if err := cfg.Validate(factor); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// displayer selects the presentation of the result.
func displayer(cfg config.Config, o *option, stdout io.Writer, logger *zap.Logger) display.Displayer {
	var ret display.Multi
	switch cfg.Display {
	case config.DisplayTerminal:
		ret = append(ret, display.NewTerminal(stdout, o.columns, termenv.WithProfile(termenv.TrueColor)))
	case config.DisplayAuto:
		if f, ok := stdout.(*os.File); ok && display.IsTerminal(f) {
			ret = append(ret, display.NewTerminal(stdout, o.columns))
		} else {
			logger.Info("stdout is not a terminal, skip rendering")
		}
	}
	if cfg.OutputPath != "" {
		ret = append(ret, display.PNGFile{Path: cfg.OutputPath, Gap: 8})
	}
	if len(ret) == 0 {
		return nil
	}
	return ret
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	o := &option{}
	root := &cobra.Command{
		Use:           commandName,
		Short:         "Remove blur from a photograph with a pretrained U-Net",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := o.config(c)
			if err != nil {
				return err
			}
			logger := newLogger(stderr, o.verbose)
			defer logger.Sync() //nolint:errcheck
			return newPipeline(cfg, stdout, logger, displayer(cfg, o, stdout, logger)).run(c.Context())
		},
	}
	o.bind(root)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print the layers of the network",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := o.config(c)
			if err != nil {
				return err
			}
			net, err := engine.DefaultArchitecture(cfg.ImageWidth, cfg.ImageHeight).Build()
			if err != nil {
				return err
			}
			display.Summary(stdout, net)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write initial weights, which map every image to itself, to the model path",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := o.config(c)
			if err != nil {
				return err
			}
			net, err := engine.DefaultArchitecture(cfg.ImageWidth, cfg.ImageHeight).Build()
			if err != nil {
				return err
			}
			if err := engine.SaveWeights(cfg.ModelPath, net, map[string]string{"name": net.Name}); err != nil {
				return fmt.Errorf("save weights: %w", err)
			}
			fmt.Fprintf(stdout, "wrote %d parameters to %s\n", net.NumParams(), cfg.ModelPath)
			return nil
		},
	})
	return root
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Usage shows a usage message.
func Usage() {
	_ = newRootCommand(os.Stdout, os.Stderr).Usage()
}

// Run executes the deblur command.
func Run(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}
