// Package commands implements the paprika command line.
package commands

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paprika/core"
	"paprika/logging"
)

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "paprika/no-config"

// app is the state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	envFile  string
	logLevel string
	noFile   bool

	cfg    *core.Config
	logger *logging.Logger
	out    io.Writer
}

// Execute runs the CLI with os.Args. Cancelling ctx interrupts the
// running command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:           "paprika",
		Short:         "Turn photos into Paprika-style anime frames",
		Long:          "paprika stylizes photographs with AnimeGANv2 style presets, locally through ONNX Runtime or through a remote image model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Annotations[annotationNoConfig] == "true" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "load environment from this file (default .env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override PAPRIKA_LOG_LEVEL")
	root.PersistentFlags().BoolVar(&a.noFile, "no-log-file", false, "log to the console only")

	root.AddCommand(
		predictCmd(a),
		serveCmd(a),
		devicesCmd(a),
		modelsCmd(a),
		historyCmd(a),
		serviceCmd(a),
		doctorCmd(a),
		versionCmd(a),
	)
	return root
}

// init loads .env, the configuration and the logger.
func (a *app) init() error {
	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}
	if a.logLevel != "" {
		if err := os.Setenv("PAPRIKA_LOG_LEVEL", a.logLevel); err != nil {
			return err
		}
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.Options{Level: cfg.LogLevel, DevMode: cfg.DevMode}
	if !a.noFile {
		opts.FilePath = cfg.LogFile
	}
	logger, err := logging.NewLogger(opts)
	if err != nil {
		return err
	}
	a.logger = logger.Named("paprika")
	a.logger.Debug("Configuration loaded",
		zap.String("version", core.Version),
		zap.String("style", cfg.Style),
		zap.String("backend", cfg.Backend),
		zap.String("device", cfg.Device),
	)
	return nil
}

// loadEnvFile loads path, or .env when path is empty. Only an explicitly
// requested file must exist. Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return core.ErrEnvFileMissing(path)
	}
	return godotenv.Load(path)
}
