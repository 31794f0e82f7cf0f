package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paprika/db"
	"paprika/predictor"
	"paprika/stylize"
)

func predictCmd(a *app) *cobra.Command {
	var (
		image    string
		strength float64
		output   string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Stylize one image and print the path of the PNG",
		Example: `  paprika predict --image photo.jpg
  paprika predict --image https://example.com/cat.png --strength 0.6 --output cat-anime.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), a, predictor.Request{Image: image, Strength: strength}, output)
		},
	}

	cmd.Flags().StringVarP(&image, "image", "i", "", "input image: path, http(s) URL or data URL")
	cmd.Flags().Float64VarP(&strength, "strength", "s", stylize.DefaultStrength, "style strength between 0.1 and 2.0")
	cmd.Flags().StringVarP(&output, "output", "o", "", "move the result here instead of leaving it in the scratch directory")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func runPredict(ctx context.Context, a *app, req predictor.Request, output string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Reject a bad strength before paying for model setup.
	if err := stylize.ValidateStrength(req.Strength); err != nil {
		return &stylize.Error{Kind: stylize.KindValidation, Op: "strength", Err: err}
	}

	progress := &progressPrinter{w: os.Stderr}
	opts := []predictor.Option{
		predictor.WithLogger(a.logger.Zap()),
		predictor.WithDownloadProgress(progress.update),
		predictor.WithLocalInputs(),
	}

	if a.cfg.HistoryEnabled {
		database, err := db.Open(a.cfg.DBPath)
		if err != nil {
			a.logger.Warn("Prediction history disabled", zap.Error(err))
		} else {
			defer database.Close()
			opts = append(opts, predictor.WithHistory(db.NewRepository(database)))
		}
	}

	p, err := predictor.Setup(ctx, a.cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(context.Background()); err != nil {
			a.logger.Warn("Predictor close failed", zap.Error(err))
		}
	}()

	res, err := p.Predict(ctx, req)
	if err != nil {
		return err
	}

	path := res.Artifact.Path
	if output != "" {
		if err := moveFile(res.Artifact.Path, output); err != nil {
			_ = res.Artifact.Release()
			return &stylize.Error{Kind: stylize.KindArtifactWrite, Op: "output", Err: err}
		}
		path = output
	}

	fmt.Fprintln(a.out, path)
	return nil
}

// moveFile renames src to dst, copying across filesystems when rename fails.
func moveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open result: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy result: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close output: %w", err)
	}
	in.Close()
	return os.Remove(src)
}
