package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paprika/core"
	"paprika/generator"
	"paprika/predictor"
)

func modelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and fill the local model cache",
	}
	cmd.AddCommand(modelsListCmd(a), modelsPullCmd(a))
	return cmd
}

func modelsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List style presets and their cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := predictor.NewModelManager(a.cfg, nil, a.logger.Zap().Named("models"), nil)
			if err != nil {
				return err
			}
			cached, err := mm.Cached()
			if err != nil {
				return err
			}
			sizes := make(map[string]int64, len(cached))
			for _, m := range cached {
				sizes[m.File] = m.SizeBytes
			}

			printHeader(a.out, "Styles")
			for _, p := range generator.Presets() {
				name := padRight(p.Name, 20)
				if p.Name == a.cfg.Style {
					name = emphasisFont.Sprint(name)
				}
				status := dimColor.Sprint(padRight("not cached", 18))
				if size, ok := sizes[p.ModelFile]; ok {
					status = okColor.Sprint(padRight("cached "+core.FormatBytes(size), 18))
				}
				fmt.Fprintf(a.out, "  %s %s %s\n", name, status, p.Description)
			}

			if a.cfg.ModelCatalog != "" {
				catalog, err := core.LoadCatalog(a.cfg.ModelCatalog)
				if err != nil {
					return err
				}
				printHeader(a.out, "Catalog")
				for _, m := range catalog.Models {
					sum := "unpinned"
					if m.SHA256 != "" {
						sum = "sha256 " + m.SHA256[:12]
					}
					fmt.Fprintf(a.out, "  %s %s  %s\n", padRight(m.File, 26), dimColor.Sprint(sum), m.URL)
				}
			}

			fmt.Fprintln(a.out)
			dimColor.Fprintf(a.out, "cache %s\n", mm.ModelDir())
			return nil
		},
	}
}

func modelsPullCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "pull [style...]",
		Short: "Download model files into the cache",
		Long:  "pull downloads the configured style's model, the named styles, or every preset with --all.",
		RunE: func(cmd *cobra.Command, args []string) error {
			styles := args
			switch {
			case all:
				styles = generator.PresetNames()
			case len(styles) == 0:
				styles = []string{a.cfg.Style}
			}

			progress := &progressPrinter{w: os.Stderr}
			mm, err := predictor.NewModelManager(a.cfg, a.cfg.HTTPClient(0), a.logger.Zap().Named("models"), progress.update)
			if err != nil {
				return err
			}

			for _, style := range styles {
				preset, err := generator.LookupPreset(style)
				if err != nil {
					return err
				}
				path, err := mm.ResolveModel(cmd.Context(), preset.ModelFile)
				if err != nil {
					failColor.Fprintf(a.out, "✗ %s\n", preset.Name)
					return err
				}
				okColor.Fprintf(a.out, "✓ %s", preset.Name)
				fmt.Fprintf(a.out, " %s\n", dimColor.Sprint(path))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "pull every style preset")
	return cmd
}
