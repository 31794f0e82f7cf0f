package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"paprika/core"
	"paprika/db"
	"paprika/generator"
	"paprika/predictor"
	"paprika/server"
	"paprika/stylize"
)

// StepStatus is the outcome of one preflight check.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CheckStep is one completed preflight check.
type CheckStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// CheckResult summarizes a doctor run.
type CheckResult struct {
	Steps    []CheckStep
	Passed   int
	Failed   int
	Warnings int
	Duration time.Duration
}

// Success reports whether no check failed.
func (r CheckResult) Success() bool {
	return r.Failed == 0
}

// FirstError returns the error of the first failed check.
func (r CheckResult) FirstError() error {
	for _, s := range r.Steps {
		if s.Status == StepFailed && s.Error != nil {
			return s.Error
		}
	}
	return nil
}

type check struct {
	name string
	run  func(ctx context.Context) (StepStatus, string, error)
}

func doctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, model availability and local resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := runChecks(cmd.Context(), a.out, preflightChecks(a.cfg))
			if !res.Success() {
				return fmt.Errorf("%d check(s) failed: %w", res.Failed, res.FirstError())
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, w io.Writer, checks []check) CheckResult {
	printHeader(w, "Paprika Doctor")
	start := time.Now()

	var res CheckResult
	for _, c := range checks {
		stepStart := time.Now()
		status, msg, err := c.run(ctx)
		if err != nil && status != StepFailed {
			status = StepFailed
		}
		step := CheckStep{Name: c.name, Status: status, Message: msg, Error: err, Latency: time.Since(stepStart)}
		printStep(w, step)

		switch status {
		case StepPassed:
			res.Passed++
		case StepFailed:
			res.Failed++
		case StepWarning:
			res.Warnings++
		}
		res.Steps = append(res.Steps, step)
	}
	res.Duration = time.Since(start)
	printSummary(w, res)
	return res
}

func printStep(w io.Writer, step CheckStep) {
	icon, clr := "?", color.New(color.FgWhite)
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", okColor
	case StepFailed:
		icon, clr = "✗", failColor
	case StepWarning:
		icon, clr = "!", warnColor
	case StepSkipped:
		icon, clr = "○", dimColor
	}

	clr.Fprintf(w, "  %s %s", icon, step.Name)
	if step.Message != "" {
		dimColor.Fprintf(w, " - %s", step.Message)
	}
	fmt.Fprintln(w)
	if step.Status == StepFailed && step.Error != nil {
		failColor.Fprintf(w, "    └─ %s\n", firstLine(step.Error.Error()))
	}
}

func printSummary(w io.Writer, res CheckResult) {
	fmt.Fprintln(w)
	total := len(res.Steps)
	if res.Success() {
		bold := color.New(color.FgGreen, color.Bold)
		bold.Fprint(w, "━━━ All checks passed ")
		dimColor.Fprintf(w, "(%d/%d passed, %d warning(s) in %v)", res.Passed, total, res.Warnings, res.Duration.Round(time.Millisecond))
		bold.Fprintln(w, " ━━━")
	} else {
		bold := color.New(color.FgRed, color.Bold)
		bold.Fprint(w, "━━━ Checks failed ")
		dimColor.Fprintf(w, "(%d passed, %d failed)", res.Passed, res.Failed)
		bold.Fprintln(w, " ━━━")
	}
	fmt.Fprintln(w)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func preflightChecks(cfg *core.Config) []check {
	return []check{
		{"Style preset", func(context.Context) (StepStatus, string, error) {
			p, err := generator.LookupPreset(cfg.Style)
			if err != nil {
				return StepFailed, "", err
			}
			return StepPassed, fmt.Sprintf("%s via %s backend", p.Name, cfg.Backend), nil
		}},
		{"Data directory", func(context.Context) (StepStatus, string, error) {
			dir, err := core.EnsureDataDirectory()
			if err != nil {
				return StepFailed, "", err
			}
			return StepPassed, dir, nil
		}},
		{"Scratch directory", func(context.Context) (StepStatus, string, error) {
			if err := checkWritable(cfg.ScratchDir); err != nil {
				return StepFailed, cfg.ScratchDir, err
			}
			return StepPassed, cfg.ScratchDir, nil
		}},
		{"Model", func(context.Context) (StepStatus, string, error) {
			return checkModel(cfg)
		}},
		{"ONNX Runtime", func(context.Context) (StepStatus, string, error) {
			if cfg.Backend != string(generator.BackendONNX) {
				return StepSkipped, "not used by the " + cfg.Backend + " backend", nil
			}
			if cfg.ONNXLibraryPath == "" {
				return StepWarning, "ONNXRUNTIME_LIB_PATH unset, using the system library", nil
			}
			if _, err := os.Stat(cfg.ONNXLibraryPath); err != nil {
				return StepFailed, "", fmt.Errorf("onnxruntime library: %w", err)
			}
			return StepPassed, cfg.ONNXLibraryPath, nil
		}},
		{"Device", func(ctx context.Context) (StepStatus, string, error) {
			d := stylize.NewDeviceSelector(stylize.WithPreference(cfg.Device)).Select(ctx)
			if strings.HasPrefix(cfg.Device, "cuda") && !d.IsAccelerator() {
				return StepWarning, "CUDA requested but unavailable, using cpu", nil
			}
			return StepPassed, d.String(), nil
		}},
		{"History database", func(context.Context) (StepStatus, string, error) {
			if !cfg.HistoryEnabled {
				return StepSkipped, "PAPRIKA_HISTORY is off", nil
			}
			version, dirty, err := db.SchemaVersion(cfg.DBPath)
			if err != nil {
				return StepFailed, cfg.DBPath, err
			}
			if dirty {
				return StepFailed, cfg.DBPath, fmt.Errorf("schema version %d is dirty, run `paprika history --reset`", version)
			}
			if version == 0 {
				return StepWarning, "not created yet, migrated on first use", nil
			}
			return StepPassed, fmt.Sprintf("schema v%d", version), nil
		}},
		{"API token", func(context.Context) (StepStatus, string, error) {
			switch {
			case cfg.APITokenHash != "":
				if err := server.ValidateHash(cfg.APITokenHash); err != nil {
					return StepFailed, "", err
				}
				return StepPassed, "bcrypt hash configured", nil
			case cfg.APIToken != "":
				return StepWarning, "plaintext token, prefer PAPRIKA_API_TOKEN_HASH", nil
			default:
				return StepWarning, "authentication disabled", nil
			}
		}},
	}
}

func checkModel(cfg *core.Config) (StepStatus, string, error) {
	if cfg.Backend != string(generator.BackendONNX) {
		return StepSkipped, "remote backend", nil
	}
	preset, err := generator.LookupPreset(cfg.Style)
	if err != nil {
		return StepSkipped, "unknown style", nil
	}
	mm, err := predictor.NewModelManager(cfg, nil, nil, nil)
	if err != nil {
		return StepFailed, "", err
	}
	cached, err := mm.Cached()
	if err != nil {
		return StepFailed, "", err
	}
	for _, m := range cached {
		if m.File == preset.ModelFile {
			if cfg.ModelSHA256 != "" {
				if err := core.VerifyChecksum(m.Path, cfg.ModelSHA256); err != nil {
					return StepFailed, m.Path, err
				}
			}
			return StepPassed, fmt.Sprintf("%s cached (%s)", m.File, core.FormatBytes(m.SizeBytes)), nil
		}
	}
	if cfg.ModelHubURL != "" || cfg.ModelCatalog != "" {
		return StepWarning, preset.ModelFile + " not cached, downloaded on first setup", nil
	}
	path, _ := mm.ModelPath(preset.ModelFile)
	return StepFailed, "", &core.ModelDownloadError{
		ModelName: preset.ModelFile,
		Cause:     core.ErrModelNotCached,
		Message:   "set PAPRIKA_MODEL_HUB_URL or run `paprika models pull`",
		DestPath:  path,
	}
}

// checkWritable creates and removes a scratch file in dir.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".paprika-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
