package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"paprika/stylize"
)

func devicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List accelerators and show which device a session would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := stylize.NewDeviceSelector(
				stylize.WithPreference(a.cfg.Device),
				stylize.WithSelectorLogger(a.logger.Zap().Named("device")),
			)
			printDevices(a, selector.Discover(cmd.Context()), selector.Select(cmd.Context()))
			return nil
		},
	}
}

func printDevices(a *app, found []stylize.ExecutionDevice, selected stylize.ExecutionDevice) {
	printHeader(a.out, "Devices")
	if len(found) == 0 {
		dimColor.Fprintln(a.out, "  no CUDA devices found")
	}
	for _, d := range found {
		mark := " "
		if d == selected {
			mark = okColor.Sprint("➜")
		}
		memory := ""
		if d.MemoryTotalMB > 0 {
			memory = dimColor.Sprintf(" (%d MB)", d.MemoryTotalMB)
		}
		fmt.Fprintf(a.out, "%s %s %s%s\n", mark, padRight(d.String(), 8), d.Name, memory)
	}
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "preference %s, selected ", emphasisFont.Sprint(a.cfg.Device))
	if selected.IsAccelerator() {
		okColor.Fprintln(a.out, selected.String())
	} else {
		warnColor.Fprintln(a.out, selected.String())
	}
	if a.cfg.Backend != "onnx" {
		dimColor.Fprintf(a.out, "backend %s renders remotely and ignores the device\n", a.cfg.Backend)
	}
}
