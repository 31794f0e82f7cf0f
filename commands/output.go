package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"paprika/core"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
	emphasisFont = color.New(color.Bold)
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	headerColor.Fprintf(w, "━━━ %s ━━━\n", title)
	fmt.Fprintln(w)
}

// progressPrinter renders download progress on one line.
type progressPrinter struct {
	w    io.Writer
	last time.Time
}

func (p *progressPrinter) update(file string, info core.ProgressInfo) {
	done := info.Total > 0 && info.Downloaded >= info.Total
	if !done && time.Since(p.last) < 250*time.Millisecond {
		return
	}
	p.last = time.Now()

	line := fmt.Sprintf("  ↓ %s %s", file, core.FormatBytes(info.Downloaded))
	if info.Total > 0 {
		line += fmt.Sprintf(" / %s (%.0f%%)", core.FormatBytes(info.Total), info.Percent)
	}
	if info.SpeedBytesPerSec > 0 {
		line += " " + core.FormatRate(info.SpeedBytesPerSec)
	}
	fmt.Fprintf(p.w, "\r%-72s", line)
	if done {
		fmt.Fprintln(p.w)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
