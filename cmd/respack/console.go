package main

import (
	"fmt"
	"io"
	"time"

	"respack/internal/history"
	"respack/internal/packer"
	"respack/internal/vpath"

	"github.com/fatih/color"
)

// consoleObserver prints one status line per directory.
type consoleObserver struct {
	packer.NopObserver
	out      io.Writer
	extended bool

	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
}

func newConsoleObserver(out io.Writer, extended bool) *consoleObserver {
	return &consoleObserver{
		out:      out,
		extended: extended,
		green:    color.New(color.FgGreen).SprintFunc(),
		red:      color.New(color.FgRed).SprintFunc(),
		yellow:   color.New(color.FgYellow).SprintFunc(),
	}
}

func (o *consoleObserver) OnStart(input, _ vpath.Path, fullRepack bool) {
	if fullRepack {
		fmt.Fprintf(o.out, "%s %s not available or changed, performing full repack\n", o.yellow("[full]"), input)
	}
}

func (o *consoleObserver) OnDirDone(res packer.DirResult) {
	fmt.Fprintf(o.out, "[%s - %.2f secs] - %s", res.Input, res.Duration.Seconds(), o.label(res.Status))
	if o.extended && res.Status != packer.StatusUnchanged {
		fmt.Fprintf(o.out, " definitions: %d", res.Definitions)
		if res.Flags != "" {
			fmt.Fprintf(o.out, " flags: %s", res.Flags)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(o.out, " (%s)", res.Error)
	}
	fmt.Fprintln(o.out)
}

func (o *consoleObserver) OnFinish(report *packer.Report) {
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	fmt.Fprintf(o.out, "%d of %d directories repacked in %.2f secs", report.Repacked(), len(report.Dirs), elapsed.Seconds())
	if report.Canceled {
		fmt.Fprint(o.out, " ", o.yellow("(canceled)"))
	}
	fmt.Fprintln(o.out)
}

func (o *consoleObserver) label(s packer.Status) string {
	switch s {
	case packer.StatusRepacked:
		return o.green("[REPACKED]")
	case packer.StatusFailed:
		return o.red("[FAILED]")
	default:
		return "[unchanged]"
	}
}

// failedDirs counts directories that did not pack.
func failedDirs(report *packer.Report) int {
	n := 0
	for _, d := range report.Dirs {
		if d.Status == packer.StatusFailed {
			n++
		}
	}
	return n
}

func printRuns(out io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	for _, run := range runs {
		printRunLine(out, run)
	}
}

func printRunLine(out io.Writer, run *history.Run) {
	tags := ""
	if run.FullRepack {
		tags += " " + color.YellowString("full")
	}
	if run.Canceled {
		tags += " " + color.RedString("canceled")
	}
	if n := failedDirs(&run.Report); n > 0 {
		tags += " " + color.RedString("%d failed", n)
	}
	fmt.Fprintf(out, "%s  %s  %d/%d repacked  %.2fs%s\n",
		color.CyanString(run.ID),
		run.StartedAt.Local().Format(time.DateTime),
		run.Repacked(), len(run.Dirs),
		run.FinishedAt.Sub(run.StartedAt).Seconds(),
		tags,
	)
}

func printRunDetail(out io.Writer, run *history.Run) {
	printRunLine(out, run)
	fmt.Fprintf(out, "  input:  %s\n  output: %s\n", run.Input, run.Output)
	obs := newConsoleObserver(out, true)
	for _, d := range run.Dirs {
		fmt.Fprint(out, "  ")
		obs.OnDirDone(d)
	}
}
