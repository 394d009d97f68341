// Command ctpyramid builds and inspects CT slice pyramids from the
// command line.
//
// Usage:
//
//	ctpyramid scan <directory>                 Report the detected slice naming pattern
//	ctpyramid plan <directory> [options]       Report the levels a build would produce
//	ctpyramid build <directory> [options]      Build the pyramid under <directory>/.thumbnail
//	ctpyramid load-volume <directory> [options] Report the level a viewer would load
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/jikhanjung/ctpyramid"
)

func flagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = runScan(os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "build":
		err = runBuild(os.Args[2:])
	case "load-volume":
		err = runLoadVolume(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "ctpyramid: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ctpyramid: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  ctpyramid scan <directory>
  ctpyramid plan <directory> [-max-size N]
  ctpyramid build <directory> [-max-size N] [-workers N] [-sequential] [-no-compression]
  ctpyramid load-volume <directory> [-max-size N]

Run "ctpyramid <command> -h" for command-specific options.
`)
}

// --- scan ---

func runScan(args []string) error {
	fs := flagSet("scan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("scan: missing directory\nUsage: ctpyramid scan <directory>")
	}
	dir := fs.Arg(0)

	pattern, err := pyramid.Scan(dir)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fmt.Printf("Prefix:    %s\n", pattern.Prefix)
	fmt.Printf("Extension: %s\n", pattern.Extension)
	fmt.Printf("Digits:    %d\n", pattern.Digits)
	fmt.Printf("Range:     %d-%d (%d slices)\n", pattern.SeqBegin, pattern.SeqEnd, pattern.Count())
	fmt.Printf("Size:      %d x %d\n", pattern.Width, pattern.Height)
	return nil
}

// --- plan ---

func runPlan(args []string) error {
	fs := flagSet("plan")
	maxSize := fs.Int("max-size", 0, "level-stop threshold on the longer side (0 = default, 512)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("plan: missing directory\nUsage: ctpyramid plan <directory> [-max-size N]")
	}
	dir := fs.Arg(0)

	pattern, err := pyramid.Scan(dir)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	plan := pyramid.Plan(pattern, *maxSize)

	for _, lvl := range plan.Levels {
		fmt.Printf("Level %d: %d x %d, %d slices, weight %.4f\n", lvl.Index, lvl.Width, lvl.Height, lvl.Count, lvl.Weight)
	}
	fmt.Printf("Weighted total work: %.4f\n", plan.WeightedTotalWork)
	return nil
}

// --- build ---

func runBuild(args []string) error {
	fs := flagSet("build")
	maxSize := fs.Int("max-size", 0, "level-stop threshold on the longer side (0 = default, 512)")
	workers := fs.Int("workers", 0, "parallel worker count (0 = default)")
	sequential := fs.Bool("sequential", false, "disable the parallel engine")
	noCompression := fs.Bool("no-compression", false, "disable output compression")
	followSymlinks := fs.Bool("follow-symlinks", false, "allow symlinked input files")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("build: missing directory\nUsage: ctpyramid build <directory> [options]")
	}
	dir := fs.Arg(0)

	pattern, err := pyramid.Scan(dir)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	plan := pyramid.Plan(pattern, *maxSize)

	opts := pyramid.DefaultOptions()
	opts.MaxThumbnailSize = *maxSize
	opts.UseParallel = !*sequential
	opts.WorkerCount = *workers
	opts.OutputCompression = !*noCompression
	opts.FollowSymlinks = *followSymlinks

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancel := new(atomic.Bool)
	go func() {
		<-ctx.Done()
		cancel.Store(true)
	}()

	var sink pyramid.ProgressSink
	if !*quiet {
		sink = func(done, total float64, eta string) {
			fmt.Fprintf(os.Stderr, "\r%.1f/%.1f weighted units, ETA %s        ", done, total, eta)
		}
	}

	report, err := pyramid.Build(dir, pattern, plan, opts, sink, cancel)
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	for _, lr := range report.Levels {
		fmt.Printf("Level %d: %d produced, %d skipped\n", lr.Index, lr.Produced, lr.Skipped)
		for _, p := range lr.SkippedPaths {
			fmt.Printf("  skipped: %s\n", p)
		}
	}
	if report.Cancelled {
		return fmt.Errorf("build: cancelled")
	}
	return nil
}

// --- load-volume ---

func runLoadVolume(args []string) error {
	fs := flagSet("load-volume")
	maxSize := fs.Int("max-size", 0, "display threshold on the longer side (0 = default, 512)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("load-volume: missing directory\nUsage: ctpyramid load-volume <directory> [-max-size N]")
	}
	dir := fs.Arg(0)

	vol, err := pyramid.LoadVolume(dir, *maxSize)
	if err != nil {
		return fmt.Errorf("load-volume: %w", err)
	}

	fmt.Printf("Selected level: %d\n", vol.SelectedLevel)
	fmt.Printf("Dimensions:     %d x %d x %d\n", vol.Width, vol.Height, vol.Count)
	for _, lvl := range vol.Levels {
		fmt.Printf("  level %d: %d x %d, %d slices\n", lvl.Index, lvl.Width, lvl.Height, lvl.Count)
	}
	return nil
}
