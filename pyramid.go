// Package pyramid builds a multi-resolution level-of-detail pyramid
// from a sequence of CT slice images, and loads a resolution-reduced
// 3-D volume back out of one. It is the library surface consumed by
// an out-of-scope UI layer: scan a directory for its slice pattern,
// plan the levels that pattern will produce, build them, and load a
// volume from whichever level best fits a display budget.
package pyramid

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jikhanjung/ctpyramid/internal/ctxlog"
	"github.com/jikhanjung/ctpyramid/internal/diskspace"
	"github.com/jikhanjung/ctpyramid/internal/engine"
	"github.com/jikhanjung/ctpyramid/internal/errs"
	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
	"github.com/jikhanjung/ctpyramid/internal/pathguard"
	"github.com/jikhanjung/ctpyramid/internal/planner"
	"github.com/jikhanjung/ctpyramid/internal/progress"
	"github.com/jikhanjung/ctpyramid/internal/scanner"
	"github.com/jikhanjung/ctpyramid/internal/volume"
)

// outputExtension is the on-disk format for every generated level,
// per spec.md §6: dense, six-digit zero-padded, TIFF by default.
const outputExtension = "tif"

// SlicePattern describes an input slice sequence's naming convention,
// as produced by Scan.
type SlicePattern = scanner.Pattern

// WorkPlan is the ordered list of levels a Build call will produce,
// as produced by Plan.
type WorkPlan = planner.WorkPlan

// Level is one entry of a WorkPlan.
type Level = planner.Level

// Volume is a stack of normalized 8-bit slices, as produced by
// LoadVolume.
type Volume = volume.Volume

// LevelInfo describes one on-disk pyramid level discovered by
// LoadVolume.
type LevelInfo = volume.LevelInfo

// ProgressSink receives periodic updates during Build: the weighted
// work done and total so far, and a human-readable ETA string.
type ProgressSink func(weightedDone, weightedTotal float64, etaText string)

// LevelReport summarizes one produced level of a BuildReport.
type LevelReport struct {
	Index        int
	Produced     int
	Skipped      int
	SkippedPaths []string
}

// BuildReport summarizes a completed or cancelled Build call.
type BuildReport struct {
	Levels    []LevelReport
	Cancelled bool
}

// Scan infers directory's input slice sequence naming pattern.
func Scan(directory string) (*SlicePattern, error) {
	guard, err := pathguard.New(directory, false)
	if err != nil {
		return nil, err
	}
	return scanner.Scan(directory, guard)
}

// Plan computes the work plan pattern will produce. Level 1 is always
// planned (as long as its side is at least 2); from level 2 on, planning
// stops once the next level's side would fall under maxThumbnailSize
// (0 selects the spec default, 512) or below 2.
func Plan(pattern *SlicePattern, maxThumbnailSize int) *WorkPlan {
	return planner.Plan(pattern.SeqBegin, pattern.SeqEnd, pattern.Width, pattern.Height, maxThumbnailSize)
}

// Build produces every level of plan under directory's .thumbnail/
// subtree, draining one level's engine before the next level's tasks
// are submitted, per spec.md §4.9. cancel may be nil; sink may be
// nil.
func Build(directory string, pattern *SlicePattern, plan *WorkPlan, options *Options, sink ProgressSink, cancel *atomic.Bool) (*BuildReport, error) {
	opts := options.resolved()
	if cancel == nil {
		cancel = new(atomic.Bool)
	}
	log := ctxlog.New(os.Stderr, opts.LogLevel)

	guard, err := pathguard.New(directory, opts.FollowSymlinks)
	if err != nil {
		return nil, err
	}

	var lvlEngine engine.LevelEngine
	if opts.UseParallel {
		lvlEngine = &engine.ParallelEngine{Workers: opts.WorkerCount, Log: log}
		log.Infof("build: using parallel engine with %d workers", opts.WorkerCount)
	} else {
		lvlEngine = &engine.SequentialEngine{Log: log}
		log.Infof("build: using sequential engine (parallel disabled)")
	}

	var firstLevelCount int
	if len(plan.Levels) > 0 {
		firstLevelCount = plan.Levels[0].Count
	}
	tracker := progress.New(plan.WeightedTotalWork, firstLevelCount, opts.SampleSize)

	report := &BuildReport{}
	sourceDir := directory
	fromInputPattern := true
	// inputCount is the number of source files the level about to run
	// will pair up, not the planner's count_k (which is this level's
	// own *output* count, ⌈inputCount/2⌉). Level 1 reads the original
	// slice sequence; level k >= 2 reads level k-1's actual output.
	inputCount := pattern.Count()

	for _, lvl := range plan.Levels {
		if cancel.Load() {
			report.Cancelled = true
			break
		}
		tracker.BeginLevel(lvl.Index)

		destDir, err := guard.EnsureDir(filepath.Join(directory, ".thumbnail", fmt.Sprint(lvl.Index)))
		if err != nil {
			return report, err
		}

		if free, ok := diskspace.Free(destDir); ok {
			if needed := estimateLevelBytes(lvl); free < needed {
				return report, diskFullError(lvl.Index)
			}
		}

		if !fromInputPattern {
			// Recount actual files for levels >= 2: missing outputs
			// from the previous level shorten this one, per spec.md
			// §4.9 step 2.
			n, err := countDenseFiles(sourceDir)
			if err != nil {
				return report, err
			}
			inputCount = n
		}

		tasks := buildTasks(sourceDir, destDir, pattern, fromInputPattern, inputCount, lvl, opts)

		lastReport := time.Time{}
		outcome := lvlEngine.Run(tasks, cancel, func(r engine.Result) {
			tracker.CompleteTask(lvl.Weight)
			if sink == nil {
				return
			}
			if time.Since(lastReport) >= 100*time.Millisecond {
				sink(tracker.DoneWeighted(), tracker.TotalWeighted(), tracker.ETA())
				lastReport = time.Now()
			}
		})

		report.Levels = append(report.Levels, LevelReport{
			Index:        lvl.Index,
			Produced:     len(outcome.Results),
			Skipped:      outcome.Errors.Total,
			SkippedPaths: outcome.Errors.FirstPaths,
		})

		if outcome.FatalErr != nil {
			return report, outcome.FatalErr
		}
		if outcome.Cancelled {
			report.Cancelled = true
			break
		}

		sourceDir = destDir
		fromInputPattern = false
	}

	if sink != nil && !report.Cancelled {
		sink(tracker.DoneWeighted(), tracker.TotalWeighted(), tracker.ETA())
	}
	return report, nil
}

// LoadVolume reads the pyramid level that best fits maxThumbnailSize
// (the display threshold, not the build-time stop size) under
// directory and stacks it into a Volume.
func LoadVolume(directory string, maxThumbnailSize int) (*Volume, error) {
	if maxThumbnailSize <= 0 {
		maxThumbnailSize = DefaultMaxThumbnailSize
	}
	return volume.Load(directory, maxThumbnailSize)
}

func buildTasks(sourceDir, destDir string, pattern *SlicePattern, fromInputPattern bool, inputCount int, lvl Level, opts *Options) []engine.Task {
	maxSide := lvl.Width
	if lvl.Height > maxSide {
		maxSide = lvl.Height
	}
	keepInMemory := maxSide < opts.MemoryLoadCeiling

	sourcePath := func(n int) string {
		if fromInputPattern {
			return filepath.Join(sourceDir, pattern.FilenameFor(pattern.SeqBegin+n))
		}
		return filepath.Join(sourceDir, denseFilename(n))
	}

	pairs := (inputCount + 1) / 2
	tasks := make([]engine.Task, 0, pairs)
	for i := 0; i < pairs; i++ {
		pathA := sourcePath(2 * i)
		pathB := ""
		if 2*i+1 < inputCount {
			pathB = sourcePath(2*i + 1)
		}
		tasks = append(tasks, engine.Task{
			Index:       i,
			PathA:       pathA,
			PathB:       pathB,
			OutputPath:  filepath.Join(destDir, denseFilename(i)),
			Weight:      lvl.Weight,
			Compression: opts.OutputCompression,
			KeepPixels:  keepInMemory,
		})
	}
	return tasks
}

func denseFilename(n int) string {
	return fmt.Sprintf("%06d.%s", n, outputExtension)
}

// countDenseFiles counts the supported-format files directly inside
// dir, used to recount an intermediate level's actual output before
// planning the next level's pairs.
func countDenseFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if len(ext) > 0 {
			ext = ext[1:]
		}
		if imgcodec.SupportedExtensions[ext] {
			n++
		}
	}
	return n, nil
}

// estimateLevelBytes estimates a level's total output footprint for
// the pre-write disk-space guard: one byte per pixel times file
// count (8-bit TIFF is the common case; this is deliberately a rough
// floor, not an exact prediction).
func estimateLevelBytes(lvl Level) uint64 {
	return uint64(lvl.Width) * uint64(lvl.Height) * uint64(lvl.Count)
}

func diskFullError(levelIndex int) *errs.Error {
	return errs.New(errs.KindDiskFull, fmt.Sprintf("not enough free space to write level %d", levelIndex))
}
