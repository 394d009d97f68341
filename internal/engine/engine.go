// Package engine runs one pyramid level's pair tasks to completion,
// either on a bounded worker pool (ParallelEngine) or on the calling
// goroutine (SequentialEngine), per spec.md §4.6/§4.7. Both share the
// same task execution, idempotence, and cancellation logic; they
// differ only in how task claims are distributed.
package engine

import (
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jikhanjung/ctpyramid/internal/ctxlog"
	"github.com/jikhanjung/ctpyramid/internal/errs"
	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
	"github.com/jikhanjung/ctpyramid/internal/pairproc"
)

// Task is one pair-processing unit: average PathA and PathB (if
// present) and write the downsampled result to OutputPath. KeepPixels
// requests that the decoded result also be returned in memory, for
// levels whose longer side is below the build's MemoryLoadCeiling.
type Task struct {
	Index       int
	PathA       string
	PathB       string // empty when this is the odd trailing task of a level
	OutputPath  string
	Weight      float64
	Compression bool
	KeepPixels  bool
}

// Result is one task's outcome. Exactly one of Err, Cancelled, or a
// successful write/load is set.
type Result struct {
	Index        int
	WasGenerated bool // false when the output already existed and was loaded instead
	Pixels       *imgcodec.Pixels
	Err          error
	Cancelled    bool
}

// ErrorSummary bounds how many failed task paths a level reports in
// full, per spec.md §7's "first N paths, then a count" policy.
type ErrorSummary struct {
	FirstPaths []string
	Total      int
}

const errorSummaryLimit = 5

// Outcome is a completed (or cancelled) level run.
type Outcome struct {
	Results   []Result // sorted by Index, successful tasks only (generated or loaded); skipped tasks are counted in Errors
	Cancelled bool
	Errors    ErrorSummary
	FatalErr  error // set when a task hit an output error (write/disk/permissions); level is abandoned
}

// OnComplete is called once per finished task, on the aggregator only
// (the sole goroutine permitted to mutate shared progress state, per
// spec.md §4.6).
type OnComplete func(Result)

// LevelEngine executes every task of one level and returns once all
// have either completed or been cancelled.
type LevelEngine interface {
	Run(tasks []Task, cancel *atomic.Bool, onComplete OnComplete) Outcome
}

// stallWatchdogInterval is how long the parallel engine waits for a
// task completion before logging an advisory stall warning.
const stallWatchdogInterval = 60 * time.Second

// runTask executes one task's read/average/downsample/write pipeline,
// checking cancel at the three checkpoints spec.md §4.6 requires:
// pre-read, pre-compute, pre-write.
func runTask(t Task, cancel *atomic.Bool) Result {
	if cancel.Load() {
		return Result{Index: t.Index, Cancelled: true}
	}

	if _, statErr := os.Stat(t.OutputPath); statErr == nil {
		px, err := imgcodec.Read(t.OutputPath)
		if err != nil {
			return Result{Index: t.Index, Err: errs.Wrap(errs.KindCorruptedImage, "loading existing output "+t.OutputPath, err)}
		}
		r := Result{Index: t.Index, WasGenerated: false}
		if t.KeepPixels {
			r.Pixels = px
		}
		return r
	}

	if cancel.Load() {
		return Result{Index: t.Index, Cancelled: true}
	}

	a, errA := imgcodec.Read(t.PathA)
	var b *imgcodec.Pixels
	var errB error
	if t.PathB != "" {
		b, errB = imgcodec.Read(t.PathB)
	}
	switch {
	case errA != nil && (t.PathB == "" || errB != nil):
		// Neither member of the pair is readable; nothing to fall
		// back to. The level is unaffected (§4.5: "failure to read
		// inputs is likewise local and must not abort the level").
		if errA != nil {
			return Result{Index: t.Index, Err: errA}
		}
		return Result{Index: t.Index, Err: errB}
	case errA != nil:
		// A is missing or corrupted but B survived: treat B as the
		// sole member, same as the structurally-odd trailing pair.
		a, b = b, nil
	case errB != nil:
		// B is missing or corrupted but A survived.
		b = nil
	}

	if cancel.Load() {
		return Result{Index: t.Index, Cancelled: true}
	}

	out, err := pairproc.Process(a, b)
	if err != nil {
		return Result{Index: t.Index, Err: err}
	}

	if cancel.Load() {
		return Result{Index: t.Index, Cancelled: true}
	}

	if err := imgcodec.Write(out, t.OutputPath, t.Compression); err != nil {
		return Result{Index: t.Index, Err: errs.Wrap(errs.KindWriteFailed, "writing "+t.OutputPath, err)}
	}
	r := Result{Index: t.Index, WasGenerated: true}
	if t.KeepPixels {
		r.Pixels = out
	}
	return r
}

// classify routes a completed task into the aggregated Outcome,
// separating task-level input errors (logged and skipped, per
// spec.md §7) from output errors (fatal, signaled via fatal).
func classify(res Result, out *Outcome, fatal *atomic.Pointer[Result], log *ctxlog.Logger) {
	switch {
	case res.Cancelled:
		out.Cancelled = true
	case res.Err != nil:
		if errs.Is(res.Err, errs.KindWriteFailed) || errs.Is(res.Err, errs.KindDiskFull) || errs.Is(res.Err, errs.KindDirectoryNotWritable) {
			if fatal.CompareAndSwap(nil, &res) {
				out.FatalErr = res.Err
			}
			return
		}
		out.Errors.Total++
		if len(out.Errors.FirstPaths) < errorSummaryLimit {
			out.Errors.FirstPaths = append(out.Errors.FirstPaths, errorPath(res.Err))
		}
		log.Debugf("level task %d skipped: %v", res.Index, res.Err)
	default:
		out.Results = append(out.Results, res)
	}
}

func errorPath(err error) string {
	if e, ok := err.(*errs.Error); ok {
		return e.Message
	}
	return err.Error()
}

// SequentialEngine runs tasks one at a time on the calling goroutine,
// per spec.md §4.7. Its deterministic ordering makes it the test
// oracle for ParallelEngine.
type SequentialEngine struct {
	Log *ctxlog.Logger
}

func (e *SequentialEngine) Run(tasks []Task, cancel *atomic.Bool, onComplete OnComplete) Outcome {
	out := Outcome{}
	var fatal atomic.Pointer[Result]
	for _, t := range tasks {
		if fatal.Load() != nil {
			out.Cancelled = true
			break
		}
		res := runTask(t, cancel)
		onComplete(res)
		classify(res, &out, &fatal, e.Log)
	}
	if f := fatal.Load(); f != nil {
		out.Results = nil
	}
	sortResults(out.Results)
	return out
}

// ParallelEngine runs tasks on a bounded worker pool: each worker
// atomically claims the next task index, executes it, and hands the
// result to a single aggregator goroutine, per spec.md §4.6.
type ParallelEngine struct {
	Workers int // 0 means min(runtime.NumCPU(), 8)
	Log     *ctxlog.Logger
}

func (e *ParallelEngine) workerCount(n int) int {
	w := e.Workers
	if w <= 0 {
		w = runtime.NumCPU()
		if w > 8 {
			w = 8
		}
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

func (e *ParallelEngine) Run(tasks []Task, cancel *atomic.Bool, onComplete OnComplete) Outcome {
	if len(tasks) == 0 {
		return Outcome{}
	}

	numWorkers := e.workerCount(len(tasks))
	results := make(chan Result, len(tasks))

	var nextIdx atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := nextIdx.Add(1) - 1
				if i >= int64(len(tasks)) {
					return
				}
				results <- runTask(tasks[i], cancel)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := Outcome{}
	var fatal atomic.Pointer[Result]
	lastProgress := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case res, ok := <-results:
			if !ok {
				break loop
			}
			lastProgress = time.Now()
			onComplete(res)
			classify(res, &out, &fatal, e.Log)
			if fatal.Load() != nil {
				cancel.Store(true)
			}
		case <-ticker.C:
			if time.Since(lastProgress) >= stallWatchdogInterval {
				e.Log.Warnf("no task has completed in %s", stallWatchdogInterval)
			}
		}
	}

	if f := fatal.Load(); f != nil {
		out.Results = nil
	}
	sortResults(out.Results)
	return out
}

func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
}
