package pyramid

import (
	"runtime"

	"github.com/jikhanjung/ctpyramid/internal/ctxlog"
)

// Options controls how Build produces a pyramid and how LoadVolume
// selects a level, per spec.md §6.
type Options struct {
	// MaxThumbnailSize is the level-stop threshold on the longer side
	// (default 512).
	MaxThumbnailSize int

	// MemoryLoadCeiling is the smallest side below which produced
	// slices are also returned in memory during Build (default equal
	// to MaxThumbnailSize).
	MemoryLoadCeiling int

	// UseParallel selects the Parallel Level Engine over the
	// Sequential Fallback (default true).
	UseParallel bool

	// WorkerCount is the parallel engine's worker pool size (default
	// min(runtime.NumCPU(), 8)). Ignored when UseParallel is false.
	WorkerCount int

	// SampleSize is the ETA sampler's base stage size (default: the
	// §4.8 auto formula from the level 1 task count).
	SampleSize int

	// OutputCompression enables TIFF compression on written levels
	// (default true).
	OutputCompression bool

	// FollowSymlinks relaxes the Path Guard to allow symlinked input
	// files (default false).
	FollowSymlinks bool

	// LogLevel controls how much the build logs (default LevelInfo).
	LogLevel ctxlog.Level
}

// DefaultMaxThumbnailSize mirrors spec.md §6's default.
const DefaultMaxThumbnailSize = 512

// DefaultOptions returns the pyramid builder's default configuration.
func DefaultOptions() *Options {
	return &Options{
		MaxThumbnailSize:  DefaultMaxThumbnailSize,
		MemoryLoadCeiling: DefaultMaxThumbnailSize,
		UseParallel:       true,
		WorkerCount:       defaultWorkerCount(),
		SampleSize:        0, // 0 means auto, per the §4.8 formula
		OutputCompression: true,
		FollowSymlinks:    false,
		LogLevel:          ctxlog.LevelInfo,
	}
}

func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// resolved applies defaults to zero-valued fields a caller left unset,
// the way OptionsForPreset layers adjustments onto DefaultOptions.
func (o *Options) resolved() *Options {
	if o == nil {
		return DefaultOptions()
	}
	r := *o
	if r.MaxThumbnailSize <= 0 {
		r.MaxThumbnailSize = DefaultMaxThumbnailSize
	}
	if r.MemoryLoadCeiling <= 0 {
		r.MemoryLoadCeiling = r.MaxThumbnailSize
	}
	if r.WorkerCount <= 0 {
		r.WorkerCount = defaultWorkerCount()
	}
	return &r
}
