// Package progress implements the build's weighted progress tracker
// and three-stage ETA sampler, per spec.md §4.8. It is mutated only
// by a level engine's aggregator goroutine; nothing in this package
// is safe for concurrent writers.
package progress

import (
	"fmt"
	"math"
	"time"
)

// Phase is the tracker's sampling state machine, applied only while
// the first (largest) level is building.
type Phase int

const (
	Stage1 Phase = iota
	Stage2
	Stage3
	Steady
)

// DefaultSampleSize is the floor of the §4.8 stage_size formula:
// SampleSize never returns less than this.
const DefaultSampleSize = 20

// SampleSize computes spec.md §4.8's stage_size default:
// max(20, min(30, ceil(0.02 * unweightedTotal))).
func SampleSize(unweightedTotal int) int {
	raw := int(math.Ceil(0.02 * float64(unweightedTotal)))
	if raw > 30 {
		raw = 30
	}
	if raw < DefaultSampleSize {
		raw = DefaultSampleSize
	}
	return raw
}

// Tracker accumulates weighted progress across a build and, while on
// level 1, runs the three-stage ETA sampler.
type Tracker struct {
	totalWeighted float64
	doneWeighted  float64
	startedAt     time.Time

	sampleSize int
	sampling   bool // only true while on level 1
	phase      Phase
	stageStart time.Time
	completed  int // unweighted tasks finished since BeginLevel(1)

	stage1Estimate float64
	speedPerSec    float64 // weighted units/sec once armed; 0 until then
}

// New builds a Tracker for a build whose total weighted work is
// totalWeighted and whose first level has unweightedTotal tasks (used
// to size the sampler, per spec.md §4.8).
func New(totalWeighted float64, unweightedTotal, sampleSizeOverride int) *Tracker {
	size := sampleSizeOverride
	if size <= 0 {
		size = SampleSize(unweightedTotal)
	}
	now := time.Now()
	return &Tracker{
		totalWeighted: totalWeighted,
		startedAt:     now,
		stageStart:    now,
		sampleSize:    size,
		sampling:      true,
		phase:         Stage1,
	}
}

// BeginLevel resets the sampler's eligibility: only level 1 samples.
func (t *Tracker) BeginLevel(levelIndex int) {
	t.sampling = levelIndex == 1
	t.completed = 0
	if t.sampling {
		t.phase = Stage1
		t.stageStart = time.Now()
	} else if t.phase != Steady {
		t.phase = Steady
	}
}

// CompleteTask records one finished pair at the given level weight,
// advancing the sampler's stage machine when sampling is active.
func (t *Tracker) CompleteTask(weight float64) {
	t.doneWeighted += weight
	if !t.sampling {
		return
	}
	t.completed++
	t.advanceSampling(weight)
}

func (t *Tracker) advanceSampling(weight float64) {
	elapsed := time.Since(t.stageStart).Seconds()
	switch {
	case t.phase == Stage1 && t.completed == t.sampleSize:
		if elapsed > 0 {
			t.speedPerSec = (float64(t.sampleSize) * weight) / elapsed
		}
		t.stage1Estimate = t.estimateTotalSeconds()
		t.phase = Stage2
	case t.phase == Stage2 && t.completed == 2*t.sampleSize:
		if elapsed > 0 {
			t.speedPerSec = (float64(2*t.sampleSize) * weight) / elapsed
		}
		t.phase = Stage3
	case t.phase == Stage3 && t.completed >= 3*t.sampleSize:
		if elapsed > 0 {
			t.speedPerSec = (float64(3*t.sampleSize) * weight) / elapsed
		}
		stage3Estimate := t.estimateTotalSeconds()
		if t.stage1Estimate > 0 && stage3Estimate > 1.5*t.stage1Estimate {
			trend := stage3Estimate / t.stage1Estimate
			adjusted := stage3Estimate * (1 + (trend-1)*0.3)
			if adjusted > 0 {
				t.speedPerSec = t.totalWeighted / adjusted
			}
		}
		t.phase = Steady
		t.sampling = false
	}
}

// estimateTotalSeconds projects the current speed across the whole
// build's weighted work.
func (t *Tracker) estimateTotalSeconds() float64 {
	if t.speedPerSec <= 0 {
		return 0
	}
	return t.totalWeighted / t.speedPerSec
}

// DoneWeighted, TotalWeighted expose the raw accumulators for
// callers that want the fraction directly (e.g. a progress bar).
func (t *Tracker) DoneWeighted() float64  { return t.doneWeighted }
func (t *Tracker) TotalWeighted() float64 { return t.totalWeighted }

// ETA returns the human-readable estimate text, per spec.md §4.8:
// "Estimating…" until a speed has been measured, otherwise the
// remaining time formatted by FormatDuration.
func (t *Tracker) ETA() string {
	if t.speedPerSec <= 0 {
		return "Estimating…"
	}
	remaining := t.totalWeighted - t.doneWeighted
	if remaining < 0 {
		remaining = 0
	}
	return FormatDuration(remaining / t.speedPerSec)
}

// FormatDuration renders seconds as "Xs", "Xm Ys", or "Xh Ym",
// thresholds at 60 and 3600 seconds per spec.md §4.8.
func FormatDuration(seconds float64) string {
	s := int(seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}
