package autocorr

import (
	"fmt"
	"math"
	"math/rand"
)

// SimCorrelator is a Correlator that synthesizes plausible coincidence
// histograms in software. It stands in for a hardware time tagger during
// development and in tests.
type SimCorrelator struct {
	binWidth    float64 // picoseconds
	countLength int     // requested bins (trace is 2n+1 long)
	meanCounts  float64 // baseline counts per bin per trace
	status      int
	accumulated int // how many traces have been "integrated" since start

	rng *rand.Rand
}

// NewSimCorrelator creates a SimCorrelator with the given baseline intensity.
// A meanCounts of 0 selects a sensible default.
func NewSimCorrelator(meanCounts float64) *SimCorrelator {
	if meanCounts <= 0 {
		meanCounts = 100
	}
	return &SimCorrelator{
		meanCounts: meanCounts,
		status:     StatusUnconfigured,
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

// Constraints reports the simulated hardware limits. They match the limits of
// the time taggers this source imitates.
func (sc *SimCorrelator) Constraints() CorrelatorConstraints {
	return CorrelatorConstraints{
		MinChannels:    2,
		MaxChannels:    2,
		MinCountLength: 1,
		MinBinWidth:    100,
	}
}

// Configure sets the bin width (picoseconds) and number of requested bins.
func (sc *SimCorrelator) Configure(binWidth float64, countLength int) error {
	c := sc.Constraints()
	if binWidth < c.MinBinWidth {
		return fmt.Errorf("SimCorrelator.Configure: bin width %v ps < minimum %v ps", binWidth, c.MinBinWidth)
	}
	if countLength < c.MinCountLength {
		return fmt.Errorf("SimCorrelator.Configure: count length %d < minimum %d", countLength, c.MinCountLength)
	}
	sc.binWidth = binWidth
	sc.countLength = countLength
	sc.accumulated = 0
	sc.status = StatusIdle
	return nil
}

// StartMeasure begins a fresh accumulation. Repeated calls while running are
// no-ops.
func (sc *SimCorrelator) StartMeasure() error {
	if sc.status == StatusUnconfigured {
		return fmt.Errorf("SimCorrelator.StartMeasure: not configured")
	}
	if sc.status != StatusRunning {
		sc.accumulated = 0
		sc.status = StatusRunning
	}
	return nil
}

// StopMeasure halts accumulation.
func (sc *SimCorrelator) StopMeasure() error {
	if sc.status == StatusRunning || sc.status == StatusPaused {
		sc.status = StatusIdle
	}
	return nil
}

// PauseMeasure suspends accumulation without discarding the histogram.
func (sc *SimCorrelator) PauseMeasure() error {
	if sc.status == StatusRunning {
		sc.status = StatusPaused
	}
	return nil
}

// ContinueMeasure resumes a paused accumulation.
func (sc *SimCorrelator) ContinueMeasure() error {
	if sc.status == StatusPaused || sc.status == StatusIdle {
		sc.status = StatusRunning
	}
	return nil
}

// CountLength returns the trace length for the current configuration. Like
// the hardware it imitates, the trace has 2n+1 bins for n requested, so the
// zero-delay bin sits exactly in the middle.
func (sc *SimCorrelator) CountLength() int {
	return 2*sc.countLength + 1
}

// BinWidth returns the configured bin width in picoseconds.
func (sc *SimCorrelator) BinWidth() float64 {
	return sc.binWidth
}

// Status returns the device status using the MeasureStatus convention.
func (sc *SimCorrelator) Status() int {
	return sc.status
}

// DataTrace synthesizes the accumulated histogram: a flat coincidence
// background with Poisson-like noise and an antibunching dip at zero delay.
// Each call while running represents one further integration period, so
// counts grow roughly linearly with the number of calls.
func (sc *SimCorrelator) DataTrace() ([]CountType, error) {
	if sc.status == StatusUnconfigured {
		return nil, fmt.Errorf("SimCorrelator.DataTrace: not configured")
	}
	if sc.status == StatusRunning {
		sc.accumulated++
	}
	n := sc.CountLength()
	center := n / 2
	trace := make([]CountType, n)
	if sc.accumulated == 0 {
		return trace, nil
	}
	mean := sc.meanCounts * float64(sc.accumulated)
	// Dip width of ~5 bins: narrow enough that short traces still show it.
	const dipSigma = 5.0
	for i := range trace {
		dip := 1.0 - 0.8*math.Exp(-0.5*sqr(float64(i-center)/dipSigma))
		v := mean*dip + sc.rng.NormFloat64()*math.Sqrt(mean)
		if v < 0 {
			v = 0
		}
		trace[i] = CountType(v + 0.5)
	}
	return trace, nil
}

func sqr(x float64) float64 { return x * x }
