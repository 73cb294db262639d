package autocorr

// CountType holds one histogram bin's accumulated coincidence counts.
type CountType int64

// CorrelatorConstraints are the hardware limits of a correlation counter,
// queried from the device and treated as immutable.
type CorrelatorConstraints struct {
	MinChannels    int
	MaxChannels    int
	MinCountLength int
	MinBinWidth    float64 // picoseconds
}

// Correlator is the interface for hardware (or simulated) time-correlation
// counters. A Correlator accumulates a histogram of time delays between two
// detector channels and hands it out as a trace on demand.
//
// The start/stop/pause/continue calls are idempotent with respect to repeated
// calls in the same logical state. DataTrace is synchronous and may block for
// up to one integration period.
type Correlator interface {
	// Configure sets the histogram bin width (picoseconds) and the number of
	// requested bins. It must be called before StartMeasure.
	Configure(binWidth float64, countLength int) error

	StartMeasure() error
	StopMeasure() error
	PauseMeasure() error
	ContinueMeasure() error

	// DataTrace returns the latest accumulated histogram. Its length is the
	// device-reported CountLength, which may differ from the configured
	// number of bins (typically 2n+1, to center the zero-delay bin).
	DataTrace() ([]CountType, error)

	// CountLength returns the length of the trace the device will produce
	// for the current configuration.
	CountLength() int

	// BinWidth returns the currently configured bin width in picoseconds.
	BinWidth() float64

	Constraints() CorrelatorConstraints
}

// MeasureStatus values reported by correlation counters.
const (
	StatusUnconfigured = 0
	StatusIdle         = 1
	StatusRunning      = 2
	StatusPaused       = 3
	StatusError        = -1
)
