package autocorr

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/floats"

	"github.com/usnistgov/autocorr/internal/corrdb"
)

// TraceSaver is the persistence capability: given a trace and its
// acquisition parameters, it writes them to durable storage. Each saved
// measurement lands in a fresh date/run-numbered directory below BasePath,
// as an ASCII table plus a numpy copy of the counts.
type TraceSaver struct {
	BasePath string
	db       *corrdb.Connection
	lock     sync.Mutex
}

// NewTraceSaver creates a saver writing below basePath.
func NewTraceSaver(basePath string) *TraceSaver {
	return &TraceSaver{BasePath: basePath}
}

// SetDB attaches a database connection so each save is also recorded there.
// A nil connection (the default) disables recording.
func (ts *TraceSaver) SetDB(conn *corrdb.Connection) {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	ts.db = conn
}

// Save writes the trace to a new run directory and returns the path of the
// ASCII file written. The label becomes part of the filenames; an empty
// label saves as plain "correlation". Database recording failures are
// logged, not returned: a missing database must never lose a measurement.
func (ts *TraceSaver) Save(trace []CountType, params AcquisitionParameters, measurementID, label string) (string, error) {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	filenamePattern, err := makeDirectory(ts.BasePath)
	if err != nil {
		return "", fmt.Errorf("could not make directory: %w", err)
	}
	filelabel := "correlation"
	if len(label) > 0 {
		filelabel = label + "_correlation"
	}
	timestamp := time.Now()

	asciiName := fmt.Sprintf(filenamePattern, filelabel, "txt")
	if err := writeASCIITrace(asciiName, trace, params, measurementID, timestamp); err != nil {
		return "", err
	}
	npyName := fmt.Sprintf(filenamePattern, filelabel, "npy")
	if err := writeNpyTrace(npyName, trace); err != nil {
		return "", err
	}

	if ts.db != nil {
		ts.db.RecordMeasurement(&corrdb.MeasurementMessage{
			ID:          measurementID,
			Label:       filelabel,
			Filename:    asciiName,
			CountLength: params.CountLength,
			BinWidthPS:  params.BinWidth,
			RefreshTime: params.RefreshTime.Seconds(),
			NBins:       len(trace),
			Saved:       timestamp,
		})
	}
	return asciiName, nil
}

// DelayAxis returns the delay value (picoseconds) of each bin for a trace of
// length n. Bins are spaced exactly binWidth apart with zero delay at index
// n/2, the exact middle for the usual odd (2n+1) device lengths.
func DelayAxis(n int, binWidth float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{0}
	}
	start := -float64(n/2) * binWidth
	axis := make([]float64, n)
	floats.Span(axis, start, start+float64(n-1)*binWidth)
	return axis
}

// writeASCIITrace writes a two-column delay/counts table with a #-header.
func writeASCIITrace(filename string, trace []CountType, params AcquisitionParameters,
	measurementID string, timestamp time.Time) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create trace file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# Correlation trace saved %s\n", timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "# Measurement ID: %s\n", measurementID)
	fmt.Fprintf(w, "# Count length: %d\n", params.CountLength)
	fmt.Fprintf(w, "# Bin width (ps): %g\n", params.BinWidth)
	fmt.Fprintf(w, "# Refresh time (s): %g\n", params.RefreshTime.Seconds())
	fmt.Fprintf(w, "# delay (ps)\tcounts\n")
	axis := DelayAxis(len(trace), params.BinWidth)
	for i, c := range trace {
		fmt.Fprintf(w, "%.6e\t%d\n", axis[i], c)
	}
	return w.Flush()
}

// writeNpyTrace writes the counts as a 1-D int64 numpy array.
func writeNpyTrace(filename string, trace []CountType) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create npy file: %w", err)
	}
	defer f.Close()
	return npyio.Write(f, countsToInt64(trace))
}

// makeDirectory creates a directory of the form basepath/20060102/0000 where
// the 4-digit subdirectory counts separate saving occasions. It also returns
// the formatting code for use in an Sprintf call,
// basepath/20060102/0000/20060102_run0000_%s.%s, and an error, if any.
func makeDirectory(basepath string) (string, error) {
	if len(basepath) == 0 {
		return "", fmt.Errorf("BasePath is the empty string")
	}
	today := time.Now().Format("20060102")
	todayDir := fmt.Sprintf("%s/%s", basepath, today)
	if err := os.MkdirAll(todayDir, 0755); err != nil {
		return "", err
	}
	for i := 0; i < 10000; i++ {
		thisDir := fmt.Sprintf("%s/%4.4d", todayDir, i)
		_, err := os.Stat(thisDir)
		if os.IsNotExist(err) {
			if err2 := os.MkdirAll(thisDir, 0755); err2 != nil {
				return "", err2
			}
			return fmt.Sprintf("%s/%s_run%4.4d_%%s.%%s", thisDir, today, i), nil
		}
	}
	return "", fmt.Errorf("out of 4-digit ID numbers for today in %s", todayDir)
}
