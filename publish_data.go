package autocorr

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/usnistgov/autocorr/internal/getbytes"
)

// TraceMessage is one trace snapshot queued for publication on the trace
// port.
type TraceMessage struct {
	MeasurementID string
	BinWidthPS    float64
	Counts        []CountType
}

// traceHeader is the JSON frame sent ahead of the binary payload.
type traceHeader struct {
	MeasurementID string
	BinWidthPS    float64
	Length        int
}

// traceMessageChan receives trace snapshots from the poll cycle.
var traceMessageChan chan TraceMessage

func init() {
	traceMessageChan = make(chan TraceMessage, 16)
}

// publishTrace queues a snapshot without blocking. Traces are a lossy
// telemetry stream: when no publisher is draining the channel, or a slow one
// falls behind, snapshots are dropped.
func publishTrace(measurementID string, binWidthPS float64, counts []CountType) {
	select {
	case traceMessageChan <- TraceMessage{
		MeasurementID: measurementID,
		BinWidthPS:    binWidthPS,
		Counts:        counts,
	}:
	default:
	}
}

// RunTracePublisher publishes each queued trace as a 4-frame ZMQ message:
// the topic "TRACE", a JSON header, the counts as little-endian int64, and
// the matching delay axis (picoseconds) as little-endian float64. It runs
// until the abort channel closes.
func RunTracePublisher(porttrace int, abort <-chan struct{}) error {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", porttrace)
	if err = pubSocket.Bind(hostname); err != nil {
		return err
	}

	for {
		select {
		case <-abort:
			return nil
		case msg := <-traceMessageChan:
			header, err := json.Marshal(traceHeader{
				MeasurementID: msg.MeasurementID,
				BinWidthPS:    msg.BinWidthPS,
				Length:        len(msg.Counts),
			})
			if err != nil {
				ProblemLogger.Printf("could not JSON-encode trace header: %v", err)
				continue
			}
			raw := getbytes.FromSliceInt64(countsToInt64(msg.Counts))
			axis := getbytes.FromSliceFloat64(DelayAxis(len(msg.Counts), msg.BinWidthPS))
			if _, err := pubSocket.SendMessage("TRACE", header, raw, axis); err != nil {
				ProblemLogger.Printf("could not publish trace: %v", err)
			}
		}
	}
}

func countsToInt64(counts []CountType) []int64 {
	out := make([]int64, len(counts))
	for i, c := range counts {
		out[i] = int64(c)
	}
	return out
}
