package autocorr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunState is the externally visible state of a CorrelationController. The
// controller is the single source of truth for whether polling continues.
type RunState int

// The possible RunState values.
const (
	Idle    RunState = iota // never started since construction
	Running                 // poll cycle is active
	Paused                  // stopped after running; resumable via Continue
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	}
	return "Unknown"
}

// AcquisitionParameters hold the three knobs of a correlation measurement.
type AcquisitionParameters struct {
	CountLength int           // requested histogram bins
	BinWidth    float64       // picoseconds per bin
	RefreshTime time.Duration // wall-clock period between device polls
}

// Default acquisition parameters, applied at construction and overridden by
// any persisted values.
const (
	DefaultCountLength = 50
	DefaultBinWidth    = 500.0
	DefaultRefreshTime = 1000 * time.Millisecond
)

// Errors returned for rejected parameter values. The prior value is always
// retained.
var (
	ErrInvalidCountLength = errors.New("count length must be larger than 0")
	ErrBinWidthTooSmall   = errors.New("bin width below hardware minimum")
	ErrInvalidRefreshTime = errors.New("refresh time must be positive")
	ErrNotResumable       = errors.New("no paused measurement to continue")
)

// CorrelationController coordinates one Correlator device: it owns the
// acquisition parameters, a start/stop/pause state machine, and a repeating
// poll cycle that pulls traces from the device and republishes them to
// observers.
//
// Two locks are involved. controlLock serializes the control operations
// (Start, Stop, Continue and the parameter setters) so that two
// stop-reconfigure-restart transactions can never overlap. stateLock guards
// the run state and the trace buffer; it is held only for state checks and
// trace overwrites, never across the poll sleep or a device call.
type CorrelationController struct {
	device Correlator
	saver  *TraceSaver

	controlLock sync.Mutex
	stateLock   sync.Mutex

	state         RunState
	stopRequested bool
	params        AcquisitionParameters
	trace         []CountType
	saving        bool
	measurementID string // fresh ULID per Start

	runDone   sync.WaitGroup
	observers observerList
}

// NewCorrelationController binds a controller to its device and persistence
// capabilities. The saver may be nil, in which case SaveTrace fails politely.
func NewCorrelationController(device Correlator, saver *TraceSaver) *CorrelationController {
	cc := &CorrelationController{
		device: device,
		saver:  saver,
		params: AcquisitionParameters{
			CountLength: DefaultCountLength,
			BinWidth:    DefaultBinWidth,
			RefreshTime: DefaultRefreshTime,
		},
	}
	return cc
}

// Subscribe registers an observer for controller notifications.
func (cc *CorrelationController) Subscribe() <-chan Notification {
	return cc.observers.Subscribe()
}

// Unsubscribe removes a previously subscribed observer.
func (cc *CorrelationController) Unsubscribe(ch <-chan Notification) {
	cc.observers.Unsubscribe(ch)
}

// State returns the current run state.
func (cc *CorrelationController) State() RunState {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	return cc.state
}

// Running tells whether the poll cycle is active.
func (cc *CorrelationController) Running() bool {
	return cc.State() == Running
}

// Parameters returns a copy of the current acquisition parameters.
func (cc *CorrelationController) Parameters() AcquisitionParameters {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	return cc.params
}

// Trace returns a snapshot (copy) of the latest trace. Observers never see
// the live buffer, so a concurrent poll cannot tear their reads.
func (cc *CorrelationController) Trace() []CountType {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	snap := make([]CountType, len(cc.trace))
	copy(snap, cc.trace)
	return snap
}

// MeasurementID returns the ULID assigned at the most recent Start, or ""
// before the first start.
func (cc *CorrelationController) MeasurementID() string {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	return cc.measurementID
}

// HardwareConstraints fetches the device limits. Not cached; the device
// answers on demand.
func (cc *CorrelationController) HardwareConstraints() CorrelatorConstraints {
	return cc.device.Constraints()
}

// SavingState reports whether continuous saving is enabled.
func (cc *CorrelationController) SavingState() bool {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	return cc.saving
}

// SetSavingState enables or disables continuous saving.
func (cc *CorrelationController) SetSavingState(on bool) {
	cc.stateLock.Lock()
	defer cc.stateLock.Unlock()
	cc.saving = on
}

// Start configures the device with the current parameters and enters the
// poll cycle. Starting an already running controller is a no-op. If the
// device rejects the configuration, the controller emits StatusChanged(false)
// and remains stopped.
func (cc *CorrelationController) Start() error {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()
	return cc.start()
}

// start does the work of Start. Callers hold controlLock.
func (cc *CorrelationController) start() error {
	cc.stateLock.Lock()
	if cc.state == Running {
		cc.stateLock.Unlock()
		return nil
	}
	params := cc.params
	cc.stateLock.Unlock()
	cc.runDone.Wait() // let a winding-down poll goroutine finish its device calls

	if err := cc.device.Configure(params.BinWidth, params.CountLength); err != nil {
		ProblemLogger.Printf("device rejected configuration (bin width %v ps, %d bins): %v",
			params.BinWidth, params.CountLength, err)
		cc.notifyStatus(false)
		return fmt.Errorf("configure correlator: %w", err)
	}
	if err := cc.device.StartMeasure(); err != nil {
		ProblemLogger.Printf("device failed to start: %v", err)
		cc.notifyStatus(false)
		return fmt.Errorf("start correlator: %w", err)
	}

	n := cc.device.CountLength()
	cc.stateLock.Lock()
	cc.trace = make([]CountType, n) // fresh, zero-filled
	cc.state = Running
	cc.stopRequested = false
	cc.measurementID = ulid.Make().String()
	cc.runDone.Add(1)
	cc.stateLock.Unlock()

	cc.notifyStatus(true)
	go cc.pollLoop()
	return nil
}

// Stop requests a cooperative stop and waits for the poll cycle to quiesce.
// The flag is consulted only at the top of a poll iteration, so the device
// may keep measuring for up to one refresh time after Stop is called.
// Stopping a controller that is not running is a no-op.
func (cc *CorrelationController) Stop() {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()
	cc.stop()
}

// stop does the work of Stop. Callers hold controlLock.
func (cc *CorrelationController) stop() {
	cc.stateLock.Lock()
	if cc.state != Running {
		cc.stateLock.Unlock()
		return
	}
	cc.stopRequested = true
	cc.stateLock.Unlock()
	cc.runDone.Wait()
}

// Continue resumes a paused measurement: the device keeps its accumulated
// histogram and the trace buffer is not reallocated. Continue while running
// is a no-op; Continue on a controller that never ran is rejected without
// touching the device.
func (cc *CorrelationController) Continue() error {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()

	cc.stateLock.Lock()
	state := cc.state
	cc.stateLock.Unlock()
	switch state {
	case Running:
		return nil
	case Idle:
		ProblemLogger.Printf("Continue requested but no measurement was ever started")
		return ErrNotResumable
	}
	cc.runDone.Wait()

	if err := cc.device.ContinueMeasure(); err != nil {
		ProblemLogger.Printf("device failed to continue: %v", err)
		cc.notifyStatus(false)
		return fmt.Errorf("continue correlator: %w", err)
	}
	cc.stateLock.Lock()
	cc.state = Running
	cc.stopRequested = false
	cc.runDone.Add(1)
	cc.stateLock.Unlock()

	cc.notifyStatus(true)
	go cc.pollLoop()
	return nil
}

// SetCountLength changes the number of requested bins. If the controller is
// running, the change is a full stop-reconfigure-restart transaction; a
// partial update mid-poll cannot happen. Non-positive values are rejected
// with a warning and the prior value is retained. The in-effect value is
// returned and announced to observers either way.
func (cc *CorrelationController) SetCountLength(n int) (int, error) {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()

	var err error
	if n <= 0 {
		ProblemLogger.Printf("count length %d rejected: must be larger than 0", n)
		err = ErrInvalidCountLength
	} else {
		err = cc.applyParameter(func(p *AcquisitionParameters) { p.CountLength = n })
	}
	cur := cc.Parameters().CountLength
	cc.observers.broadcast(Notification{Kind: CountLengthChanged, CountLength: cur})
	sendClientUpdate(ClientUpdate{tag: "COUNTLENGTH", state: cur})
	return cur, err
}

// SetBinWidth changes the histogram bin width (picoseconds), with the same
// restart transaction as SetCountLength. Values below the device minimum are
// rejected with a warning.
func (cc *CorrelationController) SetBinWidth(w float64) (float64, error) {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()

	var err error
	if min := cc.device.Constraints().MinBinWidth; w < min {
		ProblemLogger.Printf("bin width %v ps rejected: hardware minimum is %v ps", w, min)
		err = ErrBinWidthTooSmall
	} else {
		err = cc.applyParameter(func(p *AcquisitionParameters) { p.BinWidth = w })
	}
	cur := cc.Parameters().BinWidth
	cc.observers.broadcast(Notification{Kind: BinWidthChanged, BinWidth: cur})
	sendClientUpdate(ClientUpdate{tag: "BINWIDTH", state: cur})
	return cur, err
}

// SetRefreshTime changes the poll period. The running cycle is not restarted:
// the loop reads the period under the lock each iteration, so a new value
// takes effect on the next poll.
func (cc *CorrelationController) SetRefreshTime(d time.Duration) (time.Duration, error) {
	cc.controlLock.Lock()
	defer cc.controlLock.Unlock()

	var err error
	if d <= 0 {
		ProblemLogger.Printf("refresh time %v rejected: must be positive", d)
		err = ErrInvalidRefreshTime
	} else {
		cc.stateLock.Lock()
		cc.params.RefreshTime = d
		cc.stateLock.Unlock()
	}
	cur := cc.Parameters().RefreshTime
	cc.observers.broadcast(Notification{Kind: RefreshTimeChanged, RefreshTime: cur})
	sendClientUpdate(ClientUpdate{tag: "REFRESHTIME", state: cur.Seconds()})
	return cur, err
}

// applyParameter runs one stop-set-restart transaction. Callers hold
// controlLock, so two transactions cannot interleave.
func (cc *CorrelationController) applyParameter(set func(*AcquisitionParameters)) error {
	wasRunning := cc.Running()
	cc.stop()
	cc.stateLock.Lock()
	set(&cc.params)
	cc.stateLock.Unlock()
	if wasRunning {
		return cc.start()
	}
	return nil
}

// SaveTrace hands the latest trace snapshot and parameters to the
// persistence capability and returns the location written.
func (cc *CorrelationController) SaveTrace(tag string) (string, error) {
	if cc.saver == nil {
		return "", fmt.Errorf("no trace saver configured")
	}
	cc.stateLock.Lock()
	cc.saving = false
	params := cc.params
	id := cc.measurementID
	cc.stateLock.Unlock()
	return cc.saver.Save(cc.Trace(), params, id, tag)
}

// pollLoop is the poll cycle. Exactly one pollLoop goroutine exists per
// controller while the state is Running. Each iteration first observes the
// stop flag, then sleeps one refresh time, then fetches and republishes a
// trace. The sleep and the device call happen without any lock held.
func (cc *CorrelationController) pollLoop() {
	defer cc.runDone.Done()
	for {
		cc.stateLock.Lock()
		if cc.stopRequested {
			cc.stopRequested = false
			cc.state = Paused
			cc.stateLock.Unlock()
			if err := cc.device.StopMeasure(); err != nil {
				ProblemLogger.Printf("device failed to stop: %v", err)
			}
			cc.notifyData()
			cc.notifyStatus(false)
			return
		}
		wait := cc.params.RefreshTime
		cc.stateLock.Unlock()

		time.Sleep(wait)

		trace, err := cc.device.DataTrace()
		if err != nil {
			// Poll-time read failure halts the cycle rather than retrying.
			ProblemLogger.Printf("trace read failed, halting measurement: %v", err)
			if err2 := cc.device.StopMeasure(); err2 != nil {
				ProblemLogger.Printf("device failed to stop after read failure: %v", err2)
			}
			cc.stateLock.Lock()
			cc.state = Paused
			cc.stopRequested = false
			cc.stateLock.Unlock()
			cc.notifyStatus(false)
			return
		}

		cc.stateLock.Lock()
		if len(trace) == len(cc.trace) {
			copy(cc.trace, trace) // overwrite in place, not append
		} else {
			cc.trace = trace
		}
		cc.stateLock.Unlock()
		cc.notifyData()
	}
}

// notifyStatus announces a run-state change to observers and ZMQ clients.
func (cc *CorrelationController) notifyStatus(running bool) {
	cc.observers.broadcast(Notification{Kind: StatusChanged, Running: running})
	params := cc.Parameters()
	sendClientUpdate(ClientUpdate{tag: "STATUS", state: ControllerStatus{
		Running:       running,
		CountLength:   params.CountLength,
		BinWidth:      params.BinWidth,
		RefreshTime:   params.RefreshTime.Seconds(),
		MeasurementID: cc.MeasurementID(),
	}})
}

// notifyData announces that a fresh trace snapshot is available.
func (cc *CorrelationController) notifyData() {
	cc.observers.broadcast(Notification{Kind: DataUpdated})
	publishTrace(cc.MeasurementID(), cc.Parameters().BinWidth, cc.Trace())
}

// ControllerStatus is the JSON payload of a STATUS client update.
type ControllerStatus struct {
	Running       bool
	CountLength   int
	BinWidth      float64 // picoseconds
	RefreshTime   float64 // seconds
	MeasurementID string
}
