package autocorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimConstraints(t *testing.T) {
	sc := NewSimCorrelator(0)
	c := sc.Constraints()
	assert.Equal(t, 2, c.MinChannels)
	assert.Equal(t, 2, c.MaxChannels)
	assert.Equal(t, 1, c.MinCountLength)
	assert.Equal(t, 100.0, c.MinBinWidth)
}

func TestSimConfigure(t *testing.T) {
	sc := NewSimCorrelator(0)
	assert.Equal(t, StatusUnconfigured, sc.Status())

	if err := sc.Configure(50, 25); err == nil {
		t.Error("Configure should reject a bin width below the hardware minimum")
	}
	if err := sc.Configure(500, 0); err == nil {
		t.Error("Configure should reject a count length below the hardware minimum")
	}
	assert.Equal(t, StatusUnconfigured, sc.Status())

	if err := sc.Configure(500, 25); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, StatusIdle, sc.Status())
	assert.Equal(t, 500.0, sc.BinWidth())
	if n := sc.CountLength(); n != 2*25+1 {
		t.Errorf("CountLength=%d for 25 requested bins, want %d", n, 2*25+1)
	}
}

func TestSimUnconfiguredErrors(t *testing.T) {
	sc := NewSimCorrelator(0)
	if err := sc.StartMeasure(); err == nil {
		t.Error("StartMeasure on an unconfigured device should fail")
	}
	if _, err := sc.DataTrace(); err == nil {
		t.Error("DataTrace on an unconfigured device should fail")
	}
}

func TestSimStateTransitions(t *testing.T) {
	sc := NewSimCorrelator(0)
	if err := sc.Configure(500, 10); err != nil {
		t.Fatal(err)
	}
	if err := sc.StartMeasure(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, StatusRunning, sc.Status())
	// Repeated StartMeasure while running is a no-op.
	if err := sc.StartMeasure(); err != nil {
		t.Error(err)
	}
	assert.Equal(t, StatusRunning, sc.Status())

	assert.NoError(t, sc.PauseMeasure())
	assert.Equal(t, StatusPaused, sc.Status())
	assert.NoError(t, sc.ContinueMeasure())
	assert.Equal(t, StatusRunning, sc.Status())
	assert.NoError(t, sc.StopMeasure())
	assert.Equal(t, StatusIdle, sc.Status())
	// StopMeasure when already stopped is a no-op.
	assert.NoError(t, sc.StopMeasure())
	assert.Equal(t, StatusIdle, sc.Status())
}

func TestSimTraceShape(t *testing.T) {
	sc := NewSimCorrelator(1000)
	if err := sc.Configure(500, 50); err != nil {
		t.Fatal(err)
	}
	if err := sc.StartMeasure(); err != nil {
		t.Fatal(err)
	}
	trace, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	if len(trace) != 101 {
		t.Fatalf("trace length %d, want 101", len(trace))
	}

	// The antibunching dip means the zero-delay bin sits well below the
	// background far from the center.
	center := trace[50]
	var wings CountType
	for _, i := range []int{0, 1, 99, 100} {
		wings += trace[i]
	}
	background := float64(wings) / 4
	if float64(center) > 0.6*background {
		t.Errorf("zero-delay bin %d not suppressed relative to background %.1f",
			center, background)
	}
}

func TestSimAccumulation(t *testing.T) {
	sc := NewSimCorrelator(1000)
	if err := sc.Configure(500, 10); err != nil {
		t.Fatal(err)
	}
	if err := sc.StartMeasure(); err != nil {
		t.Fatal(err)
	}
	sum := func(trace []CountType) (s CountType) {
		for _, c := range trace {
			s += c
		}
		return
	}
	first, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := sc.DataTrace(); err != nil {
			t.Fatal(err)
		}
	}
	last, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	if sum(last) <= sum(first) {
		t.Errorf("accumulated counts did not grow: first sum %d, later sum %d",
			sum(first), sum(last))
	}

	// While paused, DataTrace keeps answering but the histogram stops growing.
	assert.NoError(t, sc.PauseMeasure())
	pausedA, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	pausedB, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, float64(sum(pausedA)), float64(sum(pausedB)),
		0.2*float64(sum(pausedA)))

	// A fresh StartMeasure discards the accumulation.
	assert.NoError(t, sc.StopMeasure())
	assert.NoError(t, sc.StartMeasure())
	fresh, err := sc.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	if sum(fresh) >= sum(last) {
		t.Errorf("restart did not reset accumulation: fresh sum %d, prior sum %d",
			sum(fresh), sum(last))
	}
}
