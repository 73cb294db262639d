package autocorr

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestRPCConfigure(t *testing.T) {
	cc := NewCorrelationController(newSpyCorrelator(), nil)
	control := NewCorrelationControl(cc)

	n := 40
	var nReply int
	if err := control.ConfigureCountLength(&n, &nReply); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 40, nReply)

	// A rejected value still replies with the value in effect.
	bad := 0
	err := control.ConfigureCountLength(&bad, &nReply)
	assert.ErrorIs(t, err, ErrInvalidCountLength)
	assert.Equal(t, 40, nReply)

	w := 250.0
	var wReply float64
	if err := control.ConfigureBinWidth(&w, &wReply); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 250.0, wReply)
	badW := 10.0
	err = control.ConfigureBinWidth(&badW, &wReply)
	assert.ErrorIs(t, err, ErrBinWidthTooSmall)
	assert.Equal(t, 250.0, wReply)

	seconds := 0.5
	var sReply float64
	if err := control.ConfigureRefreshTime(&seconds, &sReply); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0.5, sReply)
	assert.Equal(t, 500*time.Millisecond, cc.Parameters().RefreshTime)
}

func TestRPCStartStopSave(t *testing.T) {
	saver := NewTraceSaver(t.TempDir())
	cc := NewCorrelationController(newSpyCorrelator(), saver)
	cc.SetRefreshTime(10 * time.Millisecond)
	control := NewCorrelationControl(cc)

	dummy := ""
	var ok bool
	if err := control.Start(&dummy, &ok); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
	assert.True(t, cc.Running())

	time.Sleep(40 * time.Millisecond)
	if err := control.Stop(&dummy, &ok); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
	assert.False(t, cc.Running())

	tag := "rpc"
	var location string
	if err := control.SaveData(&tag, &location); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(location, "rpc_correlation.txt") {
		t.Errorf("SaveData reply %q, want a rpc_correlation.txt suffix", location)
	}

	if err := control.Continue(&dummy, &ok); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
	assert.True(t, cc.Running())
	control.Stop(&dummy, &ok)

	if err := control.SendAllStatus(&dummy, &ok); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ok)
}

func TestRestoreState(t *testing.T) {
	defer func() {
		for _, key := range []string{"count_length", "bin_width", "refresh_time"} {
			viper.Set(key, 0)
		}
		viper.Set("saving", false)
	}()

	viper.Set("count_length", 30)
	viper.Set("bin_width", 250.0)
	viper.Set("refresh_time", 0.25)
	viper.Set("saving", true)

	cc := NewCorrelationController(newSpyCorrelator(), nil)
	NewCorrelationControl(cc)
	params := cc.Parameters()
	assert.Equal(t, 30, params.CountLength)
	assert.Equal(t, 250.0, params.BinWidth)
	assert.Equal(t, 250*time.Millisecond, params.RefreshTime)
	assert.True(t, cc.SavingState())

	// Persisted values the device rejects leave the defaults in force.
	viper.Set("bin_width", 50.0)
	cc2 := NewCorrelationController(newSpyCorrelator(), nil)
	NewCorrelationControl(cc2)
	assert.Equal(t, DefaultBinWidth, cc2.Parameters().BinWidth)
	assert.Equal(t, 30, cc2.Parameters().CountLength)
}
