package autocorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountsToInt64(t *testing.T) {
	assert.Equal(t, []int64{}, countsToInt64([]CountType{}))
	assert.Equal(t, []int64{0, 1, 500, -3}, countsToInt64([]CountType{0, 1, 500, -3}))
}

// Queued publications must never block, even with nothing draining the
// channels. Otherwise a poll cycle in a test (or a server with a crashed
// publisher) would hang inside notifyData.
func TestPublishNeverBlocks(t *testing.T) {
	// Controller tests publish through the same package-global channels and
	// nothing drains them there. Empty both first, so the assertions below
	// see only this test's messages regardless of test order.
	for len(traceMessageChan) > 0 {
		<-traceMessageChan
	}
	for len(clientMessageChan) > 0 {
		<-clientMessageChan
	}

	const sentinelID = "01HXAMPLE0000000000000000X"
	counts := []CountType{1, 2, 3}
	for i := 0; i < cap(traceMessageChan)+10; i++ {
		publishTrace(sentinelID, 500, counts)
	}
	for i := 0; i < cap(clientMessageChan)+10; i++ {
		sendClientUpdate(ClientUpdate{tag: "STATUS", state: i})
	}
	// Drain what was kept so later tests see empty channels.
	for len(traceMessageChan) > 0 {
		msg := <-traceMessageChan
		assert.Equal(t, sentinelID, msg.MeasurementID)
		assert.Equal(t, counts, msg.Counts)
	}
	for len(clientMessageChan) > 0 {
		<-clientMessageChan
	}
}
