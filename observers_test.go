package autocorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserverBroadcast(t *testing.T) {
	var ol observerList
	a := ol.Subscribe()
	b := ol.Subscribe()

	ol.broadcast(Notification{Kind: DataUpdated})
	ol.broadcast(Notification{Kind: StatusChanged, Running: true})
	assert.Equal(t, DataUpdated, (<-a).Kind)
	assert.Equal(t, StatusChanged, (<-a).Kind)
	assert.Equal(t, DataUpdated, (<-b).Kind)
	assert.Equal(t, StatusChanged, (<-b).Kind)

	// Unsubscribing closes the channel and stops delivery.
	ol.Unsubscribe(b)
	if _, open := <-b; open {
		t.Error("unsubscribed channel should be closed after draining")
	}
	ol.broadcast(Notification{Kind: DataUpdated})
	assert.Equal(t, DataUpdated, (<-a).Kind)

	// Unsubscribing an unknown channel is harmless.
	ol.Unsubscribe(make(chan Notification))
}

func TestObserverOverflowDropsOldest(t *testing.T) {
	var ol observerList
	ch := ol.Subscribe()
	for i := 0; i < observerBuffer+5; i++ {
		ol.broadcast(Notification{Kind: CountLengthChanged, CountLength: i})
	}
	// The newest notifications win; the oldest were discarded.
	var got []int
	for len(ch) > 0 {
		got = append(got, (<-ch).CountLength)
	}
	if len(got) != observerBuffer {
		t.Fatalf("received %d notifications, want %d", len(got), observerBuffer)
	}
	last := got[len(got)-1]
	assert.Equal(t, observerBuffer+4, last)
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("notifications out of order at %d: %v", i, got)
			break
		}
	}
}
