package autocorr

import (
	"sync"
	"time"
)

// NotificationKind labels the events a CorrelationController emits.
type NotificationKind int

// The notification kinds. DataUpdated means "read the current trace snapshot
// now"; the others carry the new value in the Notification.
const (
	StatusChanged NotificationKind = iota
	DataUpdated
	CountLengthChanged
	BinWidthChanged
	RefreshTimeChanged
)

func (k NotificationKind) String() string {
	switch k {
	case StatusChanged:
		return "StatusChanged"
	case DataUpdated:
		return "DataUpdated"
	case CountLengthChanged:
		return "CountLengthChanged"
	case BinWidthChanged:
		return "BinWidthChanged"
	case RefreshTimeChanged:
		return "RefreshTimeChanged"
	}
	return "Unknown"
}

// Notification is one fire-and-forget message to an observer. Only the field
// matching Kind is meaningful.
type Notification struct {
	Kind        NotificationKind
	Running     bool
	CountLength int
	BinWidth    float64       // picoseconds
	RefreshTime time.Duration // wall-clock poll period
}

// observerList is a plain registry of subscriber channels. It replaces the
// signal/slot dispatch of GUI frameworks: subscription is an explicit call,
// delivery is a channel send.
type observerList struct {
	lock sync.Mutex
	subs []chan Notification
}

const observerBuffer = 16

// Subscribe registers a new observer and returns its channel. The channel is
// buffered; a subscriber that falls more than observerBuffer notifications
// behind loses the oldest unread ones.
func (ol *observerList) Subscribe() <-chan Notification {
	ol.lock.Lock()
	defer ol.lock.Unlock()
	ch := make(chan Notification, observerBuffer)
	ol.subs = append(ol.subs, ch)
	return ch
}

// Unsubscribe removes an observer and closes its channel. Unknown channels
// are ignored.
func (ol *observerList) Unsubscribe(ch <-chan Notification) {
	ol.lock.Lock()
	defer ol.lock.Unlock()
	for i, sub := range ol.subs {
		if sub == ch {
			close(sub)
			ol.subs = append(ol.subs[:i], ol.subs[i+1:]...)
			return
		}
	}
}

// broadcast delivers n to every current subscriber without blocking. When a
// subscriber's buffer is full, its oldest notification is discarded so the
// newest state always gets through.
func (ol *observerList) broadcast(n Notification) {
	ol.lock.Lock()
	defer ol.lock.Unlock()
	for _, sub := range ol.subs {
		select {
		case sub <- n:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- n:
			default:
			}
		}
	}
}
