package autocorr

// Contains the client updater, which publishes JSON-encoded messages giving
// the latest server state on the status port.

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	tag   string
	state interface{}
}

// clientMessageChan is where any part of the package drops updates destined
// for subscribed clients.
var clientMessageChan chan ClientUpdate

func init() {
	clientMessageChan = make(chan ClientUpdate, 256)
}

// sendClientUpdate queues an update without blocking. If no updater is
// draining the channel (as in tests) and the buffer fills, updates are
// silently dropped.
func sendClientUpdate(update ClientUpdate) {
	select {
	case clientMessageChan <- update:
	default:
	}
}

func (update ClientUpdate) send(pubSocket *zmq.Socket) {
	message, err := json.Marshal(update.state)
	if err != nil {
		ProblemLogger.Printf("could not JSON-encode update %q: %v", update.tag, err)
		return
	}
	if _, err := pubSocket.SendMessage(update.tag, message); err != nil {
		ProblemLogger.Printf("could not publish update %q: %v", update.tag, err)
		return
	}
	UpdateLogger.Printf("%s %s", update.tag, message)
}

// RunClientUpdater forwards any message from the client update channel to the
// ZMQ publisher socket. It runs until the abort channel closes.
func RunClientUpdater(portstatus int, abort <-chan struct{}) error {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	if err = pubSocket.Bind(hostname); err != nil {
		return err
	}

	// The most recent update of each tag, re-sent when a client asks for
	// everything with a SENDALL.
	lastUpdate := make(map[string]ClientUpdate)

	for {
		select {
		case <-abort:
			return nil
		case update := <-clientMessageChan:
			if update.tag == "SENDALL" {
				for _, u := range lastUpdate {
					u.send(pubSocket)
				}
				continue
			}
			lastUpdate[update.tag] = update
			update.send(pubSocket)
		}
	}
}

// LogServerStatus dumps a full controller state to the update log. Useful
// when diagnosing stuck measurements from the log files alone.
func LogServerStatus(cc *CorrelationController) {
	UpdateLogger.Printf("server up %v\n%s", time.Since(ServerStartTime),
		spew.Sdump(cc.Parameters()))
}
