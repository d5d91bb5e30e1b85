// Package msg defines the interface for the message brokers carrying the organization's event log.
//
// A log is an ordered stream per organization. Consumers receive one event at a time and signal through a mutex when
// the event has been fully dealt with; only then the broker acknowledges it and delivers the next one.
package msg

import (
	"sync"

	"github.com/tarancss/tokenreq/lib/event"
)

// MsgBroker is the event log transport.
type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// SendEvents appends events to the log of org, in order.
	SendEvents(org string, evs []event.Event) error
	// GetEvents consumes the log of org. The caller must hold mut when calling GetEvents and unlock it once per
	// received event after committing it. Both channels are closed when the broker connection ends.
	GetEvents(org string, mut *sync.Mutex) (<-chan event.Event, <-chan error, error)
}
