// Package diag defines the diagnostics the read model reports instead of failing: every error it meets is contained
// at the smallest possible scope and reported here with its severity.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tarancss/tokenreq/lib/event"
)

// Severity of a diagnostic.
type Severity int

// Severities. Recoverable diagnostics leave the service running normally, FatalToBootstrap means the initial
// discovery failed and no events will be consumed.
const (
	Recoverable Severity = iota
	FatalToBootstrap
)

func (s Severity) String() string {
	switch s {
	case Recoverable:
		return "recoverable"
	case FatalToBootstrap:
		return "fatal-to-bootstrap"
	}

	return "unknown"
}

// Diagnostic kinds.
const (
	BadPayload       = "bad-payload"       // known event kind with an undecodable payload, event dropped
	DroppedEvent     = "dropped-event"     // creation event whose enrichment failed, event dropped
	UnknownRequest   = "unknown-request"   // transition for a request id not in the state
	TerminalRequest  = "terminal-request"  // transition for a request that already left PENDING
	DuplicateRequest = "duplicate-request" // creation for a request id already in the state
	SkippedManager   = "skipped-manager"   // token manager whose token could not be read during bootstrap
	Bootstrap        = "bootstrap"         // discovery failed, seed is the cached state
	Panic            = "panic"             // recovered panic while applying an event
	Persist          = "persist"           // snapshot could not be saved
)

// ErrPanic is returned by functions wrapped with Guard when they panic.
var ErrPanic = errors.New("panicked")

// Guard turns a panic in f into an error wrapping ErrPanic. Deferred recovers only cover their own goroutine, so
// every function run in a goroutine of an errgroup is wrapped.
func Guard(f func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, p)
			}
		}()

		return f()
	}
}

// Diagnostic is a contained failure.
type Diagnostic struct {
	Time      time.Time
	Severity  Severity
	Kind      string
	Event     *event.Event
	RequestID string
	Err       error
}

// MarshalJSON renders the error as a string.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	var msg string
	if d.Err != nil {
		msg = d.Err.Error()
	}

	return json.Marshal(struct {
		Time      time.Time    `json:"time"`
		Severity  string       `json:"severity"`
		Kind      string       `json:"kind"`
		Event     *event.Event `json:"event,omitempty"`
		RequestID string       `json:"requestId,omitempty"`
		Error     string       `json:"error,omitempty"`
	}{d.Time, d.Severity.String(), d.Kind, d.Event, d.RequestID, msg})
}

// Reporter receives diagnostics. Implementations must not block.
type Reporter interface {
	Report(Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Diagnostic)

// Report calls f(d).
func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// Discard drops diagnostics.
var Discard Reporter = ReporterFunc(func(Diagnostic) {})
