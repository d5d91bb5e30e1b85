package diag

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/tokenreq/lib/event"
)

func TestMarshal(t *testing.T) {
	e := event.Event{Kind: event.RequestFinalised, Payload: json.RawMessage(`{"requestId":"5"}`), BlockNumber: 3}
	d := Diagnostic{
		Time:      time.Date(2020, 9, 13, 12, 26, 40, 0, time.UTC),
		Severity:  Recoverable,
		Kind:      TerminalRequest,
		Event:     &e,
		RequestID: "5",
		Err:       errors.New("request is not pending: 5 is APPROVED"),
	}

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"2020-09-13T12:26:40Z","severity":"recoverable","kind":"terminal-request",
		"event":{"kind":"request-finalised","payload":{"requestId":"5"},"blockNumber":3},"requestId":"5",
		"error":"request is not pending: 5 is APPROVED"}`, string(b))

	b, err = json.Marshal(Diagnostic{Severity: FatalToBootstrap, Kind: Bootstrap})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"0001-01-01T00:00:00Z","severity":"fatal-to-bootstrap","kind":"bootstrap"}`, string(b))
}

func TestReporterFunc(t *testing.T) {
	var got []Diagnostic
	r := ReporterFunc(func(d Diagnostic) { got = append(got, d) })

	r.Report(Diagnostic{Kind: Panic})
	Discard.Report(Diagnostic{Kind: Panic})

	assert.Len(t, got, 1)
	assert.Equal(t, "unknown", Severity(7).String())
}

func TestGuard(t *testing.T) {
	err := Guard(func() error { panic("boom") })()
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "boom")

	errNode := errors.New("node unavailable")
	assert.Equal(t, errNode, Guard(func() error { return errNode })())
	assert.NoError(t, Guard(func() error { return nil })())
}
