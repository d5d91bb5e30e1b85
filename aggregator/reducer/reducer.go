// Package reducer implements the single point of mutation of the read model: a deterministic function from the
// current state and the next event of the log to the next state.
//
// Reduce never fails. Every error met while applying an event is contained, reported as a diagnostic and the event
// is then either applied with degraded metadata or dropped, leaving the state untouched.
package reducer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarancss/tokenreq/lib/block"
	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/event"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/token"
)

// Reducer applies events to a state.
type Reducer struct {
	c   block.Chain
	res *token.Resolver
	rep diag.Reporter
	log zerolog.Logger
	m   *metrics.Metrics
}

// New returns a reducer. rep and m may be nil.
func New(c block.Chain, res *token.Resolver, rep diag.Reporter, log zerolog.Logger, m *metrics.Metrics) *Reducer {
	if rep == nil {
		rep = diag.Discard
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Reducer{c: c, res: res, rep: rep, log: log.With().Str("module", "reducer").Logger(), m: m}
}

// Reduce returns the state resulting from applying e to s. When e is not applied the returned pointer is s.
func (r *Reducer) Reduce(ctx context.Context, s *state.State, e event.Event) (next *state.State) {
	result := metrics.Dropped

	defer func() {
		if p := recover(); p != nil {
			r.report(diag.Panic, e, "", fmt.Errorf("applying event: %v", p))
			next, result = s, metrics.Dropped
		}
		r.m.Events.WithLabelValues(kindLabel(e.Kind), result).Inc()
	}()

	next, result = r.apply(ctx, s, e)
	if next != s && e.BlockNumber > next.LastBlock() {
		next = next.WithLastBlock(e.BlockNumber)
	}

	return next
}

func (r *Reducer) apply(ctx context.Context, s *state.State, e event.Event) (*state.State, string) {
	switch e.Kind {
	case event.AccountChanged:
		acc, err := e.Account()
		if err != nil {
			r.report(diag.BadPayload, e, "", err)
			return s, metrics.Dropped
		}
		r.log.Info().Str("account", acc).Msg("account changed")

		return s.WithAccount(acc), metrics.Applied
	case event.SyncStarted:
		return s.WithSyncing(true), metrics.Applied
	case event.SyncFinished:
		r.log.Info().Uint64("block", e.BlockNumber).Int("requests", s.Len()).Msg("event log in sync")
		return s.WithSyncing(false), metrics.Applied
	case event.RequestCreated:
		return r.create(ctx, s, e)
	case event.RequestRefunded:
		return r.transition(s, e, state.Withdrawn)
	case event.RequestFinalised:
		return r.transition(s, e, state.Approved)
	}

	r.log.Debug().Str("kind", string(e.Kind)).Uint64("block", e.BlockNumber).Msg("ignoring event")

	return s, metrics.Ignored
}

// report logs, counts and forwards a recoverable diagnostic.
func (r *Reducer) report(kind string, e event.Event, id string, err error) {
	r.log.Error().Err(err).Str("diag", kind).Str("kind", string(e.Kind)).Uint64("block", e.BlockNumber).
		Str("requestId", id).Msg("event not applied")
	r.m.Diagnostics.WithLabelValues(diag.Recoverable.String(), kind).Inc()
	r.rep.Report(diag.Diagnostic{
		Time:      time.Now(),
		Severity:  diag.Recoverable,
		Kind:      kind,
		Event:     &e,
		RequestID: id,
		Err:       err,
	})
}

// kindLabel bounds the label values of the events counter to the known kinds.
func kindLabel(k event.Kind) string {
	switch k {
	case event.AccountChanged, event.SyncStarted, event.SyncFinished, event.RequestCreated, event.RequestRefunded,
		event.RequestFinalised:
		return string(k)
	}

	return "other"
}
