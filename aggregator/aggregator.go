// Package aggregator implements the token request read model service. The aggregator owns the state of one
// organization: it restores the cached snapshot, runs the bootstrap against the ledger, and then consumes the
// organization's event log in order, reducing every event into a new snapshot that is persisted, published to
// readers and only then acknowledged to the broker.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarancss/tokenreq/aggregator/bootstrap"
	"github.com/tarancss/tokenreq/aggregator/reducer"
	"github.com/tarancss/tokenreq/lib/block"
	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/msg"
	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/store"
	"github.com/tarancss/tokenreq/lib/token"
)

// Phases of the aggregator.
const (
	Loading       = "loading"
	Bootstrapping = "bootstrapping"
	Consuming     = "consuming"
	Failed        = "failed"
	Stopped       = "stopped"
)

const (
	keepDiagnostics = 100 // recent diagnostics kept for readers
	diagBuffer      = 16  // per subscriber, diagnostics are dropped when full
	maxRetry        = 30 * time.Second
)

// Errors returned.
var (
	ErrLogClosed = errors.New("event log delivery ended")
	ErrBootstrap = errors.New("bootstrap failed")
)

// Aggregator implements the read model service of an organization.
type Aggregator struct {
	org   string
	db    store.DB
	mb    msg.MsgBroker
	boot  *bootstrap.Bootstrap
	red   *reducer.Reducer
	log   zerolog.Logger
	m     *metrics.Metrics
	retry time.Duration // first wait before retrying a failed save

	cur   atomic.Value // *state.State
	phase atomic.Value // string

	l     sync.Mutex
	subs  map[uuid.UUID]chan state.Snapshot
	dsubs map[uuid.UUID]chan diag.Diagnostic
	diags []diag.Diagnostic
}

// New instantiates the aggregator of org. The initial published state is the empty state.
func New(org string, db store.DB, mb msg.MsgBroker, c block.Chain, fb *token.Fallback, log zerolog.Logger,
	m *metrics.Metrics) *Aggregator {
	if m == nil {
		m = metrics.New(nil)
	}

	a := &Aggregator{
		org:   org,
		db:    db,
		mb:    mb,
		log:   log.With().Str("module", "aggregator").Str("org", org).Logger(),
		m:     m,
		retry: time.Second,
		subs:  make(map[uuid.UUID]chan state.Snapshot),
		dsubs: make(map[uuid.UUID]chan diag.Diagnostic),
	}

	res := token.NewResolver(c, fb, log, m)
	a.boot = bootstrap.New(c, res, a, log, m)
	a.red = reducer.New(c, res, a, log, m)

	a.cur.Store(state.New())
	a.phase.Store(Loading)

	return a
}

// Org returns the organization name.
func (a *Aggregator) Org() string { return a.org }

// State returns the last published state. It never blocks.
func (a *Aggregator) State() *state.State { return a.cur.Load().(*state.State) }

// Phase returns what the aggregator is doing.
func (a *Aggregator) Phase() string { return a.phase.Load().(string) }

// Run restores the cached state, bootstraps and consumes the event log until ctx is done, which returns nil, or the
// log delivery ends. When the bootstrap fails the cached state stays published and Run returns without consuming.
func (a *Aggregator) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.phase.Store(Failed)
			a.log.Error().Err(err).Msg("aggregator stopped")

			return
		}
		a.phase.Store(Stopped)
		a.log.Info().Msg("aggregator stopped")
	}()

	cached, err := a.load(ctx)
	if err != nil {
		return err
	}
	a.publish(cached)

	a.phase.Store(Bootstrapping)

	seed, err := a.boot.Seed(ctx, cached)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBootstrap, err)
	}
	if err = a.persist(ctx, seed); err != nil {
		return nil // cancelled
	}
	a.publish(seed)

	return a.consume(ctx)
}

// load returns the cached state of the organization, or the empty state if there is none or it is unusable.
func (a *Aggregator) load(ctx context.Context) (*state.State, error) {
	snap, err := a.db.LoadState(ctx, a.org)
	if errors.Is(err, store.ErrDataNotFound) {
		a.log.Info().Msg("no cached state, starting from scratch")
		return state.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load cached state: %w", err)
	}

	s, err := state.FromSnapshot(snap)
	if err != nil {
		a.log.Warn().Err(err).Msg("discarding invalid cached state")
		return state.New(), nil
	}
	a.log.Info().Uint64("block", s.LastBlock()).Int("requests", s.Len()).Msg("cached state loaded")

	return s, nil
}

// consume reduces the event log one event at a time. An event is acknowledged once its state is persisted and
// published.
func (a *Aggregator) consume(ctx context.Context) error {
	mut := new(sync.Mutex)
	mut.Lock()

	evs, errs, err := a.mb.GetEvents(a.org, mut)
	if err != nil {
		return fmt.Errorf("cannot consume event log: %w", err)
	}

	a.phase.Store(Consuming)
	a.log.Info().Uint64("block", a.State().LastBlock()).Msg("consuming event log")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-evs:
			if !ok {
				return ErrLogClosed
			}

			cur := a.State()
			next := a.red.Reduce(ctx, cur, e)
			if ctx.Err() != nil {
				return nil // the event may have been dropped for the cancellation, leave it in the log
			}
			if next != cur {
				if err := a.persist(ctx, next); err != nil {
					return nil // cancelled, the event is not acknowledged
				}
				a.publish(next)
			}

			mut.Unlock()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.log.Error().Err(err).Msg("event log")
		}
	}
}

// persist saves s, retrying with backoff until it succeeds or ctx is done.
func (a *Aggregator) persist(ctx context.Context, s *state.State) error {
	wait := a.retry

	for {
		err := a.db.SaveState(ctx, a.org, s.Snapshot())
		if err == nil {
			return nil
		}

		a.m.Diagnostics.WithLabelValues(diag.Recoverable.String(), diag.Persist).Inc()
		a.Report(diag.Diagnostic{Time: time.Now(), Severity: diag.Recoverable, Kind: diag.Persist, Err: err})
		a.log.Error().Err(err).Dur("retry", wait).Msg("cannot save state")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if wait *= 2; wait > maxRetry {
			wait = maxRetry
		}
	}
}

// publish makes s the current state and notifies subscribers.
func (a *Aggregator) publish(s *state.State) {
	a.l.Lock()
	defer a.l.Unlock()

	// stored under a.l so Subscribe cannot miss it
	a.cur.Store(s)

	counts := map[state.Status]int{state.Pending: 0, state.Approved: 0, state.Withdrawn: 0}
	for _, r := range s.Requests() {
		counts[r.Status]++
	}
	for st, n := range counts {
		a.m.Requests.WithLabelValues(string(st)).Set(float64(n))
	}
	a.m.LastBlock.Set(float64(s.LastBlock()))

	if len(a.subs) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, ch := range a.subs {
		// keep only the latest snapshot for slow subscribers
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Subscribe returns a channel receiving every published snapshot, starting with the current one. A slow subscriber
// only misses intermediate snapshots, never the latest.
func (a *Aggregator) Subscribe() (uuid.UUID, <-chan state.Snapshot) {
	id := uuid.New()
	ch := make(chan state.Snapshot, 1)

	a.l.Lock()
	ch <- a.State().Snapshot()
	a.subs[id] = ch
	a.l.Unlock()

	return id, ch
}

// Unsubscribe closes the subscription id, either of snapshots or of diagnostics.
func (a *Aggregator) Unsubscribe(id uuid.UUID) {
	a.l.Lock()
	defer a.l.Unlock()

	if ch, ok := a.subs[id]; ok {
		delete(a.subs, id)
		close(ch)
	}
	if ch, ok := a.dsubs[id]; ok {
		delete(a.dsubs, id)
		close(ch)
	}
}

// SubscribeDiagnostics returns a channel receiving diagnostics as they are reported.
func (a *Aggregator) SubscribeDiagnostics() (uuid.UUID, <-chan diag.Diagnostic) {
	id := uuid.New()
	ch := make(chan diag.Diagnostic, diagBuffer)

	a.l.Lock()
	a.dsubs[id] = ch
	a.l.Unlock()

	return id, ch
}

// Report implements diag.Reporter. It never blocks.
func (a *Aggregator) Report(d diag.Diagnostic) {
	a.l.Lock()
	defer a.l.Unlock()

	a.diags = append(a.diags, d)
	if len(a.diags) > keepDiagnostics {
		a.diags = append([]diag.Diagnostic{}, a.diags[len(a.diags)-keepDiagnostics:]...)
	}

	for id, ch := range a.dsubs {
		select {
		case ch <- d:
		default:
			a.log.Warn().Str("subscription", id.String()).Str("diag", d.Kind).Msg("diagnostic dropped")
		}
	}
}

// Diagnostics returns the most recent diagnostics, oldest first.
func (a *Aggregator) Diagnostics() []diag.Diagnostic {
	a.l.Lock()
	defer a.l.Unlock()

	return append([]diag.Diagnostic{}, a.diags...)
}
