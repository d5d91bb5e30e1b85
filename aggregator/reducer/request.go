package reducer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/event"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/state"
)

// maxTimestamp is the largest block time in seconds whose date in milliseconds fits an int64.
const maxTimestamp = math.MaxInt64 / 1000

var errBadTimestamp = errors.New("block timestamp out of range")

// create appends the PENDING request described by a request-created event. The deposit and request token metadata
// and the creation block time are looked up concurrently; the request is appended only when all of them are known.
func (r *Reducer) create(ctx context.Context, s *state.State, e event.Event) (*state.State, string) {
	p, err := e.Created()
	if err != nil {
		r.report(diag.BadPayload, e, "", err)
		return s, metrics.Dropped
	}

	id := string(p.RequestID)
	if _, ok := s.Request(id); ok {
		r.report(diag.DuplicateRequest, e, id, fmt.Errorf("%w: %s", state.ErrDuplicateRequest, id))
		return s, metrics.Rejected
	}

	var dep, req state.Token
	var ts uint64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(diag.Guard(func() error {
		dep = r.res.Describe(gctx, p.DepositToken)
		return nil
	}))
	g.Go(diag.Guard(func() error {
		req = r.res.Describe(gctx, p.RequestToken)
		return nil
	}))
	g.Go(diag.Guard(func() (err error) {
		if ts, err = r.c.BlockTimestamp(gctx, e.BlockNumber); err != nil {
			return fmt.Errorf("block %d timestamp: %w", e.BlockNumber, err)
		}
		if ts > maxTimestamp {
			return fmt.Errorf("block %d: %w: %d", e.BlockNumber, errBadTimestamp, ts)
		}
		return nil
	}))

	if err = g.Wait(); err == nil {
		// metadata lookups degrade silently on cancellation, check it was not cut short
		err = ctx.Err()
	}
	if err != nil {
		r.report(diag.DroppedEvent, e, id, err)
		return s, metrics.Dropped
	}

	next, err := s.AppendRequest(state.Request{
		RequestID:        id,
		RequesterAddress: p.RequesterAddress,
		DepositToken:     p.DepositToken,
		DepositDecimals:  dep.Decimals,
		DepositName:      dep.Name,
		DepositSymbol:    dep.Symbol,
		DepositAmount:    string(p.DepositAmount),
		RequestToken:     p.RequestToken,
		RequestDecimals:  req.Decimals,
		RequestName:      req.Name,
		RequestSymbol:    req.Symbol,
		RequestAmount:    string(p.RequestAmount),
		RequestTokenID:   string(p.RequestTokenID),
		Reference:        p.Reference,
		Status:           state.Pending,
		Date:             int64(ts) * 1000,
	})
	if err != nil {
		r.report(diag.DuplicateRequest, e, id, err)
		return s, metrics.Rejected
	}

	r.log.Info().Str("requestId", id).Str("requester", p.RequesterAddress).Str("deposit", dep.Symbol).
		Str("request", req.Symbol).Uint64("block", e.BlockNumber).Msg("request created")

	return next, metrics.Applied
}

// transition moves a PENDING request to status to.
func (r *Reducer) transition(s *state.State, e event.Event, to state.Status) (*state.State, string) {
	id, err := e.Transition()
	if err != nil {
		r.report(diag.BadPayload, e, "", err)
		return s, metrics.Dropped
	}

	next, err := s.SetStatus(id, to)
	switch {
	case errors.Is(err, state.ErrRequestNotFound):
		r.report(diag.UnknownRequest, e, id, err)
		return s, metrics.Rejected
	case errors.Is(err, state.ErrRequestTerminal):
		r.report(diag.TerminalRequest, e, id, err)
		return s, metrics.Rejected
	case err != nil:
		r.report(diag.BadPayload, e, id, err)
		return s, metrics.Dropped
	}

	r.log.Info().Str("requestId", id).Str("status", string(to)).Uint64("block", e.BlockNumber).
		Msg("request status changed")

	return next, metrics.Applied
}
