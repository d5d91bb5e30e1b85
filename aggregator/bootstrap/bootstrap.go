// Package bootstrap builds the seed state of the read model before any event is consumed: it discovers the
// organization's token managers and the accepted deposit tokens on the ledger and resolves their metadata.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/tokenreq/lib/block"
	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/token"
	"github.com/tarancss/tokenreq/lib/util"
)

// maxLookups bounds the managers or tokens resolved at the same time.
const maxLookups = 8

// Bootstrap discovers the tokens of an organization.
type Bootstrap struct {
	c   block.Chain
	res *token.Resolver
	rep diag.Reporter
	log zerolog.Logger
	m   *metrics.Metrics
}

// New returns a Bootstrap. rep and m may be nil.
func New(c block.Chain, res *token.Resolver, rep diag.Reporter, log zerolog.Logger, m *metrics.Metrics) *Bootstrap {
	if rep == nil {
		rep = diag.Discard
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Bootstrap{c: c, res: res, rep: rep, log: log.With().Str("module", "bootstrap").Logger(), m: m}
}

// Seed returns cached with its token lists replaced by the ones discovered on the ledger and the syncing flag set.
// When discovery fails the error is reported as fatal to the bootstrap and Seed returns cached, untouched, with the
// error.
func (b *Bootstrap) Seed(ctx context.Context, cached *state.State) (*state.State, error) {
	start := time.Now()
	defer func() { b.m.Bootstrap.Observe(time.Since(start).Seconds()) }()

	var org, accepted []state.Token

	g, gctx := errgroup.WithContext(ctx)
	g.Go(diag.Guard(func() (err error) {
		org, err = b.orgTokens(gctx)
		return
	}))
	g.Go(diag.Guard(func() (err error) {
		accepted, err = b.acceptedTokens(gctx)
		return
	}))

	if err := g.Wait(); err != nil {
		b.log.Error().Err(err).Str("net", b.c.NetworkType()).Msg("bootstrap failed, keeping cached state")
		b.m.Diagnostics.WithLabelValues(diag.FatalToBootstrap.String(), diag.Bootstrap).Inc()
		b.rep.Report(diag.Diagnostic{Time: time.Now(), Severity: diag.FatalToBootstrap, Kind: diag.Bootstrap, Err: err})

		return cached, err
	}

	b.log.Info().Int("orgTokens", len(org)).Int("acceptedTokens", len(accepted)).Dur("took", time.Since(start)).
		Msg("bootstrap done")

	return cached.WithTokens(org, accepted).WithSyncing(true), nil
}

// orgTokens returns the token of every manager in discovery order. Managers whose token cannot be read are skipped,
// a panicking lookup fails the whole discovery.
func (b *Bootstrap) orgTokens(ctx context.Context) ([]state.Token, error) {
	managers, err := b.c.TokenManagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering token managers: %w", err)
	}

	found := make([]*state.Token, len(managers))

	var g errgroup.Group
	g.SetLimit(maxLookups)

	for i, mgr := range managers {
		i, mgr := i, mgr
		g.Go(diag.Guard(func() error {
			addr, err := b.c.ManagerToken(ctx, mgr)
			if err != nil {
				b.skip(mgr, err)
				return nil
			}
			t := b.res.Describe(ctx, addr)
			found[i] = &t

			return nil
		}))
	}

	// managers fail one by one, only panics get here
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving manager tokens: %w", err)
	}

	tokens := make([]state.Token, 0, len(found))
	for _, t := range found {
		if t != nil {
			tokens = append(tokens, *t)
		}
	}

	return tokens, nil
}

func (b *Bootstrap) skip(mgr string, err error) {
	err = fmt.Errorf("token of manager %s: %w", mgr, err)
	b.log.Error().Err(err).Str("manager", mgr).Msg("skipping token manager")
	b.m.Diagnostics.WithLabelValues(diag.Recoverable.String(), diag.SkippedManager).Inc()
	b.rep.Report(diag.Diagnostic{Time: time.Now(), Severity: diag.Recoverable, Kind: diag.SkippedManager, Err: err})
}

// acceptedTokens returns the accepted deposit tokens, native currency first when accepted.
func (b *Bootstrap) acceptedTokens(ctx context.Context) ([]state.Token, error) {
	addrs, err := b.c.AcceptedDepositTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering accepted deposit tokens: %w", err)
	}

	var native bool
	erc20 := make([]string, 0, len(addrs))
	for _, a := range addrs {
		switch {
		case token.IsNative(a):
			native = true
		case inSame(erc20, a):
			b.log.Warn().Str("token", a).Msg("accepted token listed twice")
		default:
			erc20 = append(erc20, a)
		}
	}

	tokens := make([]state.Token, len(erc20))

	var g errgroup.Group
	g.SetLimit(maxLookups)

	for i, a := range erc20 {
		i, a := i, a
		g.Go(diag.Guard(func() error {
			tokens[i] = b.res.Resolve(ctx, a)
			return nil
		}))
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving accepted tokens: %w", err)
	}

	if native {
		tokens = append([]state.Token{token.Native()}, tokens...)
	}

	return tokens, nil
}

func inSame(addrs []string, a string) bool {
	for _, x := range addrs {
		if util.SameAddr(x, a) {
			return true
		}
	}

	return false
}
