// Package token resolves the display metadata (name, symbol and decimals) of the tokens referenced by the read model.
//
// Each field is looked up on the ledger independently and concurrently. A field whose lookup fails, or comes back
// empty, is taken from the fallback table for the token address and network; without an entry name and symbol are
// left empty and decimals are "0". A panicking lookup counts as a failed one. Resolution therefore never fails.
package token

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/tokenreq/lib/block"
	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/util"
)

// NativeAddress is the placeholder address standing for the chain's native currency.
const NativeAddress = "0x0000000000000000000000000000000000000000"

// Native returns the descriptor of the native currency.
func Native() state.Token {
	return state.Token{Address: NativeAddress, Decimals: "18", Name: "Ether", Symbol: "ETH"}
}

// IsNative returns true if addr is the native currency placeholder.
func IsNative(addr string) bool {
	return util.SameAddr(addr, NativeAddress)
}

// Resolver resolves token metadata through the ledger with fallback.
type Resolver struct {
	c   block.Chain
	fb  *Fallback
	log zerolog.Logger
	m   *metrics.Metrics
}

// NewResolver returns a resolver. fb and m may be nil.
func NewResolver(c block.Chain, fb *Fallback, log zerolog.Logger, m *metrics.Metrics) *Resolver {
	if m == nil {
		m = metrics.New(nil)
	}

	return &Resolver{c: c, fb: fb, log: log.With().Str("module", "token").Logger(), m: m}
}

// Describe returns the native descriptor for the native placeholder and resolves any other address.
func (r *Resolver) Describe(ctx context.Context, addr string) state.Token {
	if IsNative(addr) {
		return Native()
	}

	return r.Resolve(ctx, addr)
}

// Resolve returns the metadata of the ERC20 token at addr.
func (r *Resolver) Resolve(ctx context.Context, addr string) state.Token {
	net := r.c.NetworkType()
	fb, hasFb := r.fb.Lookup(addr, net)
	t := state.Token{Address: addr}

	var g errgroup.Group

	g.Go(func() error {
		var dec uint64
		err := diag.Guard(func() (err error) {
			dec, err = r.c.TokenDecimals(ctx, addr)
			return
		})()
		if err == nil && dec != 0 {
			t.Decimals = strconv.FormatUint(dec, 10)
			return nil
		}
		t.Decimals = "0"
		if hasFb && fb.Decimals != "" {
			t.Decimals = fb.Decimals
		}
		r.fallback("decimals", addr, net, hasFb, err)

		return nil
	})

	g.Go(func() error {
		var name string
		err := diag.Guard(func() (err error) {
			name, err = r.c.TokenName(ctx, addr)
			return
		})()
		if err == nil && name != "" {
			t.Name = name
			return nil
		}
		if hasFb {
			t.Name = fb.Name
		}
		r.fallback("name", addr, net, hasFb, err)

		return nil
	})

	g.Go(func() error {
		var sym string
		err := diag.Guard(func() (err error) {
			sym, err = r.c.TokenSymbol(ctx, addr)
			return
		})()
		if err == nil && sym != "" {
			t.Symbol = sym
			return nil
		}
		if hasFb {
			t.Symbol = fb.Symbol
		}
		r.fallback("symbol", addr, net, hasFb, err)

		return nil
	})

	_ = g.Wait() // no field lookup returns an error

	return t
}

func (r *Resolver) fallback(field, addr, net string, found bool, err error) {
	r.m.Fallbacks.WithLabelValues(field).Inc()
	r.log.Debug().Str("token", addr).Str("net", net).Str("field", field).Bool("entry", found).Err(err).
		Msg("token metadata from fallback")
}
