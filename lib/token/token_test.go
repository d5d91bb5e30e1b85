package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tarancss/tokenreq/lib/block/mocks"
	"github.com/tarancss/tokenreq/lib/config"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/state"
)

var errCall = errors.New("execution reverted")

func TestResolve(t *testing.T) {
	fb := NewFallback([]config.FallbackEntry{
		{Address: "0xAAA", Network: "rinkeby", Name: "Foo Token", Symbol: "FOO", Decimals: "6"},
	})

	cases := []struct {
		name     string
		addr     string
		decimals []interface{}
		tname    []interface{}
		symbol   []interface{}
		fb       *Fallback
		exp      state.Token
		fallback float64
	}{
		{"all on chain", "0xAAA", []interface{}{uint64(18), nil}, []interface{}{"Live", nil}, []interface{}{"LIV", nil},
			fb, state.Token{Address: "0xAAA", Decimals: "18", Name: "Live", Symbol: "LIV"}, 0},
		{"symbol fails no entry", "0xAAA", []interface{}{uint64(18), nil}, []interface{}{"Live", nil},
			[]interface{}{"", errCall}, nil, state.Token{Address: "0xAAA", Decimals: "18", Name: "Live", Symbol: ""}, 1},
		{"symbol fails with entry", "0xaaa", []interface{}{uint64(18), nil}, []interface{}{"Live", nil},
			[]interface{}{"", errCall}, fb, state.Token{Address: "0xaaa", Decimals: "18", Name: "Live", Symbol: "FOO"}, 1},
		{"empty values with entry", "0xAAA", []interface{}{uint64(0), nil}, []interface{}{"", nil},
			[]interface{}{"", nil}, fb, state.Token{Address: "0xAAA", Decimals: "6", Name: "Foo Token", Symbol: "FOO"}, 3},
		{"all fail no entry", "0xBBB", []interface{}{uint64(0), errCall}, []interface{}{"", errCall},
			[]interface{}{"", errCall}, fb, state.Token{Address: "0xBBB", Decimals: "0", Name: "", Symbol: ""}, 3},
	}

	for _, c := range cases {
		m := new(mocks.Chain)
		m.On("NetworkType").Return("rinkeby")
		m.On("TokenDecimals", mock.Anything, c.addr).Return(c.decimals...)
		m.On("TokenName", mock.Anything, c.addr).Return(c.tname...)
		m.On("TokenSymbol", mock.Anything, c.addr).Return(c.symbol...)

		mt := metrics.New(prometheus.NewRegistry())
		r := NewResolver(m, c.fb, zerolog.Nop(), mt)

		assert.Equal(t, c.exp, r.Resolve(context.Background(), c.addr), c.name)

		total := testutil.ToFloat64(mt.Fallbacks.WithLabelValues("decimals")) +
			testutil.ToFloat64(mt.Fallbacks.WithLabelValues("name")) +
			testutil.ToFloat64(mt.Fallbacks.WithLabelValues("symbol"))
		assert.Equal(t, c.fallback, total, c.name)
		m.AssertExpectations(t)
	}
}

func TestResolvePanic(t *testing.T) {
	fb := NewFallback([]config.FallbackEntry{{Address: "0xAAA", Network: "rinkeby", Symbol: "FOO"}})

	// no TokenSymbol expectation, the mock panics
	m := new(mocks.Chain)
	m.On("NetworkType").Return("rinkeby")
	m.On("TokenDecimals", mock.Anything, "0xAAA").Return(uint64(18), nil)
	m.On("TokenName", mock.Anything, "0xAAA").Return("Live", nil)

	r := NewResolver(m, fb, zerolog.Nop(), nil)
	assert.Equal(t, state.Token{Address: "0xAAA", Decimals: "18", Name: "Live", Symbol: "FOO"},
		r.Resolve(context.Background(), "0xAAA"))
}

// TestResolveConcurrent checks the three lookups overlap instead of adding up.
func TestResolveConcurrent(t *testing.T) {
	delay := 100 * time.Millisecond

	m := new(mocks.Chain)
	m.On("NetworkType").Return("mainnet")
	m.On("TokenDecimals", mock.Anything, "0xCCC").Return(uint64(8), nil).After(delay)
	m.On("TokenName", mock.Anything, "0xCCC").Return("Slow", nil).After(delay)
	m.On("TokenSymbol", mock.Anything, "0xCCC").Return("SLW", nil).After(delay)

	r := NewResolver(m, nil, zerolog.Nop(), nil)

	start := time.Now()
	tok := r.Resolve(context.Background(), "0xCCC")
	assert.True(t, time.Since(start) < 3*delay, "lookups did not overlap")
	assert.Equal(t, state.Token{Address: "0xCCC", Decimals: "8", Name: "Slow", Symbol: "SLW"}, tok)
}

func TestDescribeNative(t *testing.T) {
	m := new(mocks.Chain)
	r := NewResolver(m, NewFallback(nil), zerolog.Nop(), nil)

	assert.Equal(t, Native(), r.Describe(context.Background(), NativeAddress))
	assert.Equal(t, "18", Native().Decimals)
	assert.Equal(t, "Ether", Native().Name)
	assert.Equal(t, "ETH", Native().Symbol)
	assert.True(t, IsNative("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsNative("0xAAA"))
	// no ledger call for the native currency
	m.AssertExpectations(t)
}

func TestFallbackBuiltin(t *testing.T) {
	fb := NewFallback(nil)

	sai, ok := fb.Lookup("0x89D24A6b4CcB1B6fAA2625fE562bDD9a23260359", "mainnet")
	assert.True(t, ok)
	assert.Equal(t, "SAI", sai.Symbol)

	_, ok = fb.Lookup("0x89D24A6b4CcB1B6fAA2625fE562bDD9a23260359", "rinkeby")
	assert.False(t, ok)

	var none *Fallback
	_, ok = none.Lookup("0x01", "mainnet")
	assert.False(t, ok)
}
