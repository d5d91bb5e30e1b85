package token

import (
	"strings"

	"github.com/tarancss/tokenreq/lib/config"
	"github.com/tarancss/tokenreq/lib/state"
)

// builtin is the fallback metadata shipped with the service: tokens whose contracts return bytes32 names or symbols,
// which ERC20 string decoding cannot read.
var builtin = []config.FallbackEntry{
	{Address: "0x89d24a6b4ccb1b6faa2625fe562bdd9a23260359", Network: "mainnet", Name: "Dai Stablecoin v1.0 (SAI)",
		Symbol: "SAI", Decimals: "18"},
	{Address: "0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2", Network: "mainnet", Name: "Maker", Symbol: "MKR",
		Decimals: "18"},
	{Address: "0xe41d2489571d322189246dafa5ebde1f4699f498", Network: "mainnet", Name: "0x Protocol Token",
		Symbol: "ZRX", Decimals: "18"},
	{Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Network: "mainnet", Name: "Dai Stablecoin",
		Symbol: "DAI", Decimals: "18"},
}

type key struct {
	addr string
	net  string
}

// Fallback is a read-only table of known token metadata keyed by address and network. It is safe for concurrent use
// once built.
type Fallback struct {
	m map[key]state.Token
}

// NewFallback returns the builtin table extended, or overriden, by extra.
func NewFallback(extra []config.FallbackEntry) *Fallback {
	f := &Fallback{m: make(map[key]state.Token, len(builtin)+len(extra))}

	for _, entries := range [][]config.FallbackEntry{builtin, extra} {
		for _, e := range entries {
			f.m[keyOf(e.Address, e.Network)] = state.Token{
				Address:  e.Address,
				Decimals: e.Decimals,
				Name:     e.Name,
				Symbol:   e.Symbol,
			}
		}
	}

	return f
}

// Lookup returns the fallback entry for the token address on network net.
func (f *Fallback) Lookup(addr, net string) (state.Token, bool) {
	if f == nil {
		return state.Token{}, false
	}

	t, ok := f.m[keyOf(addr, net)]

	return t, ok
}

func keyOf(addr, net string) key {
	return key{addr: strings.ToLower(addr), net: strings.ToLower(net)}
}
