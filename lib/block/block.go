// Package block defines the read-only call service the read model uses to query the ledger.
package block

import (
	"context"
	"fmt"
	"time"

	"github.com/tarancss/tokenreq/lib/block/ethereum"
	"github.com/tarancss/tokenreq/lib/block/types"
	"github.com/tarancss/tokenreq/lib/config"
	"github.com/tarancss/tokenreq/lib/util"
)

// Chain is the ledger call service. Token managers and accepted deposit tokens are read from the organization's
// token request application; the ERC20 methods and BlockTimestamp from the ledger itself. All methods are read-only.
type Chain interface {
	// NetworkType returns the network name (ie. mainnet, rinkeby) used to key fallback token metadata.
	NetworkType() string
	Close()

	TokenManagers(ctx context.Context) ([]string, error)
	AcceptedDepositTokens(ctx context.Context) ([]string, error)
	ManagerToken(ctx context.Context, manager string) (string, error)

	TokenDecimals(ctx context.Context, token string) (uint64, error)
	TokenName(ctx context.Context, token string) (string, error)
	TokenSymbol(ctx context.Context, token string) (string, error)

	// BlockTimestamp returns the block time in seconds.
	BlockTimestamp(ctx context.Context, block uint64) (uint64, error)
}

// Ethereum network names accepted in the config. An empty name is resolved from the node's chain id.
var ethNets = []string{"", "mainnet", "ropsten", "rinkeby", "goerli", "kovan", "private"}

// Init connects to the ledger indicated in the config.
func Init(ctx context.Context, bc config.BlockConfig) (Chain, error) {
	if !util.In(ethNets, bc.Name) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownChain, bc.Name)
	}

	e, err := ethereum.Init(ctx, bc.Node, bc.Secret, bc.App, bc.Name)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// WithTimeout decorates c so every call is bounded by d. A zero duration returns c unchanged.
func WithTimeout(c Chain, d time.Duration) Chain {
	if d <= 0 {
		return c
	}

	return &timed{Chain: c, d: d}
}

type timed struct {
	Chain
	d time.Duration
}

func (t *timed) TokenManagers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.TokenManagers(ctx)
}

func (t *timed) AcceptedDepositTokens(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.AcceptedDepositTokens(ctx)
}

func (t *timed) ManagerToken(ctx context.Context, manager string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.ManagerToken(ctx, manager)
}

func (t *timed) TokenDecimals(ctx context.Context, token string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.TokenDecimals(ctx, token)
}

func (t *timed) TokenName(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.TokenName(ctx, token)
}

func (t *timed) TokenSymbol(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.TokenSymbol(ctx, token)
}

func (t *timed) BlockTimestamp(ctx context.Context, block uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	return t.Chain.BlockTimestamp(ctx, block)
}
