// Package types common blockchain types.
package types

import (
	"errors"
)

// Block contains a simplified list of block fields.
type Block struct {
	// contains other fields, but this ones are the important to us right now...
	Hash   string `json:"hash"`
	PHash  string `json:"parentHash"`
	Number string `json:"number"`
	TS     string `json:"timestamp"`
}

// Error codes.
var (
	ErrBlockDecode   = errors.New("unable to decode block data into Block type")
	ErrNoBlockNumber = errors.New("block data does not contain a block number")
	ErrNoTS          = errors.New("block data does not contain a timestamp")
	ErrNoHash        = errors.New("block data does not contain a hash")
	ErrNoParentHash  = errors.New("block data does not contain a parenthash")
	ErrNoBlock       = errors.New("block not available yet")
	ErrNoContract    = errors.New("empty result from contract call, is there a contract at the address?")
	ErrBadResult     = errors.New("unexpected type in contract call result")
	ErrUnknownChain  = errors.New("blockchain interface not defined")
)
