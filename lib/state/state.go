// Package state defines the read model derived from the organization's event log: the tokens known to the
// organization and its token requests.
//
// A State is an immutable snapshot. Every change returns a new *State and leaves the receiver untouched, so a snapshot
// can be handed to any number of concurrent readers while the next one is being computed. Slices and the request
// index are never written after the snapshot that owns them has been returned.
package state

import (
	"errors"
	"fmt"
)

// Status of a token request.
type Status string

// Request status values. A request is created PENDING and leaves that status at most once.
const (
	Pending   Status = "PENDING"
	Approved  Status = "APPROVED"
	Withdrawn Status = "WITHDRAWN"
)

// Terminal returns true when no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == Approved || s == Withdrawn
}

// Valid returns true for the known status values.
func (s Status) Valid() bool {
	return s == Pending || s == Approved || s == Withdrawn
}

// Errors returned.
var (
	ErrDuplicateRequest = errors.New("request id already exists")
	ErrRequestNotFound  = errors.New("request id not found")
	ErrRequestTerminal  = errors.New("request is not pending")
	ErrBadStatus        = errors.New("invalid target status")
)

// Token describes an ERC20 token, or the native asset, by its display metadata. Decimals is kept as a decimal string
// because fallback data is opaque.
type Token struct {
	Address  string `json:"address" bson:"address"`
	Decimals string `json:"decimals" bson:"decimals"`
	Name     string `json:"name" bson:"name"`
	Symbol   string `json:"symbol" bson:"symbol"`
}

// Request is a token exchange request: the requester deposits DepositAmount of DepositToken in exchange for
// RequestAmount of the organization token RequestToken. Date is the creation block time in epoch milliseconds.
type Request struct {
	RequestID        string `json:"requestId" bson:"requestId"`
	RequesterAddress string `json:"requesterAddress" bson:"requesterAddress"`
	DepositToken     string `json:"depositToken" bson:"depositToken"`
	DepositDecimals  string `json:"depositDecimals" bson:"depositDecimals"`
	DepositName      string `json:"depositName" bson:"depositName"`
	DepositSymbol    string `json:"depositSymbol" bson:"depositSymbol"`
	DepositAmount    string `json:"depositAmount" bson:"depositAmount"`
	RequestToken     string `json:"requestToken" bson:"requestToken"`
	RequestDecimals  string `json:"requestDecimals" bson:"requestDecimals"`
	RequestName      string `json:"requestName" bson:"requestName"`
	RequestSymbol    string `json:"requestSymbol" bson:"requestSymbol"`
	RequestAmount    string `json:"requestAmount" bson:"requestAmount"`
	RequestTokenID   string `json:"requestTokenId" bson:"requestTokenId"`
	Reference        string `json:"reference" bson:"reference"`
	Status           Status `json:"status" bson:"status"`
	Date             int64  `json:"date" bson:"date"`
}

// State is the application state. The zero value is not usable, use New or FromSnapshot.
type State struct {
	account        string
	isSyncing      bool
	orgTokens      []Token
	acceptedTokens []Token
	requests       []Request
	index          map[string]int // requestId to position in requests
	lastBlock      uint64
}

// New returns the empty default state.
func New() *State {
	return &State{
		orgTokens:      []Token{},
		acceptedTokens: []Token{},
		requests:       []Request{},
		index:          map[string]int{},
	}
}

// Account returns the connected identity, empty if absent.
func (s *State) Account() string { return s.account }

// IsSyncing reports whether the event source is still catching up with the log head.
func (s *State) IsSyncing() bool { return s.isSyncing }

// LastBlock returns the block number of the last applied event.
func (s *State) LastBlock() uint64 { return s.lastBlock }

// OrgTokens returns a copy of the organization tokens in discovery order.
func (s *State) OrgTokens() []Token { return append([]Token{}, s.orgTokens...) }

// AcceptedTokens returns a copy of the accepted deposit tokens.
func (s *State) AcceptedTokens() []Token { return append([]Token{}, s.acceptedTokens...) }

// Requests returns a copy of the requests in creation order.
func (s *State) Requests() []Request { return append([]Request{}, s.requests...) }

// Len returns the number of requests.
func (s *State) Len() int { return len(s.requests) }

// Request returns the request with the given id.
func (s *State) Request(id string) (Request, bool) {
	i, ok := s.index[id]
	if !ok {
		return Request{}, false
	}

	return s.requests[i], true
}

// WithAccount returns a copy of s with the account set.
func (s *State) WithAccount(account string) *State {
	n := *s
	n.account = account

	return &n
}

// WithSyncing returns a copy of s with the syncing flag set.
func (s *State) WithSyncing(syncing bool) *State {
	n := *s
	n.isSyncing = syncing

	return &n
}

// WithLastBlock returns a copy of s with the cursor moved to block.
func (s *State) WithLastBlock(block uint64) *State {
	n := *s
	n.lastBlock = block

	return &n
}

// WithTokens returns a copy of s with the organization and accepted token lists replaced.
func (s *State) WithTokens(org, accepted []Token) *State {
	n := *s
	n.orgTokens = append([]Token{}, org...)
	n.acceptedTokens = append([]Token{}, accepted...)

	return &n
}

// AppendRequest returns a copy of s with r appended at the end of the requests.
func (s *State) AppendRequest(r Request) (*State, error) {
	if _, ok := s.index[r.RequestID]; ok {
		return s, fmt.Errorf("%w: %s", ErrDuplicateRequest, r.RequestID)
	}

	n := *s
	n.requests = make([]Request, len(s.requests), len(s.requests)+1)
	copy(n.requests, s.requests)
	n.requests = append(n.requests, r)

	n.index = make(map[string]int, len(s.index)+1)
	for k, v := range s.index {
		n.index[k] = v
	}
	n.index[r.RequestID] = len(n.requests) - 1

	return &n, nil
}

// SetStatus returns a copy of s where the pending request id has moved to status to. The request keeps its position.
func (s *State) SetStatus(id string, to Status) (*State, error) {
	if !to.Terminal() {
		return s, fmt.Errorf("%w: %s", ErrBadStatus, to)
	}

	i, ok := s.index[id]
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	if s.requests[i].Status != Pending {
		return s, fmt.Errorf("%w: %s is %s", ErrRequestTerminal, id, s.requests[i].Status)
	}

	n := *s
	n.requests = make([]Request, len(s.requests))
	copy(n.requests, s.requests)
	n.requests[i].Status = to
	// positions are unchanged, the index is shared

	return &n, nil
}
