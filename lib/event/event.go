// Package event defines the records of the organization's event log and the decoding of their payloads.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind of an event.
type Kind string

// Known event kinds. Readers must accept kinds not listed here.
const (
	AccountChanged   Kind = "account-changed"
	SyncStarted      Kind = "sync-started"
	SyncFinished     Kind = "sync-finished"
	RequestCreated   Kind = "request-created"
	RequestRefunded  Kind = "request-refunded"
	RequestFinalised Kind = "request-finalised"
)

// Errors returned.
var (
	ErrNoPayload   = errors.New("event has no payload")
	ErrBadPayload  = errors.New("malformed event payload")
	ErrWrongKind   = errors.New("payload requested does not match event kind")
	ErrNoRequestID = errors.New("payload does not contain a request id")
	ErrBadAddress  = errors.New("invalid hex address")
	ErrBadAmount   = errors.New("invalid token amount")
)

// Event is one entry of the log.
type Event struct {
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	BlockNumber uint64          `json:"blockNumber"`
}

// New builds an event marshaling payload, which can be nil.
func New(kind Kind, block uint64, payload interface{}) (Event, error) {
	e := Event{Kind: kind, BlockNumber: block}
	if payload == nil {
		return e, nil
	}

	var err error
	if e.Payload, err = json.Marshal(payload); err != nil {
		return e, fmt.Errorf("event: cannot marshal %s payload: %w", kind, err)
	}

	return e, nil
}

// ID is a request or token id. The log may carry it as a JSON number or a string.
type ID string

// UnmarshalJSON accepts strings and numbers.
func (i *ID) UnmarshalJSON(b []byte) error {
	s, err := flexString(b)
	*i = ID(s)

	return err
}

// maxExponent bounds the exponent of an amount in JSON number form.
const maxExponent = 100

// Amount is a token amount in base units. The log may carry it as a JSON number, a decimal string or a 0x hex string.
type Amount string

// UnmarshalJSON accepts strings and numbers. Numbers in exponent form, as written by JSON encoders for large
// values, are expanded to their integer digits.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s, err := flexString(b)
	if err != nil {
		return err
	}

	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '"' && strings.ContainsAny(s, ".eE") {
		if i := strings.IndexAny(s, "eE"); i >= 0 {
			// 256-bit amounts have at most 78 digits
			if exp, errExp := strconv.Atoi(s[i+1:]); errExp != nil || exp > maxExponent {
				return fmt.Errorf("%w: %s", ErrBadAmount, s)
			}
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok || !r.IsInt() || r.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrBadAmount, s)
		}
		s = r.Num().String()
	}
	*a = Amount(s)

	return nil
}

func flexString(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)

		return s, err
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}

	return n.String(), nil
}

// AccountPayload is the payload of account-changed.
type AccountPayload struct {
	Account string `json:"account"`
}

// TransitionPayload is the payload of request-refunded and request-finalised.
type TransitionPayload struct {
	RequestID ID `json:"requestId"`
}

// CreatedPayload is the payload of request-created.
type CreatedPayload struct {
	RequestID        ID     `json:"requestId"`
	RequesterAddress string `json:"requesterAddress"`
	DepositToken     string `json:"depositToken"`
	DepositAmount    Amount `json:"depositAmount"`
	RequestToken     string `json:"requestToken"`
	RequestAmount    Amount `json:"requestAmount"`
	RequestTokenID   ID     `json:"requestTokenId"`
	Reference        string `json:"reference"`
}

// Account decodes an account-changed payload. An empty account means the identity was disconnected.
func (e Event) Account() (string, error) {
	var p AccountPayload
	if err := e.decode(AccountChanged, &p); err != nil {
		return "", err
	}

	if p.Account == "" {
		return "", nil
	}

	return Address(p.Account)
}

// Transition decodes a request-refunded or request-finalised payload returning the request id.
func (e Event) Transition() (string, error) {
	if e.Kind != RequestRefunded && e.Kind != RequestFinalised {
		return "", fmt.Errorf("%w: %s", ErrWrongKind, e.Kind)
	}

	var p TransitionPayload
	if err := e.decode(e.Kind, &p); err != nil {
		return "", err
	}

	if p.RequestID == "" {
		return "", ErrNoRequestID
	}

	return string(p.RequestID), nil
}

// Created decodes a request-created payload with its addresses checksummed and its amounts in canonical decimal
// form.
func (e Event) Created() (CreatedPayload, error) {
	var p CreatedPayload
	if err := e.decode(RequestCreated, &p); err != nil {
		return p, err
	}

	if p.RequestID == "" {
		return p, ErrNoRequestID
	}

	var err error
	if p.RequesterAddress, err = Address(p.RequesterAddress); err != nil {
		return p, fmt.Errorf("requester: %w", err)
	}
	if p.DepositToken, err = Address(p.DepositToken); err != nil {
		return p, fmt.Errorf("deposit token: %w", err)
	}
	if p.RequestToken, err = Address(p.RequestToken); err != nil {
		return p, fmt.Errorf("request token: %w", err)
	}
	if p.DepositAmount, err = normAmount(p.DepositAmount); err != nil {
		return p, fmt.Errorf("deposit amount: %w", err)
	}
	if p.RequestAmount, err = normAmount(p.RequestAmount); err != nil {
		return p, fmt.Errorf("request amount: %w", err)
	}

	return p, nil
}

func (e Event) decode(kind Kind, v interface{}) error {
	if e.Kind != kind {
		return fmt.Errorf("%w: %s is not %s", ErrWrongKind, e.Kind, kind)
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return fmt.Errorf("%w: %s", ErrNoPayload, kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, kind, err)
	}

	return nil
}

// Address returns the EIP-55 checksummed form of a hex address.
func Address(a string) (string, error) {
	if !common.IsHexAddress(a) {
		return "", fmt.Errorf("%w: %q", ErrBadAddress, a)
	}

	return common.HexToAddress(a).Hex(), nil
}

// normAmount parses a decimal or 0x hex amount that must fit an unsigned 256-bit integer.
func normAmount(a Amount) (Amount, error) {
	s := strings.TrimSpace(string(a))

	var b *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		b, ok = new(big.Int).SetString(s, 10)
	}
	if !ok || b.Sign() < 0 {
		return "", fmt.Errorf("%w: %q", ErrBadAmount, a)
	}

	u, overflow := uint256.FromBig(b)
	if overflow {
		return "", fmt.Errorf("%w: %q exceeds 256 bits", ErrBadAmount, a)
	}

	return Amount(u.Dec()), nil
}
