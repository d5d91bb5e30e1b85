package event

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	requester = "0x357dd3856d856197c1a000bbab4abcb97dfc92c4"
	dai       = "0x6b175474e89094c44da98b954eedeac495271d0f"
)

func TestUnmarshalEvent(t *testing.T) {
	raw := `{"kind":"request-created","blockNumber":2736027,"payload":{"requestId":7,` +
		`"requesterAddress":"` + requester + `","depositToken":"` + dai + `","depositAmount":"0x0de0b6b3a7640000",` +
		`"requestToken":"0x0000000000000000000000000000000000000000","requestAmount":1000,"requestTokenId":"2",` +
		`"reference":"coffee"}}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, RequestCreated, e.Kind)
	assert.Equal(t, uint64(2736027), e.BlockNumber)

	p, err := e.Created()
	require.NoError(t, err)
	assert.Equal(t, "7", string(p.RequestID))
	assert.Equal(t, common.HexToAddress(requester).Hex(), p.RequesterAddress)
	assert.Equal(t, "0x6B175474E89094C44Da98b954EedeAC495271d0F", p.DepositToken)
	assert.Equal(t, Amount("1000000000000000000"), p.DepositAmount)
	assert.Equal(t, Amount("1000"), p.RequestAmount)
	assert.Equal(t, "2", string(p.RequestTokenID))
	assert.Equal(t, "coffee", p.Reference)
}

func TestExponentAmounts(t *testing.T) {
	cases := []struct {
		amount string
		want   Amount
	}{
		{`1e18`, "1000000000000000000"},
		{`1e+21`, "1000000000000000000000"},
		{`1.5E3`, "1500"},
		{`1.5`, ""},
		{`-1e3`, ""},
		{`1e1000000000`, ""},
	}

	for _, c := range cases {
		e := Event{Kind: RequestCreated, Payload: json.RawMessage(`{"requestId":"1","requesterAddress":"` +
			requester + `","depositToken":"` + dai + `","depositAmount":` + c.amount + `,"requestToken":"` + dai +
			`","requestAmount":"1"}`)}

		p, err := e.Created()
		if c.want == "" {
			assert.ErrorIs(t, err, ErrBadPayload, c.amount)
			continue
		}
		require.NoError(t, err, c.amount)
		assert.Equal(t, c.want, p.DepositAmount, c.amount)
	}
}

func TestCreatedErrors(t *testing.T) {
	base := CreatedPayload{
		RequestID:        "1",
		RequesterAddress: requester,
		DepositToken:     dai,
		DepositAmount:    "10",
		RequestToken:     dai,
		RequestAmount:    "20",
	}

	cases := []struct {
		name   string
		change func(p *CreatedPayload)
		err    error
	}{
		{"no id", func(p *CreatedPayload) { p.RequestID = "" }, ErrNoRequestID},
		{"bad requester", func(p *CreatedPayload) { p.RequesterAddress = "0x1234" }, ErrBadAddress},
		{"bad deposit token", func(p *CreatedPayload) { p.DepositToken = "dai" }, ErrBadAddress},
		{"negative amount", func(p *CreatedPayload) { p.DepositAmount = "-1" }, ErrBadAmount},
		{"not a number", func(p *CreatedPayload) { p.RequestAmount = "ten" }, ErrBadAmount},
		{"overflow", func(p *CreatedPayload) {
			p.RequestAmount = "0x1" + "0000000000000000000000000000000000000000000000000000000000000000"
		}, ErrBadAmount},
	}

	for _, c := range cases {
		p := base
		c.change(&p)
		e, err := New(RequestCreated, 1, p)
		require.NoError(t, err, c.name)
		_, err = e.Created()
		assert.ErrorIs(t, err, c.err, c.name)
	}

	e, err := New(RequestCreated, 1, base)
	require.NoError(t, err)
	_, err = e.Created()
	assert.NoError(t, err)
}

func TestDecodeErrors(t *testing.T) {
	e, _ := New(RequestCreated, 1, nil)
	_, err := e.Created()
	assert.ErrorIs(t, err, ErrNoPayload)

	e = Event{Kind: RequestRefunded, Payload: json.RawMessage(`{"requestId":`)}
	_, err = e.Transition()
	assert.ErrorIs(t, err, ErrBadPayload)

	e, _ = New(RequestFinalised, 1, TransitionPayload{})
	_, err = e.Transition()
	assert.ErrorIs(t, err, ErrNoRequestID)

	e, _ = New(SyncStarted, 1, nil)
	_, err = e.Transition()
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = e.Account()
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestTransitionAndAccount(t *testing.T) {
	e := Event{Kind: RequestRefunded, Payload: json.RawMessage(`{"requestId":5}`)}
	id, err := e.Transition()
	require.NoError(t, err)
	assert.Equal(t, "5", id)

	e, _ = New(AccountChanged, 3, AccountPayload{Account: requester})
	acc, err := e.Account()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(requester).Hex(), acc)

	e, _ = New(AccountChanged, 3, AccountPayload{})
	acc, err = e.Account()
	require.NoError(t, err)
	assert.Equal(t, "", acc)
}
