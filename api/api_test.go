package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/state"
)

const (
	alice = "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4"
	bob   = "0x1111111111111111111111111111111111111111"
)

type reader struct {
	s *state.State
}

func (r reader) Org() string         { return "tokenreq-dao" }
func (r reader) Phase() string       { return "consuming" }
func (r reader) State() *state.State { return r.s }
func (r reader) Diagnostics() []diag.Diagnostic {
	return []diag.Diagnostic{{Severity: diag.Recoverable, Kind: diag.UnknownRequest, RequestID: "99",
		Err: errors.New("request id not found: 99")}}
}

func fixture(t *testing.T) *state.State {
	s := state.New().WithTokens(
		[]state.Token{{Address: "0x01", Decimals: "18", Name: "Org", Symbol: "ORG"}},
		[]state.Token{{Address: "0x0000000000000000000000000000000000000000", Decimals: "18", Name: "Ether",
			Symbol: "ETH"}},
	).WithSyncing(true).WithLastBlock(12)

	var err error
	for _, r := range []state.Request{
		{RequestID: "1", RequesterAddress: alice, Status: state.Pending},
		{RequestID: "2", RequesterAddress: bob, Status: state.Pending},
		{RequestID: "3", RequesterAddress: alice, Status: state.Pending},
	} {
		s, err = s.AppendRequest(r)
		require.NoError(t, err)
	}
	s, err = s.SetStatus("3", state.Approved)
	require.NoError(t, err)

	return s
}

// get serves uri and decodes the body of the response into body.
func get(t *testing.T, a *API, uri string, body interface{}) (int, Response) {
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, uri, nil))

	var raw struct {
		Body  json.RawMessage `json:"body"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw), uri)
	if body != nil && len(raw.Body) > 0 {
		require.NoError(t, json.Unmarshal(raw.Body, body), uri)
	}

	return rec.Code, Response{Body: body, Error: raw.Error}
}

func TestHandlers(t *testing.T) {
	a := New(reader{s: fixture(t)}, nil, zerolog.Nop())

	var home Home
	code, _ := get(t, a, "/", &home)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Home{Org: "tokenreq-dao", Phase: "consuming", IsSyncing: true, LastBlock: 12, Requests: 3}, home)

	var snap state.Snapshot
	code, _ = get(t, a, "/state", &snap)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, snap.Requests, 3)
	assert.Equal(t, uint64(12), snap.LastBlock)

	var toks Tokens
	code, _ = get(t, a, "/tokens", &toks)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ORG", toks.OrgTokens[0].Symbol)
	assert.Equal(t, "ETH", toks.AcceptedTokens[0].Symbol)

	var ds []map[string]interface{}
	code, _ = get(t, a, "/diagnostics", &ds)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, ds, 1)
	assert.Equal(t, "recoverable", ds[0]["severity"])
	assert.Equal(t, "request id not found: 99", ds[0]["error"])
}

func TestRequests(t *testing.T) {
	a := New(reader{s: fixture(t)}, nil, zerolog.Nop())

	cases := []struct {
		uri  string
		code int
		ids  []string
	}{
		{"/requests", http.StatusOK, []string{"1", "2", "3"}},
		{"/requests?status=PENDING", http.StatusOK, []string{"1", "2"}},
		{"/requests?status=approved", http.StatusOK, []string{"3"}},
		{"/requests?status=WITHDRAWN", http.StatusOK, []string{}},
		{"/requests?requester=" + strings.ToLower(alice), http.StatusOK, []string{"1", "3"}},
		{"/requests?requester=" + alice + "&status=PENDING", http.StatusOK, []string{"1"}},
		{"/requests?status=DONE", http.StatusBadRequest, nil},
	}

	for _, c := range cases {
		var rs []state.Request
		code, res := get(t, a, c.uri, &rs)
		assert.Equal(t, c.code, code, c.uri)

		if c.ids == nil {
			assert.Contains(t, res.Error, ErrBadStatus.Error(), c.uri)
			continue
		}

		ids := []string{}
		for _, r := range rs {
			ids = append(ids, r.RequestID)
		}
		assert.Equal(t, c.ids, ids, c.uri)
	}
}

func TestRequest(t *testing.T) {
	a := New(reader{s: fixture(t)}, nil, zerolog.Nop())

	var r state.Request
	code, _ := get(t, a, "/requests/3", &r)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, state.Approved, r.Status)

	code, res := get(t, a, "/requests/99", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, res.Error, ErrNotFound.Error())
}

func TestMetrics(t *testing.T) {
	s := fixture(t)

	rec := httptest.NewRecorder()
	New(reader{s: s}, nil, zerolog.Nop()).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec = httptest.NewRecorder()
	New(reader{s: s}, reg, zerolog.Nop()).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 1")
}
