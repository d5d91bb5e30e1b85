package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/util"
)

// Errors returned to client requests.
var (
	ErrBadStatus = errors.New("invalid status - use PENDING, APPROVED or WITHDRAWN")
	ErrNotFound  = errors.New("request not found")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  interface{} `json:"body,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Home is the body replied on the root path.
type Home struct {
	Org       string `json:"org"`
	Phase     string `json:"phase"`
	IsSyncing bool   `json:"isSyncing"`
	LastBlock uint64 `json:"lastBlock"`
	Requests  int    `json:"requests"`
}

// Tokens is the body replied on /tokens.
type Tokens struct {
	OrgTokens      []state.Token `json:"orgTokens"`
	AcceptedTokens []state.Token `json:"acceptedTokens"`
}

// reply writes body, or err with the given status, inside a Response.
func (a *API) reply(rw http.ResponseWriter, r *http.Request, status int, body interface{}, err error) {
	res := Response{Body: body}
	if err != nil {
		res.Error = err.Error()
	}

	a.log.Debug().Str("from", r.RemoteAddr).Str("uri", r.RequestURI).Int("status", status).Err(err).Msg("httpreq")

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(&res)
}

func (a *API) homeHandler(rw http.ResponseWriter, r *http.Request) {
	s := a.rd.State()

	a.reply(rw, r, http.StatusOK, Home{
		Org:       a.rd.Org(),
		Phase:     a.rd.Phase(),
		IsSyncing: s.IsSyncing(),
		LastBlock: s.LastBlock(),
		Requests:  s.Len(),
	}, nil)
}

func (a *API) stateHandler(rw http.ResponseWriter, r *http.Request) {
	a.reply(rw, r, http.StatusOK, a.rd.State().Snapshot(), nil)
}

func (a *API) tokensHandler(rw http.ResponseWriter, r *http.Request) {
	s := a.rd.State()

	a.reply(rw, r, http.StatusOK, Tokens{OrgTokens: s.OrgTokens(), AcceptedTokens: s.AcceptedTokens()}, nil)
}

// requestsHandler replies the requests in creation order, filtered by the status and requester queries if present.
func (a *API) requestsHandler(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := state.Status(strings.ToUpper(q.Get("status")))
	if status != "" && !status.Valid() {
		a.reply(rw, r, http.StatusBadRequest, nil, fmt.Errorf("%w: %q", ErrBadStatus, q.Get("status")))
		return
	}
	requester := q.Get("requester")

	rs := []state.Request{}
	for _, req := range a.rd.State().Requests() {
		if status != "" && req.Status != status {
			continue
		}
		if requester != "" && !util.SameAddr(req.RequesterAddress, requester) {
			continue
		}
		rs = append(rs, req)
	}

	a.reply(rw, r, http.StatusOK, rs, nil)
}

func (a *API) requestHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	req, ok := a.rd.State().Request(id)
	if !ok {
		a.reply(rw, r, http.StatusNotFound, nil, fmt.Errorf("%w: %s", ErrNotFound, id))
		return
	}

	a.reply(rw, r, http.StatusOK, req, nil)
}

func (a *API) diagnosticsHandler(rw http.ResponseWriter, r *http.Request) {
	a.reply(rw, r, http.StatusOK, a.rd.Diagnostics(), nil)
}
