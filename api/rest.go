// Package api serves the published read model over a RESTful JSON API.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tarancss/tokenreq/lib/diag"
	"github.com/tarancss/tokenreq/lib/state"
)

const timeout = 15

// Reader gives access to the published state. Implementations must not block.
type Reader interface {
	Org() string
	Phase() string
	State() *state.State
	Diagnostics() []diag.Diagnostic
}

// API implements the read API.
type API struct {
	rd  Reader
	g   prometheus.Gatherer
	log zerolog.Logger

	l sync.Mutex
	s *http.Server
}

// New returns the API for rd. When g is not nil its metrics are served on /metrics.
func New(rd Reader, g prometheus.Gatherer, log zerolog.Logger) *API {
	return &API{rd: rd, g: g, log: log.With().Str("module", "api").Logger()}
}

// Router returns the API routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", a.homeHandler).Methods("GET")                   // service status
	r.HandleFunc("/state", a.stateHandler).Methods("GET")             // full snapshot
	r.HandleFunc("/tokens", a.tokensHandler).Methods("GET")           // organization and accepted tokens
	r.HandleFunc("/requests", a.requestsHandler).Methods("GET")       // requests, ?status=&requester=
	r.HandleFunc("/requests/{id}", a.requestHandler).Methods("GET")   // single request
	r.HandleFunc("/diagnostics", a.diagnosticsHandler).Methods("GET") // recent diagnostics
	if a.g != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.g, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

// Init starts the http server on endpoint:port and blocks until Shutdown is called or the server fails.
func (a *API) Init(endpoint, port string) error {
	s := &http.Server{
		Handler:      a.Router(),
		Addr:         endpoint + ":" + port,
		WriteTimeout: timeout * time.Second,
		ReadTimeout:  timeout * time.Second,
	}

	a.l.Lock()
	a.s = s
	a.l.Unlock()

	a.log.Info().Str("addr", s.Addr).Msg("listening to API http requests")

	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the http server gracefully.
func (a *API) Shutdown(ctx context.Context) error {
	a.l.Lock()
	s := a.s
	a.l.Unlock()

	if s == nil {
		return nil
	}

	return s.Shutdown(ctx)
}
