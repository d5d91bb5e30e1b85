// Package main: token request read model service.
//
// The service restores the organization's cached state, discovers its tokens on the ledger and consumes the
// organization's event log from the message broker, serving the resulting state over a RESTful API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/tarancss/tokenreq/aggregator"
	"github.com/tarancss/tokenreq/api"
	"github.com/tarancss/tokenreq/lib/block"
	"github.com/tarancss/tokenreq/lib/config"
	"github.com/tarancss/tokenreq/lib/metrics"
	"github.com/tarancss/tokenreq/lib/msg"
	"github.com/tarancss/tokenreq/lib/msg/amqp"
	"github.com/tarancss/tokenreq/lib/store/db"
	"github.com/tarancss/tokenreq/lib/token"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to expose Prometheus metrics on the API at /metrics")
	pretty := flag.Bool("v", false, "flag to log in human readable format instead of JSON")
	flag.Parse()

	// exit runs last, after every deferred close
	exit := 0
	defer func() { os.Exit(exit) }()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot read configuration")
	}
	if err = conf.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if lvl, errLvl := zerolog.ParseLevel(conf.LogLevel); errLvl == nil && conf.LogLevel != "" {
		log = log.Level(lvl)
	}

	log.Info().Str("org", conf.Org).Str("net", conf.Bc.Name).Str("db", conf.DBType).Str("mb", conf.MbType).
		Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info().Msg("program killed")
		cancel()
	}()

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to database")
	}

	defer func() {
		if errClose := db.Close(conf.DBType, dbConn); errClose != nil {
			log.Error().Err(errClose).Msg("closing database")
		}
	}()

	// load blockchain
	chain, err := block.Init(ctx, conf.Bc)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to blockchain node")
	}
	defer chain.Close()

	chain = block.WithTimeout(chain, time.Duration(conf.CallTimeout)*time.Second)

	log.Info().Str("net", chain.NetworkType()).Msg("blockchain client loaded")

	// load Prometheus collectors
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := metrics.New(reg)

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn, log); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn, log); err != nil {
				log.Fatal().Err(err).Msg("cannot connect to message broker")
			}
		}

		if err = mb.Setup(nil); err != nil {
			log.Fatal().Err(err).Msg("cannot set up message broker")
		}

		defer func() {
			if errClose := mb.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("closing message broker")
			}
		}()
	default:
		log.Fatal().Str("mb", conf.MbType).Msg("unknown message broker type")
	}

	// create aggregator
	agg := aggregator.New(conf.Org, dbConn, mb, chain, token.NewFallback(conf.Fallback), log, m)

	// init RESTful API
	var g prometheus.Gatherer
	if *monitor {
		g = reg
	}

	srv := api.New(agg, g, log)

	go func() {
		if errAPI := srv.Init(conf.RestfulEndpoint, conf.Port); errAPI != nil {
			log.Error().Err(errAPI).Msg("API server failed")
			cancel()
		}
	}()

	// consume the event log until killed
	err = agg.Run(ctx)
	if errors.Is(err, aggregator.ErrBootstrap) {
		// keep serving the cached state
		<-ctx.Done()
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if errAPI := srv.Shutdown(shutdown); errAPI != nil {
		log.Error().Err(errAPI).Msg("API shutdown")
	}

	if err != nil && !errors.Is(err, aggregator.ErrBootstrap) {
		log.Error().Err(err).Msg("exiting")
		exit = 1
	}
}
