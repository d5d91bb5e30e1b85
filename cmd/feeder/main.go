// Package main: event log feeder.
//
// The feeder publishes events read from a JSON-lines file, one {kind, payload, blockNumber} record per line, to the
// organization's event log in the message broker. It is meant to replay recorded logs against a running service.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarancss/tokenreq/lib/config"
	"github.com/tarancss/tokenreq/lib/event"
	"github.com/tarancss/tokenreq/lib/msg/amqp"
)

const batch = 100

var errNoKind = errors.New("event without kind")

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	file := flag.String("f", "-", "JSON-lines event file, - for stdin")
	org := flag.String("o", "", "organization, overrides the configuration")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot read configuration")
	}
	if *org != "" {
		conf.Org = *org
	}
	if conf.Org == "" {
		log.Fatal().Err(config.ErrNoOrg).Msg("invalid configuration")
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, errOpen := os.Open(*file)
		if errOpen != nil {
			log.Fatal().Err(errOpen).Msg("cannot open event file")
		}
		defer f.Close()
		in = f
	}

	evs, err := read(in)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot read events")
	}

	mb, err := amqp.New(conf.MbConn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to message broker")
	}
	defer mb.Close()

	if err = mb.Setup(nil); err != nil {
		log.Fatal().Err(err).Msg("cannot set up message broker")
	}

	for i := 0; i < len(evs); i += batch {
		j := i + batch
		if j > len(evs) {
			j = len(evs)
		}

		if err = mb.SendEvents(conf.Org, evs[i:j]); err != nil {
			mb.Close()
			log.Fatal().Err(err).Int("sent", i).Msg("cannot publish events")
		}
	}

	log.Info().Str("org", conf.Org).Int("events", len(evs)).Msg("events published")
}

// read decodes the events of a JSON-lines stream, skipping blank lines and # comments.
func read(r io.Reader) ([]event.Event, error) {
	evs := []event.Event{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var e event.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if e.Kind == "" {
			return nil, fmt.Errorf("line %d: %w", n, errNoKind)
		}
		evs = append(evs, e)
	}

	return evs, sc.Err()
}
