// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/tarancss/tokenreq/lib/event"
	"github.com/tarancss/tokenreq/lib/msg"
)

// Exchange the event logs are published to. Routing keys are <org>.event.<kind>.
const Exchange = "el"

// lockPoll is how often delivery checks whether the consumer committed the last event.
const lockPoll = time.Millisecond

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
	done chan struct{} // closed by Close, releases delivery
	once sync.Once
}

// New instantiates a new amqp broker.
func New(uri string, log zerolog.Logger) (msg.MsgBroker, error) {
	r := Amqp{log: log.With().Str("module", "amqp").Logger(), done: make(chan struct{})}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return nil, fmt.Errorf("cannot connect to broker: %w", err)
	}
	r.log.Info().Msg("connected to broker")

	return &r, nil
}

// Setup obtains a one-use channel and declares the durable "el" (event log) topic exchange.
func (r *Amqp) Setup(x interface{}) error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.once.Do(func() { close(r.done) })

	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Error().Err(err).Msg("closing amqp channel")
		}
		r.ch = nil
	}

	return r.conn.Close()
}

func (r *Amqp) channel() (err error) {
	if r.ch == nil {
		r.ch, err = r.conn.Channel()
	}

	return
}

// SendEvents publishes events to the "el" exchange as persistent messages.
func (r *Amqp) SendEvents(org string, evs []event.Event) (err error) {
	if err = r.channel(); err != nil {
		return
	}

	for _, e := range evs {
		var jsonDoc []byte
		if jsonDoc, err = json.Marshal(e); err != nil {
			return
		}

		m := amqp.Publishing{
			Headers:      amqp.Table{"x-event-block": int64(e.BlockNumber)},
			Body:         jsonDoc,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
		}
		if err = r.ch.Publish(Exchange, org+".event."+string(e.Kind), false, false, m); err != nil {
			return fmt.Errorf("publishing %s event: %w", e.Kind, err)
		}
	}

	return nil
}

// GetEvents consumes the log of org from the durable queue "el<org>" pushing the events to the returned channel. The
// Mutex pointer is provided to ensure the consumed message has been fully dealt with by the consumer, so the message
// is only acknowledged when the mutex is unlocked. Messages that cannot be decoded are rejected and reported on the
// error channel.
func (r *Amqp) GetEvents(org string, mut *sync.Mutex) (<-chan event.Event, <-chan error, error) {
	if err := r.channel(); err != nil {
		return nil, nil, err
	}

	queue := Exchange + org
	if _, err := r.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}
	if err := r.ch.QueueBind(queue, org+".event.*", Exchange, false, nil); err != nil {
		return nil, nil, err
	}
	// one unacknowledged delivery at a time keeps the log in order
	if err := r.ch.Qos(1, 0, false); err != nil {
		return nil, nil, err
	}

	msgs, err := r.ch.Consume(queue, "tokenreq-"+org, false, true, false, false, nil)
	if err != nil {
		return nil, nil, err
	}

	evs := make(chan event.Event)
	errs := make(chan error)

	go r.deliver(org, msgs, mut, evs, errs)

	return evs, errs, nil
}

// deliver decodes msgs into evs, acknowledging each one once mut is unlocked. It returns, closing evs and errs, when
// msgs is closed or the broker is closed; an event not yet acknowledged is then redelivered by the broker.
func (r *Amqp) deliver(org string, msgs <-chan amqp.Delivery, mut *sync.Mutex, evs chan<- event.Event,
	errs chan<- error) {
	defer close(errs)
	defer close(evs)
	defer func() { r.log.Info().Str("org", org).Msg("event log delivery ended") }()

	report := func(err error) bool {
		select {
		case errs <- err:
			return true
		case <-r.done:
			return false
		}
	}

	for m := range msgs {
		var e event.Event
		if err := json.Unmarshal(m.Body, &e); err != nil {
			_ = m.Reject(false)
			if !report(fmt.Errorf("decoding event %s: %w", m.RoutingKey, err)) {
				return
			}

			continue
		}

		select {
		case evs <- e:
		case <-r.done:
			return
		}

		// wait for the consumer to commit the event
		for !mut.TryLock() {
			select {
			case <-r.done:
				return
			case <-time.After(lockPoll):
			}
		}

		if err := m.Ack(false); err != nil && !report(fmt.Errorf("acknowledging event %s: %w", m.RoutingKey, err)) {
			return
		}
	}
}
