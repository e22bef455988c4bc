// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/streadway/amqp"

	"github.com/marketgame/bridge/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the "ge" ("game events") exchange the bridge publishes decoded chain
// events to.
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchange
	return channel.ExchangeDeclare("ge", "topic", true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendEvent publishes one game event to the "ge" exchange. The routing key is "game.<kind>" plus the player address
// when the event carries one, so consumers can bind per event kind or per player.
func (r *Amqp) SendEvent(ev msg.GameEvent) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(ev); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	key := "game." + ev.Kind
	if ev.Address != "" {
		key += "." + ev.Address
	}
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-event-name": ev.Kind + "." + ev.TxHash + "." + strconv.FormatUint(uint64(ev.LogIndex), 10)},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("ge", key, false, false, m); err != nil {
		log.Printf("Error sending game event to message broker %e", err)
	}
	return
}
