// Package transport splits packet capture from packet processing over
// NATS, the way the teacher's internal/probe does for its own capture
// pipeline. The wire payload is gob-encoded rather than protobuf: the
// teacher's generated api/gen/v1 package was never part of the
// retrieval pack, and gob is the teacher's own second serialization
// idiom (used for on-disk packet persistence), so it keeps the NATS
// dependency fully exercised without fabricating protobuf-generated
// code.
package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"

	"github.com/andrewchi/mercury/internal/config"
	"github.com/nats-io/nats.go"
)

// RawRecord is one captured packet as it crosses the probe/engine
// boundary: the bytes are the raw link-layer frame, LinkType names the
// framing internal/dissect should expect (mirroring gopacket/layers'
// LinkType numbering, per SPEC_FULL.md 3's dependency table).
type RawRecord struct {
	TimestampSec  int64
	TimestampNsec int64
	LinkType      uint8
	Data          []byte
}

// Publisher gob-encodes RawRecords and publishes them to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.TransportConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to NATS: %w", err)
	}
	log.Printf("transport: connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish gob-encodes rec and publishes it to the configured subject.
func (p *Publisher) Publish(rec RawRecord) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("transport: encode record: %w", err)
	}
	return p.nc.Publish(p.subject, buf.Bytes())
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("transport: publisher connection drained and closed")
	}
}

// Handler processes one decoded RawRecord, typically by handing it to a
// worker.Worker's Process method.
type Handler func(rec RawRecord)

// defaultChanBufferSize is used when a caller's config.WorkersConfig
// leaves ChannelBufferSize at its zero value.
const defaultChanBufferSize = 64

// Subscriber receives gob-encoded RawRecords from a NATS subject into a
// buffered Go channel, rather than NATS's own per-message callback, so
// the buffer depth is an explicit, visible knob
// (config.WorkersConfig.ChannelBufferSize) instead of hidden inside the
// client library.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	ch      chan *nats.Msg
	subject string

	stop chan struct{}
	done chan struct{}
}

// NewSubscriber connects to the configured NATS server. bufferSize sizes
// the channel Start reads from; zero or negative falls back to
// defaultChanBufferSize.
func NewSubscriber(cfg config.TransportConfig, bufferSize int) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to NATS: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = defaultChanBufferSize
	}
	log.Printf("transport: connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{
		nc:      nc,
		subject: cfg.Subject,
		ch:      make(chan *nats.Msg, bufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes to the configured subject, decoding and dispatching
// every message to handler from this Subscriber's own goroutine. Decode
// failures are logged and dropped, matching spec.md 7's "parse failures
// never propagate" rule.
func (s *Subscriber) Start(handler Handler) error {
	sub, err := s.nc.ChanSubscribe(s.subject, s.ch)
	if err != nil {
		return fmt.Errorf("transport: subscribe: %w", err)
	}
	s.sub = sub
	log.Printf("transport: subscribed to %q (buffer=%d), waiting for records", s.subject, cap(s.ch))

	go func() {
		defer close(s.done)
		for {
			select {
			case msg := <-s.ch:
				var rec RawRecord
				if err := gob.NewDecoder(bytes.NewReader(msg.Data)).Decode(&rec); err != nil {
					log.Printf("transport: failed to decode record: %v", err)
					continue
				}
				handler(rec)
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

// Close unsubscribes, stops the dispatch goroutine, and closes the NATS
// connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		close(s.stop)
		<-s.done
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("transport: subscriber connection closed")
	}
}
