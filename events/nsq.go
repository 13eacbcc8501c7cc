package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nsqio/go-nsq"

	"i4.energy/across/celldial/modem"
)

// NSQPublisher publishes modem events to an nsqd topic. Events are queued
// and sent by a background worker, so a slow or absent nsqd never stalls
// the modem.
type NSQPublisher struct {
	producer *nsq.Producer
	topic    string
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// NewNSQPublisher creates a producer for the nsqd at addr. The connection is
// opened on the first publish.
func NewNSQPublisher(addr, topic string, log *slog.Logger) (*NSQPublisher, error) {
	if !nsq.IsValidTopicName(topic) {
		return nil, fmt.Errorf("nsq: invalid topic name %q", topic)
	}
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer %s: %w", addr, err)
	}
	producer.SetLoggerLevel(nsq.LogLevelError)

	p := &NSQPublisher{
		producer: producer,
		topic:    topic,
		log:      log,
		queue:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *NSQPublisher) run() {
	defer close(p.done)
	for payload := range p.queue {
		if err := p.producer.Publish(p.topic, payload); err != nil {
			p.log.Warn("NSQ publish failed", "topic", p.topic, "error", err)
		}
	}
}

// Observe implements modem.Observer. Events are dropped while the queue is
// full.
func (p *NSQPublisher) Observe(e modem.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- payload:
	default:
		p.log.Warn("NSQ queue full, event dropped", "kind", e.Kind)
	}
}

// Close flushes queued events and stops the producer.
func (p *NSQPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	p.producer.Stop()
}
