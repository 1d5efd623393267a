package kafka

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

var newAsyncProducer = sarama.NewAsyncProducer

// Producer publishes presence events to Kafka without blocking the caller.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   logx.Logger
	dropped  prometheus.Counter
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewProducer creates a presence event producer. It returns nil when Kafka
// is not configured; a nil *Producer discards events.
func NewProducer(logger logx.Logger, brokers []string, topic string, dropped prometheus.Counter) (*Producer, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "service-dispatch"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	ap, err := newAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newProducer(ap, topic, logger, dropped), nil
}

func newProducer(ap sarama.AsyncProducer, topic string, logger logx.Logger, dropped prometheus.Counter) *Producer {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Producer{
		producer: ap,
		topic:    topic,
		logger:   logger.With(logx.String("topic", topic)),
		dropped:  dropped,
		now:      time.Now,
	}
	p.wg.Add(1)
	go p.drainErrors()
	return p
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.logger.Warn("kafka: presence event not delivered", logx.Err(perr.Err))
	}
}

// PublishOnline emits an online event for p.
func (p *Producer) PublishOnline(e domain.CourierPresence) {
	p.publish(EventOnline, e)
}

// PublishOffline emits an offline event for p.
func (p *Producer) PublishOffline(e domain.CourierPresence) {
	p.publish(EventOffline, e)
}

func (p *Producer) publish(event string, e domain.CourierPresence) {
	if p == nil {
		return
	}

	value, err := json.Marshal(FromDomain(event, e, p.now()))
	if err != nil {
		p.logger.Error("kafka: encode presence event", logx.Err(err))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.CourierID),
		Value: sarama.ByteEncoder(value),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(event, e, "closed")
		return
	}
	select {
	case p.producer.Input() <- msg:
	default:
		p.drop(event, e, "backlogged")
	}
}

func (p *Producer) drop(event string, e domain.CourierPresence, reason string) {
	if p.dropped != nil {
		p.dropped.Inc()
	}
	p.logger.Warn("kafka: presence event dropped",
		logx.String("event", event),
		logx.String("courier_id", string(e.CourierID)),
		logx.String("reason", reason),
	)
}

// Close flushes buffered events and stops the producer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.producer.Close()
	p.wg.Wait()
	return err
}
