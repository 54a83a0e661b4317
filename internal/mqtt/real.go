package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 200

// ErrRateLimited is returned when the event topic is publishing too fast.
var ErrRateLimited = errors.New("mqtt event rate limited")

const publishTimeout = 5 * time.Second

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client  client
	logger  zerolog.Logger
	outbox  *outbox
	limiter *rate.Limiter
	now     func() time.Time
	timeout time.Duration
}

func newPublisher(c client, bufferSize int, limiter *rate.Limiter, logger zerolog.Logger) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 20)
	}
	logger = logger.With().Str("component", "mqtt").Logger()
	return &RealPublisher{
		client:  c,
		logger:  logger,
		outbox:  newOutbox(bufferSize, logger),
		limiter: limiter,
		now:     time.Now,
		timeout: publishTimeout,
	}
}

// NewRealPublisher creates a publisher for broker. Connection happens in
// the background and is retried forever; publishing before the first
// connect buffers.
func NewRealPublisher(broker, clientID string, bufferSize int, logger zerolog.Logger) *RealPublisher {
	p := newPublisher(nil, bufferSize, nil, logger)

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.logger.Info().Str("broker", broker).Msg("mqtt connected")
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn().Err(err).Msg("mqtt connection lost")
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

// PublishWatering sends a watering outcome. QoS 0, subject to the event rate limit.
func (p *RealPublisher) PublishWatering(event WateringEvent) error {
	payload, err := FormatWateringPayload(event)
	if err != nil {
		return fmt.Errorf("format watering payload: %w", err)
	}
	return p.publishEvent(payload, 0)
}

// PublishSafety sends a safety trip. QoS 1, subject to the event rate limit.
func (p *RealPublisher) PublishSafety(event SafetyEvent) error {
	payload, err := FormatSafetyPayload(event)
	if err != nil {
		return fmt.Errorf("format safety payload: %w", err)
	}
	return p.publishEvent(payload, 1)
}

func (p *RealPublisher) publishEvent(payload []byte, qos byte) error {
	if !p.limiter.Allow() {
		return ErrRateLimited
	}
	return p.publish(bufferedMsg{topic: TopicEvents, payload: payload, qos: qos})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should arrive
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Save publishes a retained snapshot under TopicStatePrefix+name.
func (p *RealPublisher) Save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := FormatStatePayload(name, p.now(), v)
	if err != nil {
		return fmt.Errorf("format %s snapshot: %w", name, err)
	}
	return p.publish(bufferedMsg{topic: TopicStatePrefix + name, payload: payload, qos: 1, retained: true})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.outbox.push(msg)
		return nil
	}
	if err := p.send(msg); err != nil {
		p.outbox.push(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages in order. On the first failure the
// unsent remainder goes back into the buffer.
func (p *RealPublisher) flush() {
	msgs := p.outbox.drain()
	if len(msgs) == 0 {
		return
	}
	for i, msg := range msgs {
		if err := p.send(msg); err != nil {
			for _, rest := range msgs[i:] {
				p.outbox.push(rest)
			}
			p.logger.Warn().Err(err).Int("pending", len(msgs)-i).Msg("mqtt replay interrupted")
			return
		}
	}
	p.logger.Info().Int("count", len(msgs)).Msg("replayed buffered mqtt messages")
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages await a connection.
func (p *RealPublisher) Buffered() int {
	return p.outbox.len()
}

// Dropped returns how many buffered messages were evicted.
func (p *RealPublisher) Dropped() int {
	return p.outbox.droppedTotal()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
