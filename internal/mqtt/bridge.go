// Package mqtt mirrors appliance changes onto an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/stream"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	queueSize      = 256
)

// Config holds broker settings.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// publisher is the part of paho.Client the bridge needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge republishes stream messages to the broker from a background goroutine.
// Publish never blocks; when the queue is full the message is dropped.
type Bridge struct {
	client     publisher
	disconnect func()
	prefix     string
	log        *logger.Logger

	mu      sync.RWMutex // guards queue against Publish after Close
	closed  bool
	queue   chan models.StreamMessage
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

var _ stream.Notifier = (*Bridge)(nil)

// Connect dials the broker and starts the publishing goroutine.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Bridge, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Broker, err)
	}

	b := newBridge(client, cfg.TopicPrefix, log)
	b.disconnect = func() { client.Disconnect(1000) }
	b.start(ctx)
	return b, nil
}

func newBridge(client publisher, prefix string, log *logger.Logger) *Bridge {
	return &Bridge{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log,
		queue:  make(chan models.StreamMessage, queueSize),
	}
}

func (b *Bridge) start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-b.queue:
				if !ok {
					return
				}
				if err := b.send(msg); err != nil && b.log != nil {
					b.log.Warnw("mqtt_publish_failed", "err", err, "appliance_id", msg.Event.ApplianceID)
				}
			}
		}
	}()
}

// Publish enqueues msg for delivery. After Close it only counts a drop.
func (b *Bridge) Publish(msg models.StreamMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}
	select {
	case b.queue <- msg:
	default:
		b.dropped.Add(1)
	}
}

// Dropped counts messages discarded because the queue was full.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Close flushes queued messages, then disconnects.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
		b.wg.Wait()
		if b.disconnect != nil {
			b.disconnect()
		}
	})
}

// Topic returns "<prefix>/appliances/<id>/<kind>".
func Topic(prefix string, msg models.StreamMessage) string {
	return fmt.Sprintf("%s/appliances/%d/%s", prefix, msg.Event.ApplianceID, msg.Kind)
}

// payload is the JSON body published per change.
type payload struct {
	ApplianceID  int64      `json:"appliance_id"`
	HomeID       int64      `json:"home_id"`
	Status       string     `json:"status"`
	PowerUsage   float64    `json:"power_usage"`
	Source       string     `json:"source"`
	TotalUsageMs *int64     `json:"total_usage_ms,omitempty"`
	LastTurnedOn *time.Time `json:"last_turned_on,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

func formatPayload(msg models.StreamMessage) ([]byte, error) {
	p := payload{
		ApplianceID: msg.Event.ApplianceID,
		HomeID:      msg.HomeID,
		Status:      msg.Event.Status,
		PowerUsage:  msg.Event.PowerUsage,
		Source:      msg.Event.Source,
		Timestamp:   msg.OccurredAt.UTC(),
	}
	if a := msg.Appliance; a != nil {
		total := a.TotalUsageMs
		p.TotalUsageMs = &total
		p.LastTurnedOn = a.LastTurnedOn
	}
	return json.Marshal(p)
}

func (b *Bridge) send(msg models.StreamMessage) error {
	body, err := formatPayload(msg)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	token := b.client.Publish(Topic(b.prefix, msg), 0, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
