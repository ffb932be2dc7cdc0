package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/itohio/brickheat/pkg/brick"
)

const (
	// DefaultTimeout bounds a single exchange.
	DefaultTimeout = 5 * time.Second
	// DefaultTopicPrefix is the root of the brick topics.
	DefaultTopicPrefix = "bricks"

	qosAtLeastOnce = 1
)

// ErrNoReply is returned when the controller does not answer in time.
var ErrNoReply = errors.New("no reply from controller")

// pubSub is the part of an MQTT client the exchanger uses.
type pubSub interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTOptions configures the MQTT exchanger.
type MQTTOptions struct {
	Broker      string
	User        string
	Password    string
	TopicPrefix string
	NodeID      string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// MQTT exchanges documents with the controller over a broker. The brick
// publishes its status to <prefix>/<node>/up and waits for the controller's
// commands on <prefix>/<node>/down.
type MQTT struct {
	client  mqtt.Client
	broker  pubSub
	up      string
	down    string
	timeout time.Duration
	log     *slog.Logger

	replies chan []byte
}

// DialMQTT connects to the broker and subscribes to the command topic.
func DialMQTT(ctx context.Context, opts MQTTOptions) (*MQTT, error) {
	if opts.Broker == "" {
		return nil, errors.New("no broker configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}

	status := fmt.Sprintf("%s/%s/status", opts.TopicPrefix, opts.NodeID)
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetUsername(opts.User)
	co.SetPassword(opts.Password)
	co.SetClientID(fmt.Sprintf("brick-%s-%s", opts.NodeID, uuid.NewString()[:8]))
	co.SetConnectTimeout(opts.Timeout)
	co.SetAutoReconnect(true)
	co.SetWill(status, "offline", 0, true)
	co.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(status, 0, true, "online")
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", err)
	}

	m, err := newMQTT(&pahoClient{client: client, timeout: opts.Timeout}, opts)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}
	m.client = client
	return m, nil
}

func newMQTT(broker pubSub, opts MQTTOptions) (*MQTT, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &MQTT{
		broker:  broker,
		up:      fmt.Sprintf("%s/%s/up", opts.TopicPrefix, opts.NodeID),
		down:    fmt.Sprintf("%s/%s/down", opts.TopicPrefix, opts.NodeID),
		timeout: opts.Timeout,
		log:     opts.Logger.With("transport", "mqtt"),
		replies: make(chan []byte, 1),
	}
	if err := broker.Subscribe(m.down, qosAtLeastOnce, m.onReply); err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", m.down, err)
	}
	return m, nil
}

// Topics returns the status and command topics.
func (m *MQTT) Topics() (up, down string) {
	return m.up, m.down
}

// Exchange publishes out and waits for the controller's reply.
func (m *MQTT) Exchange(ctx context.Context, out brick.Document) (brick.Document, error) {
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	// A late reply to a previous exchange must not answer this one.
	select {
	case stale := <-m.replies:
		m.log.Debug("dropping stale reply", "bytes", len(stale))
	default:
	}

	if err := m.broker.Publish(m.up, qosAtLeastOnce, false, payload); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", m.up, err)
	}
	m.log.Debug("document sent", "topic", m.up, "bytes", len(payload))

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case data := <-m.replies:
		var in brick.Document
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("failed to decode reply: %w", err)
		}
		if in == nil {
			in = brick.Document{}
		}
		return in, nil
	case <-timer.C:
		return nil, ErrNoReply
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes and disconnects from the broker.
func (m *MQTT) Close() error {
	err := m.broker.Unsubscribe(m.down)
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return err
}

func (m *MQTT) onReply(_ mqtt.Client, msg mqtt.Message) {
	data := msg.Payload()
	select {
	case m.replies <- data:
	default:
		m.log.Warn("reply dropped, previous reply not consumed", "topic", msg.Topic())
	}
}

// pahoClient adapts mqtt.Client to pubSub with bounded token waits.
type pahoClient struct {
	client  mqtt.Client
	timeout time.Duration
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return p.wait(p.client.Publish(topic, qos, retained, payload))
}

func (p *pahoClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return p.wait(p.client.Subscribe(topic, qos, handler))
}

func (p *pahoClient) Unsubscribe(topic string) error {
	return p.wait(p.client.Unsubscribe(topic))
}

func (p *pahoClient) wait(token mqtt.Token) error {
	if !token.WaitTimeout(p.timeout) {
		return errors.New("timed out waiting for broker")
	}
	return token.Error()
}
