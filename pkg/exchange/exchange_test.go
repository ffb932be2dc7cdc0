package exchange

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/brickheat/pkg/brick"
)

func TestFunc(t *testing.T) {
	var got brick.Document
	ex := Func(func(ctx context.Context, out brick.Document) (brick.Document, error) {
		got = out
		return brick.Document{"h": 1}, nil
	})

	in, err := ex.Exchange(context.Background(), brick.Document{"p": 11})
	require.NoError(t, err)
	assert.Equal(t, brick.Document{"p": 11}, got)
	assert.Equal(t, brick.Document{"h": 1}, in)
}

func TestLoopback(t *testing.T) {
	lb := NewLoopback(brick.Document{"r": []int{4, 6}})
	lb.Queue(brick.Document{"h": 1})

	out := brick.Document{}
	out.Append("t", "a4cf12001122_rad", float32(21.25))

	in, err := lb.Exchange(context.Background(), out)
	require.NoError(t, err)
	codes, ok := in.Ints("r")
	require.True(t, ok)
	assert.Equal(t, []int{4, 6}, codes)

	in, err = lb.Exchange(context.Background(), brick.Document{})
	require.NoError(t, err)
	h, ok := in.Int("h")
	assert.True(t, ok)
	assert.Equal(t, 1, h)

	in, err = lb.Exchange(context.Background(), brick.Document{})
	require.NoError(t, err)
	assert.Empty(t, in)

	sent := lb.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []any{[]any{"a4cf12001122_rad", 21.25}}, sent[0]["t"], "decoded as the controller sees it")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lb.Exchange(ctx, brick.Document{})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return qosAtLeastOnce }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeBroker answers every publish with respond(payload) on the subscribed
// topic; a nil answer means no reply.
type fakeBroker struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    map[string][][]byte
	respond      func(payload []byte) []byte
	publishErr   error
	subscribeErr error
}

func newFakeBroker(respond func([]byte) []byte) *fakeBroker {
	return &fakeBroker{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][][]byte),
		respond:   respond,
	}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	b.published[topic] = append(b.published[topic], payload)
	b.mu.Unlock()

	if b.respond == nil {
		return nil
	}
	if reply := b.respond(payload); reply != nil {
		b.deliver("bricks/a4cf12001122/down", reply)
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		h(nil, &fakeMessage{topic: topic, payload: payload})
	}
}

func newTestMQTT(t *testing.T, broker *fakeBroker) *MQTT {
	t.Helper()
	m, err := newMQTT(broker, MQTTOptions{NodeID: "a4cf12001122", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	return m
}

func TestMQTT_Topics(t *testing.T) {
	m := newTestMQTT(t, newFakeBroker(nil))
	up, down := m.Topics()
	assert.Equal(t, "bricks/a4cf12001122/up", up)
	assert.Equal(t, "bricks/a4cf12001122/down", down)
}

func TestMQTT_Exchange(t *testing.T) {
	broker := newFakeBroker(func(payload []byte) []byte {
		return []byte(`{"h":1,"r":[4,6]}`)
	})
	m := newTestMQTT(t, broker)

	in, err := m.Exchange(context.Background(), brick.Document{"p": 11})
	require.NoError(t, err)
	h, ok := in.Int("h")
	assert.True(t, ok)
	assert.Equal(t, 1, h)
	codes, _ := in.Ints("r")
	assert.Equal(t, []int{4, 6}, codes)

	assert.JSONEq(t, `{"p":11}`, string(broker.published["bricks/a4cf12001122/up"][0]))
}

func TestMQTT_EmptyReply(t *testing.T) {
	m := newTestMQTT(t, newFakeBroker(func([]byte) []byte { return []byte(`null`) }))
	in, err := m.Exchange(context.Background(), brick.Document{})
	require.NoError(t, err)
	assert.NotNil(t, in)
	assert.Empty(t, in)
}

func TestMQTT_NoReply(t *testing.T) {
	m := newTestMQTT(t, newFakeBroker(nil))
	_, err := m.Exchange(context.Background(), brick.Document{})
	assert.ErrorIs(t, err, ErrNoReply)
}

func TestMQTT_StaleReplyDropped(t *testing.T) {
	broker := newFakeBroker(func([]byte) []byte { return []byte(`{"h":0}`) })
	m := newTestMQTT(t, broker)

	broker.deliver("bricks/a4cf12001122/down", []byte(`{"h":1}`))

	in, err := m.Exchange(context.Background(), brick.Document{})
	require.NoError(t, err)
	h, _ := in.Int("h")
	assert.Equal(t, 0, h)
}

func TestMQTT_InvalidReply(t *testing.T) {
	m := newTestMQTT(t, newFakeBroker(func([]byte) []byte { return []byte(`{"h":`) }))
	_, err := m.Exchange(context.Background(), brick.Document{})
	assert.Error(t, err)
}

func TestMQTT_Errors(t *testing.T) {
	boom := errors.New("broker gone")

	broker := newFakeBroker(nil)
	broker.subscribeErr = boom
	_, err := newMQTT(broker, MQTTOptions{NodeID: "a4cf12001122"})
	assert.ErrorIs(t, err, boom)

	broker = newFakeBroker(nil)
	m := newTestMQTT(t, broker)
	broker.publishErr = boom
	_, err = m.Exchange(context.Background(), brick.Document{})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	broker.publishErr = nil
	_, err = m.Exchange(ctx, brick.Document{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMQTT_Close(t *testing.T) {
	broker := newFakeBroker(nil)
	m := newTestMQTT(t, broker)
	require.Len(t, broker.handlers, 1)
	require.NoError(t, m.Close())
	assert.Empty(t, broker.handlers)
}

func TestDialMQTT_NoBroker(t *testing.T) {
	_, err := DialMQTT(context.Background(), MQTTOptions{NodeID: "a4cf12001122"})
	assert.Error(t, err)
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name   string
		entry  *zeroconf.ServiceEntry
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{
			name:   "ipv4 preferred",
			entry:  &zeroconf.ServiceEntry{Port: 1883, AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:   "tcp://10.0.0.2:1883",
			wantOK: true,
		},
		{
			name:   "ipv6 only",
			entry:  &zeroconf.ServiceEntry{Port: 1883, AddrIPv6: []net.IP{net.ParseIP("fd00::2")}},
			want:   "tcp://[fd00::2]:1883",
			wantOK: true,
		},
		{"no address", &zeroconf.ServiceEntry{Port: 1883}, "", false},
		{"no port", &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := brokerURL(tt.entry)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
