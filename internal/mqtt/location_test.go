package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/modules/route"
	"carpool/internal/types"
)

const pattern = "carpool/drivers/+/location"

type mockClient struct {
	disconnected bool
	subscribed   []string
	unsubscribed []string
	handler      paho.MessageHandler
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Disconnect(_ uint) { m.disconnected = true }
func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, topic)
	m.handler = cb
	return &mockToken{}
}
func (m *mockClient) Unsubscribe(topics ...string) paho.Token {
	m.unsubscribed = append(m.unsubscribed, topics...)
	return &mockToken{}
}

type mockToken struct{ err error }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 1 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

type fakeUpdater struct {
	mu   sync.Mutex
	cmds []route.LocationCommand
	err  error
}

func (f *fakeUpdater) UpdateLocation(_ context.Context, cmd route.LocationCommand) (route.TrackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return route.TrackResult{Seq: cmd.Seq, Outcome: route.OutcomeTracking}, f.err
}

func TestParseLocation(t *testing.T) {
	cmd, err := ParseLocation(pattern, "carpool/drivers/d1/location", []byte(`{"lat":51.1,"lon":71.4,"seq":9}`))
	require.NoError(t, err)
	assert.Equal(t, route.LocationCommand{DriverID: "d1", Lat: 51.1, Lng: 71.4, Seq: 9}, cmd)
}

func TestParseLocation_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    error
	}{
		{"wrong prefix", "other/drivers/d1/location", `{"lat":1,"lon":1}`, ErrTopicMismatch},
		{"wrong depth", "carpool/drivers/d1", `{"lat":1,"lon":1}`, ErrTopicMismatch},
		{"empty driver", "carpool/drivers//location", `{"lat":1,"lon":1}`, ErrTopicMismatch},
		{"out of range", "carpool/drivers/d1/location", `{"lat":95,"lon":1}`, types.ErrInvalidPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLocation(pattern, tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ParseLocation(pattern, "carpool/drivers/d1/location", []byte("not json"))
	assert.Error(t, err)
}

func TestHandler_ForwardsTicks(t *testing.T) {
	up := &fakeUpdater{}
	sub := NewLocationSubscriber(&MqttClient{client: &mockClient{}}, pattern, up, time.Second, nil)
	h := sub.Handler(context.Background())

	h(nil, mockMessage{topic: "carpool/drivers/d7/location", payload: []byte(`{"lat":51.1,"lon":71.4,"seq":1}`)})
	h(nil, mockMessage{topic: "carpool/drivers/d7/location", payload: []byte(`garbage`)})

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.cmds, 1)
	assert.Equal(t, types.ID("d7"), up.cmds[0].DriverID)
}

func TestHandler_UpdaterErrorIsSwallowed(t *testing.T) {
	up := &fakeUpdater{err: errors.New("boom")}
	sub := NewLocationSubscriber(&MqttClient{client: &mockClient{}}, pattern, up, time.Second, nil)
	assert.NotPanics(t, func() {
		sub.Handler(context.Background())(nil, mockMessage{topic: "carpool/drivers/d1/location", payload: []byte(`{"lat":1,"lon":1,"seq":1}`)})
	})
}

func TestRun_SubscribesUntilCancelled(t *testing.T) {
	mc := &mockClient{}
	sub := NewLocationSubscriber(&MqttClient{client: mc}, pattern, &fakeUpdater{}, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sub.Run(ctx))
	assert.Equal(t, []string{pattern}, mc.subscribed)
	assert.Equal(t, []string{pattern}, mc.unsubscribed)
}

func TestClose_DisconnectsClient(t *testing.T) {
	mc := &mockClient{}
	(&MqttClient{client: mc}).Close()
	assert.True(t, mc.disconnected)
}
