// README: Thin paho MQTT client wrapper with connect/subscribe helpers.
package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client is the subset of paho.Client used here; tests swap in a mock.
type Client interface {
	IsConnected() bool
	Disconnect(uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

type MqttClient struct {
	client Client
}

func NewMqttClient(broker, clientID string, optsFunc func(*paho.ClientOptions)) (*MqttClient, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	if optsFunc != nil {
		optsFunc(opts)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MqttClient{client: client}, nil
}

func (mc *MqttClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) error {
	token := mc.client.Subscribe(topic, qos, cb)
	token.Wait()
	return token.Error()
}

func (mc *MqttClient) Unsubscribe(topic string) error {
	token := mc.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

func (mc *MqttClient) Close() {
	if mc.client.IsConnected() {
		mc.client.Disconnect(250)
	}
}
