package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/celldial/modem"
)

// MQTTConfig describes the broker events are published to.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is the prefix, the event kind is appended: <Topic>/<kind>.
	Topic string
	QoS   byte
}

// MQTTPublisher publishes modem events to an MQTT broker.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *slog.Logger
}

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after the connection was lost.
func NewMQTTPublisher(cfg MQTTConfig, log *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("MQTT connected", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisher(client, cfg.Topic, cfg.QoS, log), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, qos byte, log *slog.Logger) *MQTTPublisher {
	if topic == "" {
		topic = "celldial/events"
	}
	return &MQTTPublisher{client: client, topic: topic, qos: qos, log: log}
}

// Observe implements modem.Observer. Publishing does not wait for the
// broker; failures are logged.
func (p *MQTTPublisher) Observe(e modem.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	topic := p.topic + "/" + string(e.Kind)
	token := p.client.Publish(topic, p.qos, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.Warn("MQTT publish failed", "topic", topic, "error", token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
