package ingest

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rewired-gh/posturewatch/internal/config"
	"github.com/rewired-gh/posturewatch/internal/logger"
)

// MessageHandler processes one MQTT message.
type MessageHandler func(topic string, payload []byte) error

// Client wraps a paho MQTT connection.
type Client struct {
	client mqtt.Client
	qos    byte
}

// NewClient connects to the broker described by cfg.
func NewClient(cfg config.MQTTConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("Connected to MQTT broker %s", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Client{client: client, qos: byte(cfg.QoS)}, nil
}

// Subscribe registers handler for topic. Handler errors are logged and do
// not interrupt delivery.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if token := c.client.Subscribe(topic, c.qos, wrap(handler)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	logger.Debug("Subscribed to MQTT topic %s", topic)
	return nil
}

func wrap(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("Error handling MQTT message on %s: %v", msg.Topic(), err)
		}
	}
}

// Disconnect closes the connection after a short grace period.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
