// Package mqtt republishes panel sensors to an MQTT broker with Home
// Assistant discovery.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	"fireplus/internal/config"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // ms
)

var (
	ErrPublishTimeout = errors.New("mqtt publish timed out")
	ErrNotConnected   = errors.New("mqtt broker not connected")
)

// Client is the broker connection used by the publisher.
type Client interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

// PahoClient is a Client backed by paho.
type PahoClient struct {
	client paho.Client
}

// Dial connects to the configured broker. Reconnects are handled by paho.
func Dial(cfg config.MQTTConfig) (*PahoClient, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return &PahoClient{client: client}, nil
}

// Publish fails fast while the broker is unreachable.
func (c *PahoClient) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

func (c *PahoClient) Close() {
	c.client.Disconnect(disconnectWait)
}
