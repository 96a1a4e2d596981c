// Package mqttpub maintains the long-lived MQTT session decoded records are
// published on.
//
// Delivery is deliberately fire-and-forget: QoS 0, non-retained, over an
// asynchronously connected client that keeps retrying the broker in the
// background. A dock session must never fail because the broker is away.
package mqttpub

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"dockd/internal/config"
	"dockd/internal/logging"
)

// Publisher is the transport surface the decoder publishes records on.
type Publisher interface {
	Publish(payload []byte) error
	Close()
}

// Client is a Publisher backed by a persistent paho MQTT connection.
type Client struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// New dials the configured broker asynchronously and returns immediately;
// publishes issued before the connection is up are dropped by the transport,
// which is acceptable at the chosen delivery guarantee.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	clientID := strings.TrimSpace(cfg.Broker.ClientID)
	if clientID == "" {
		clientID = "dockd-" + uuid.NewString()[:8]
	}

	componentLogger := logging.NewComponentLogger(logger, "mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(clientID).
		SetConnectTimeout(time.Duration(cfg.Broker.ConnectTimeout) * time.Second).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			componentLogger.Info("broker connected",
				logging.String("broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port)),
				logging.String("client_id", clientID),
			)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			componentLogger.Warn("broker connection lost",
				logging.Error(err),
				logging.String(logging.FieldEventType, "mqtt_connection_lost"),
				logging.String(logging.FieldImpact, "records published while disconnected are dropped"),
			)
		})

	client := mqtt.NewClient(opts)
	client.Connect()

	return &Client{
		client: client,
		topic:  cfg.Broker.Topic,
		logger: componentLogger,
	}
}

// Publish sends one payload at QoS 0, non-retained, on the fixed topic.
func (c *Client) Publish(payload []byte) error {
	token := c.client.Publish(c.topic, 0, false, payload)
	// QoS 0 tokens complete as soon as the packet hits the socket buffer;
	// there is nothing worth blocking on.
	if token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close tears the session down, allowing in-flight writes a short drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
