package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// RealPublisher publishes retained presence states to a broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

func NewRealPublisher(cfg Config) (*RealPublisher, error) {
	clientID := "eight-presence-" + uuid.NewString()
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if err := connect(client, connectTimeout); err != nil {
		return nil, err
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", clientID).
		Msg("MQTT publisher ready")

	return &RealPublisher{client: client, prefix: cfg.TopicPrefix}, nil
}

const connectTimeout = 10 * time.Second

// connect waits for the first connection. With connect retry enabled paho
// keeps dialing in the background, so a client that misses the deadline is
// shut down before it is dropped.
func connect(client paho.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Publish sends the event retained at QoS 1 so late subscribers see the
// current state.
func (p *RealPublisher) Publish(event PresenceEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(Topic(p.prefix, event.Side), 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
