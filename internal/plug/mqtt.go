package plug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

const mqttKeepAlive = 30 // seconds

// MQTTConfig configures the MQTT telemetry driver.
type MQTTConfig struct {
	// Broker is the host:port of the MQTT broker.
	Broker string
	// DeviceID is the Shelly device id, e.g. "shellyplug-s-7c3f2a".
	DeviceID string
	// ClientID overrides the MQTT client id; derived from DeviceID
	// when empty.
	ClientID string
	Username string
	Password string
	// StaleAfter makes reads fail once the latest announcement is
	// older than this. Zero disables the check.
	StaleAfter time.Duration
}

// MQTT reads power from a plug that announces its meter over MQTT.
// Gen1 Shelly plugs publish watts as text on
// shellies/<id>/relay/0/power and accept on/off commands on
// shellies/<id>/relay/0/command. ReadPower returns the latest cached
// announcement rather than polling the device.
type MQTT struct {
	cfg        MQTTConfig
	powerTopic string
	cmdTopic   string
	logger     *slog.Logger

	client *paho.Client

	mu       sync.Mutex
	watts    float64
	lastSeen time.Time
	dead     error // set once the broker connection is terminally gone
}

// DialMQTT connects to the broker and subscribes to the device's
// power announcements. If logger is nil, a no-op logger is used.
func DialMQTT(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address not set")
	}
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("mqtt: device id not set")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "powerlive-" + cfg.DeviceID
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &MQTT{
		cfg:        cfg,
		powerTopic: fmt.Sprintf("shellies/%s/relay/0/power", cfg.DeviceID),
		cmdTopic:   fmt.Sprintf("shellies/%s/relay/0/command", cfg.DeviceID),
		logger:     logger,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing broker %s: %v", ErrUnreachable, cfg.Broker, err)
	}

	m.client = paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: cfg.ClientID,
		OnClientError: func(err error) {
			m.fail(err)
			m.logger.Warn("mqtt client error", "device", cfg.DeviceID, "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.fail(fmt.Errorf("server disconnect, reason %d", d.ReasonCode))
			m.logger.Warn("mqtt server disconnect", "device", cfg.DeviceID, "reason", d.ReasonCode)
		},
	})

	m.client.AddOnPublishReceived(func(pr paho.PublishReceived) (bool, error) {
		if pr.Packet.Topic != m.powerTopic {
			return false, nil
		}
		watts, err := strconv.ParseFloat(strings.TrimSpace(string(pr.Packet.Payload)), 64)
		if err != nil {
			m.logger.Warn("unparseable power announcement",
				"topic", pr.Packet.Topic, "payload", string(pr.Packet.Payload))
			return true, nil
		}
		m.mu.Lock()
		m.watts = watts
		m.lastSeen = time.Now()
		m.mu.Unlock()
		return true, nil
	})

	connect := &paho.Connect{
		ClientID:     cfg.ClientID,
		CleanStart:   true,
		KeepAlive:    mqttKeepAlive,
		Username:     cfg.Username,
		UsernameFlag: cfg.Username != "",
		Password:     []byte(cfg.Password),
		PasswordFlag: cfg.Password != "",
	}
	if _, err := m.client.Connect(ctx, connect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: connecting to broker %s: %v", ErrUnreachable, cfg.Broker, err)
	}

	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: m.powerTopic, QoS: 0}},
	}
	if _, err := m.client.Subscribe(ctx, sub); err != nil {
		m.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil, fmt.Errorf("%w: subscribing to %s: %v", ErrUnreachable, m.powerTopic, err)
	}

	m.logger.Info("mqtt driver connected",
		"broker", cfg.Broker, "device", cfg.DeviceID, "topic", m.powerTopic)
	return m, nil
}

func (m *MQTT) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dead == nil {
		m.dead = err
	}
}

// Name identifies the device in logs and the UI.
func (m *MQTT) Name() string { return "mqtt:" + m.cfg.DeviceID }

// ReadPower returns the most recent announced load in watts.
func (m *MQTT) ReadPower(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dead != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceFailed, m.dead)
	}
	if m.lastSeen.IsZero() {
		return 0, fmt.Errorf("%w: no announcement from %s yet", ErrUnreachable, m.cfg.DeviceID)
	}
	if m.cfg.StaleAfter > 0 {
		if age := time.Since(m.lastSeen); age > m.cfg.StaleAfter {
			return 0, fmt.Errorf("%w: last announcement %s ago", ErrUnreachable, age.Round(time.Millisecond))
		}
	}
	return m.watts, nil
}

// TurnOn publishes an "on" command to the device.
func (m *MQTT) TurnOn(ctx context.Context) error {
	return m.command(ctx, "on")
}

// TurnOff publishes an "off" command to the device.
func (m *MQTT) TurnOff(ctx context.Context) error {
	return m.command(ctx, "off")
}

func (m *MQTT) command(ctx context.Context, cmd string) error {
	m.mu.Lock()
	dead := m.dead
	m.mu.Unlock()
	if dead != nil {
		return fmt.Errorf("%w: %v", ErrDeviceFailed, dead)
	}

	_, err := m.client.Publish(ctx, &paho.Publish{
		Topic:   m.cmdTopic,
		QoS:     1,
		Payload: []byte(cmd),
	})
	if err != nil {
		return fmt.Errorf("%w: publishing %q: %v", ErrUnreachable, cmd, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	return m.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
