// Package tracker forwards card reset requests to the connection tracker over
// MQTT. It is used when the host is not allowed to power cycle the card itself.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

// ResetMessage is the payload the tracker recognises as a reset request.
const ResetMessage = "ResetWimax_BySDIO"

const defaultTimeout = 5 * time.Second

// Config configures a Notifier. Broker is required.
type Config struct {
	// Broker is the host:port of the MQTT broker.
	Broker   string
	Topic    string
	ClientID string
	Logger   *slog.Logger
	// Dial opens the broker connection. Nil uses a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
	// Timeout bounds connect and publish. Defaults to 5s.
	Timeout time.Duration
}

// Notifier publishes reset requests. It connects lazily and reconnects after
// failures. Safe for concurrent use.
type Notifier struct {
	cfg      Config
	mu       sync.Mutex
	conn     net.Conn
	client   *mqtt.Client
	pubFlags mqtt.PacketFlags
	// packetID identifies the last publish. Never zero once used.
	packetID uint16
	sent     int
}

func New(cfg Config) (*Notifier, error) {
	if cfg.Broker == "" {
		return nil, errors.New("tracker: no broker address")
	}
	if cfg.Topic == "" {
		return nil, errors.New("tracker: no topic")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sqnsdio"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, err
	}
	return &Notifier{cfg: cfg, pubFlags: flags}, nil
}

// RequestReset publishes ResetMessage on the configured topic. reason is
// logged only, the tracker protocol carries no detail.
func (n *Notifier) RequestReset(reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()
	if err := n.connect(ctx); err != nil {
		n.logerr("tracker:connect", slog.String("broker", n.cfg.Broker), slog.String("err", err.Error()))
		return err
	}
	n.conn.SetDeadline(time.Now().Add(n.cfg.Timeout))
	vp := mqtt.VariablesPublish{
		TopicName:        []byte(n.cfg.Topic),
		PacketIdentifier: n.nextPacketID(),
	}
	err := n.client.PublishPayload(n.pubFlags, vp, []byte(ResetMessage))
	if err != nil {
		n.logerr("tracker:publish", slog.String("err", err.Error()))
		n.drop()
		return err
	}
	n.sent++
	n.info("tracker:reset requested", slog.String("topic", n.cfg.Topic), slog.String("reason", reason))
	return nil
}

// nextPacketID returns the identifier of the next publish, skipping zero on wrap.
func (n *Notifier) nextPacketID() uint16 {
	n.packetID++
	if n.packetID == 0 {
		n.packetID = 1
	}
	return n.packetID
}

// Sent returns the number of reset requests published.
func (n *Notifier) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

// Close disconnects from the broker.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == nil {
		return nil
	}
	n.conn.SetDeadline(time.Now().Add(n.cfg.Timeout))
	err := n.client.Disconnect(errors.New("tracker closed"))
	n.conn.Close()
	n.client, n.conn = nil, nil
	return err
}

func (n *Notifier) connect(ctx context.Context) error {
	if n.client != nil && n.client.IsConnected() {
		return nil
	}
	n.drop()
	conn, err := n.cfg.Dial(ctx, "tcp", n.cfg.Broker)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 512)},
	})
	var vc mqtt.VariablesConnect
	vc.SetDefaultMQTT([]byte(n.cfg.ClientID))
	err = client.Connect(ctx, conn, &vc)
	if err != nil {
		conn.Close()
		return err
	}
	n.conn, n.client = conn, client
	n.info("tracker:connected", slog.String("broker", n.cfg.Broker))
	return nil
}

// drop forgets a broken connection.
func (n *Notifier) drop() {
	if n.conn != nil {
		n.conn.Close()
	}
	n.conn, n.client = nil, nil
}

func (n *Notifier) info(msg string, attrs ...slog.Attr) {
	if n.cfg.Logger != nil {
		n.cfg.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

func (n *Notifier) logerr(msg string, attrs ...slog.Attr) {
	if n.cfg.Logger != nil {
		n.cfg.Logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
	}
}
