package sqnsdio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// maxQueueWater bounds the queue watermarks below the card's 8 bit PDU counter.
const maxQueueWater = 255

// Params are the driver tunables as found in a YAML parameter file.
type Params struct {
	Firmware FirmwareParams `yaml:"firmware"`
	TxQueue  QueueParams    `yaml:"txQueue"`
	RxQueue  QueueParams    `yaml:"rxQueue"`
	Power    PowerParams    `yaml:"power"`
	Debug    DebugParams    `yaml:"debug"`
	Tracker  TrackerParams  `yaml:"tracker"`
}

// FirmwareParams select the firmware image and the ready wait.
type FirmwareParams struct {
	// Name overrides the image selected from the card variant.
	Name        string `yaml:"name"`
	ReadyPollMs int    `yaml:"readyPollMs"`
}

// QueueParams hold the watermarks of one direction.
type QueueParams struct {
	HighWater int `yaml:"highWater"`
	LowWater  int `yaml:"lowWater"`
	// Buffered only applies to RX, see Config.RxQueue.
	Buffered bool `yaml:"buffered"`
}

// PowerParams hold reset and wake lock settings.
type PowerParams struct {
	HardwareReset           bool `yaml:"hardwareReset"`
	WakeReleaseMs           int  `yaml:"wakeReleaseMs"`
	DisableHostIRQOnFailure bool `yaml:"disableHostIrqOnFailure"`
	AbortOnTimeout          bool `yaml:"abortOnTimeout"`
}

// DebugParams hold diagnostics switches.
type DebugParams struct {
	Level                string `yaml:"level"`
	DumpPackets          bool   `yaml:"dumpPackets"`
	LogWakeLocks         bool   `yaml:"logWakeLocks"`
	DumpRegistersOnReset bool   `yaml:"dumpRegistersOnReset"`
}

// TrackerParams configure the MQTT reset notifier used when hardware reset is off.
type TrackerParams struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientId"`
}

// DefaultParams returns the parameters used when no file is given.
func DefaultParams() Params {
	return Params{
		Firmware: FirmwareParams{
			ReadyPollMs: int(DefaultFirmwareReadyPoll / time.Millisecond),
		},
		TxQueue: QueueParams{HighWater: DefaultTxHighWater, LowWater: DefaultTxLowWater},
		RxQueue: QueueParams{HighWater: DefaultRxHighWater, LowWater: DefaultRxLowWater},
		Power: PowerParams{
			HardwareReset: true,
			WakeReleaseMs: int(DefaultWakeRelease / time.Millisecond),
		},
		Debug: DebugParams{Level: "info"},
		Tracker: TrackerParams{
			Topic:    "wimax/reset",
			ClientID: "sqnsdio",
		},
	}
}

// LoadParams returns DefaultParams overlaid with the YAML file at path, if
// path is not empty, and then with SQN_* environment variables.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return p, err
		}
		if err = yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	p.applyEnv()
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}

func (p *Params) applyEnv() {
	if v := os.Getenv("SQN_FIRMWARE"); v != "" {
		p.Firmware.Name = v
	}
	if v := os.Getenv("SQN_HW_RESET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.Power.HardwareReset = b
		}
	}
	if v := os.Getenv("SQN_DUMP_PACKETS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.Debug.DumpPackets = b
		}
	}
	if v := os.Getenv("SQN_LOG_LEVEL"); v != "" {
		p.Debug.Level = v
	}
	if v := os.Getenv("SQN_TRACKER_BROKER"); v != "" {
		p.Tracker.Broker = v
	}
}

// Validate checks watermark ordering and ranges.
func (p *Params) Validate() error {
	var errs []error
	for _, q := range []struct {
		name string
		QueueParams
	}{{"txQueue", p.TxQueue}, {"rxQueue", p.RxQueue}} {
		if q.HighWater <= 0 || q.HighWater >= maxQueueWater {
			errs = append(errs, fmt.Errorf("%s: highWater %d out of range (0,%d)", q.name, q.HighWater, maxQueueWater))
		}
		if q.LowWater <= 0 || q.LowWater >= q.HighWater {
			errs = append(errs, fmt.Errorf("%s: lowWater %d must be in (0,highWater)", q.name, q.LowWater))
		}
	}
	if p.Power.WakeReleaseMs < 0 {
		errs = append(errs, errors.New("power: negative wakeReleaseMs"))
	}
	if p.Firmware.ReadyPollMs < 0 {
		errs = append(errs, errors.New("firmware: negative readyPollMs"))
	}
	if _, err := p.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Debug.Level. "trace" is one level below debug.
func (p *Params) LogLevel() (slog.Level, error) {
	if p.Debug.Level == "trace" {
		return levelTrace, nil
	}
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(p.Debug.Level))
	if err != nil {
		return 0, fmt.Errorf("debug: %w", err)
	}
	return lvl, nil
}

// Apply copies the parameters into cfg. Collaborators in cfg are left as is.
func (p *Params) Apply(cfg *Config) {
	cfg.Firmware = p.Firmware.Name
	cfg.FirmwareReadyPoll = time.Duration(p.Firmware.ReadyPollMs) * time.Millisecond
	cfg.TxHighWater = p.TxQueue.HighWater
	cfg.TxLowWater = p.TxQueue.LowWater
	cfg.RxQueue = p.RxQueue.Buffered
	cfg.RxHighWater = p.RxQueue.HighWater
	cfg.RxLowWater = p.RxQueue.LowWater
	cfg.DisableHardwareReset = !p.Power.HardwareReset
	cfg.WakeRelease = time.Duration(p.Power.WakeReleaseMs) * time.Millisecond
	cfg.DisableHostIRQOnFailure = p.Power.DisableHostIRQOnFailure
	cfg.AbortOnTimeout = p.Power.AbortOnTimeout
	cfg.DumpPackets = p.Debug.DumpPackets
	cfg.LogWakeLocks = p.Debug.LogWakeLocks
	cfg.DumpRegistersOnReset = p.Debug.DumpRegistersOnReset
}
