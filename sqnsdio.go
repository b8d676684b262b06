// package sqnsdio implements the SDIO transport engine of Sequans SQN1130 and
// SQN1210/SQN1220 WiMAX cards: PDU framing over the card FIFOs, the interrupt
// status state machine, TX pacing against the write FIFO level, RX draining,
// wake lock bookkeeping, and card lifecycle with its reset policy.
package sqnsdio

import (
	"log/slog"
	"time"
)

// Func is one SDIO function of the attached card as exposed by the host
// controller. Register and FIFO accessors must only be called between Claim
// and Release.
type Func interface {
	// Num is the SDIO function number.
	Num() uint8
	Vendor() uint16
	Device() uint16

	Claim()
	Release()

	Read8(addr uint32) (uint8, error)
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	// WriteF0 writes a function 0 (CCCR) register.
	WriteF0(addr uint32, v uint8) error
	// ReadFIFO and WriteFIFO are CMD53 block transfers to a fixed address.
	ReadFIFO(addr uint32, dst []byte) error
	WriteFIFO(addr uint32, src []byte) error

	Enable() error
	Disable() error
	// ClaimIRQ installs handler for the function interrupt. handler may be
	// called from interrupt context.
	ClaimIRQ(handler func()) error
	ReleaseIRQ() error
}

// Platform is the board support around the card slot.
type Platform interface {
	SetPower(on bool)
	// RequestRescan asks the host controller to re-enumerate the slot after delay.
	RequestRescan(delay time.Duration)
	// DisableHostIRQ masks the SDIO interrupt at the host controller.
	DisableHostIRQ()
	// SetWakeupIRQ arms or masks the card-to-host wakeup line interrupt.
	SetWakeupIRQ(enable bool)
	// EnableHostWakeup allows the card to wake a suspended host.
	EnableHostWakeup(enable bool)
}

// Netif is the network device the engine feeds.
type Netif interface {
	// Deliver hands a received frame to the network stack. The engine does not
	// retain frame after the call returns.
	Deliver(frame []byte) error
	// StopQueue asks the stack to stop submitting frames.
	StopQueue()
	// WakeQueue releases a previous StopQueue.
	WakeQueue()
}

// Class labels a frame as bulk data or control plane traffic.
type Class uint8

const (
	ClassData Class = iota
	ClassControl
)

func (c Class) String() string {
	if c == ClassControl {
		return "control"
	}
	return "data"
}

// Classifier splits control plane traffic from data.
type Classifier interface {
	Classify(frame []byte) Class
}

// ControlHandler consumes frames classified as ClassControl.
type ControlHandler interface {
	HandleControl(frame []byte)
}

// FirmwareLoader downloads a firmware image to a card booting from host.
type FirmwareLoader interface {
	Load(fn Func, image string) error
}

// Sleeper implements the firmware sleep handshake.
type Sleeper interface {
	// Wakeup wakes a sleeping card before the host transfers to it.
	Wakeup(fn Func) error
	// NotifyHostSleep tells the firmware the host is about to suspend.
	NotifyHostSleep(fn Func) error
}

// ResetNotifier receives card reset requests when hardware reset is disabled.
type ResetNotifier interface {
	RequestReset(reason string) error
}

// Config configures an attached Device. Only Netif is required.
type Config struct {
	Logger   *slog.Logger
	Netif    Netif
	Platform Platform
	// Firmware overrides the image name selected from the card variant.
	Firmware      string
	Loader        FirmwareLoader
	Sleeper       Sleeper
	Classifier    Classifier
	Control       ControlHandler
	ResetNotifier ResetNotifier
	// WakeLocks creates the platform wake lock backing name. Nil uses an
	// in-memory lock.
	WakeLocks func(name string) WakeLock
	// TxFilter drops outbound frames for which it returns true.
	TxFilter func(frame []byte) bool

	TxHighWater, TxLowWater int
	// RxQueue buffers received data frames and delivers them from a dispatch
	// goroutine instead of the interrupt worker.
	RxQueue                 bool
	RxHighWater, RxLowWater int

	// WakeRelease is the delay before an idle wake lock is released.
	WakeRelease time.Duration
	// FirmwareReadyPoll is the interval of the firmware ready poll at attach.
	FirmwareReadyPoll time.Duration
	// FIFOPoll is the pause between write FIFO level reads.
	FIFOPoll time.Duration
	// ResetDelay is the power off time of a hardware reset.
	ResetDelay time.Duration

	DisableHardwareReset    bool
	DisableHostIRQOnFailure bool
	AbortOnTimeout          bool
	DumpRegistersOnReset    bool
	DumpPackets             bool
	LogWakeLocks            bool
}

// Defaults of Config zero values.
const (
	DefaultTxHighWater       = 50
	DefaultTxLowWater        = 20
	DefaultRxHighWater       = 50
	DefaultRxLowWater        = 20
	DefaultWakeRelease       = time.Second
	DefaultFirmwareReadyPoll = 500 * time.Millisecond
	DefaultFIFOPoll          = time.Millisecond
	DefaultResetDelay        = 5 * time.Millisecond
)

func (cfg *Config) setDefaults() {
	if cfg.TxHighWater <= 0 {
		cfg.TxHighWater = DefaultTxHighWater
	}
	cfg.TxHighWater = min(cfg.TxHighWater, maxQueueWater-1)
	if cfg.TxLowWater <= 0 || cfg.TxLowWater >= cfg.TxHighWater {
		cfg.TxLowWater = max(1, min(DefaultTxLowWater, cfg.TxHighWater/2))
	}
	if cfg.RxHighWater <= 0 {
		cfg.RxHighWater = DefaultRxHighWater
	}
	cfg.RxHighWater = min(cfg.RxHighWater, maxQueueWater-1)
	if cfg.RxLowWater <= 0 || cfg.RxLowWater >= cfg.RxHighWater {
		cfg.RxLowWater = max(1, min(DefaultRxLowWater, cfg.RxHighWater/2))
	}
	if cfg.WakeRelease <= 0 {
		cfg.WakeRelease = DefaultWakeRelease
	}
	if cfg.FirmwareReadyPoll <= 0 {
		cfg.FirmwareReadyPoll = DefaultFirmwareReadyPoll
	}
	if cfg.FIFOPoll <= 0 {
		cfg.FIFOPoll = DefaultFIFOPoll
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.Classifier == nil {
		cfg.Classifier = &EtherClassifier{ControlType: DefaultControlEtherType}
	}
	if cfg.Platform == nil {
		cfg.Platform = nopPlatform{}
	}
}

type nopPlatform struct{}

func (nopPlatform) SetPower(bool)               {}
func (nopPlatform) RequestRescan(time.Duration) {}
func (nopPlatform) DisableHostIRQ()             {}
func (nopPlatform) SetWakeupIRQ(bool)           {}
func (nopPlatform) EnableHostWakeup(bool)       {}
