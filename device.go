package sqnsdio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/sqnsdio/sqn"
)

// State is the lifecycle state of a Device.
type State uint32

const (
	StateAttaching State = iota
	StateActive
	StateSuspended
	StateDetaching
	StateGone
)

func (s State) String() string {
	switch s {
	case StateAttaching:
		return "attaching"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateDetaching:
		return "detaching"
	case StateGone:
		return "gone"
	}
	return "State(" + fmt.Sprint(uint32(s)) + ")"
}

// PMEvent is the power management event passed to Suspend.
type PMEvent uint8

const (
	PMSuspend PMEvent = iota + 1
	PMFreeze
	PMHibernate
)

const (
	fwReadyPolls     = 20
	fifoPollTries    = 20
	txResetThreshold = 5
	rxFailureLimit   = 20
	txRetryDelay     = 10 * time.Millisecond
	detachWaitTries  = 5
	detachWaitPeriod = time.Second
	rescanDelay      = 0
)

// Device is an attached SQN card.
type Device struct {
	fn            Func
	cfg           Config
	logger        *slog.Logger
	_traceenabled bool
	variant       sqn.Variant
	firmware      string

	state         atomic.Uint32
	removed       atomic.Bool
	asleep        atomic.Bool
	pmPending     atomic.Bool
	linkDown      atomic.Bool
	fwReady       atomic.Bool
	hostWakeEvent atomic.Bool
	forcedTx      atomic.Int32
	forcedRx      atomic.Int32

	// txLock guards txq and txStopped.
	txLock    sync.Mutex
	txq       frameQueue
	txStopped bool
	// txPump serializes pump passes and guards the fields below it.
	txPump     sync.Mutex
	txLevel    int
	txFailures int
	txbuf      [sqn.MaxPDULen]byte

	// rxDrain serializes drains. rxFailures and irqDisabled belong to the
	// interrupt worker.
	rxDrain     sync.Mutex
	rxFailures  int
	irqDisabled bool
	// rxLock guards rxq. rxCond signals room in rxq.
	rxLock     sync.Mutex
	rxCond     *sync.Cond
	rxq        frameQueue
	rxDispatch sync.Mutex

	wmu    sync.Mutex
	wl     [numWake]WakeLock
	wtimer [numWake]*time.Timer

	irq     chan struct{}
	txwake  chan struct{}
	rxqwake chan struct{}
	cancel  context.CancelFunc
	workers sync.WaitGroup
	closed  sync.Once

	stats stats
}

// Attach brings up the card behind fn: identifies the variant, enables the
// function and its interrupt, loads firmware when the card boots from host,
// starts the TX and interrupt workers and enables card interrupts. ctx bounds
// the firmware ready wait. The firmware not becoming ready is logged and does
// not fail Attach.
func Attach(ctx context.Context, fn Func, cfg Config) (*Device, error) {
	d, err := newDevice(fn, cfg)
	if err != nil {
		return nil, err
	}
	d.info("attach:start", slog.String("variant", d.variant.String()), slog.String("firmware", d.firmware),
		slog.Uint64("vendor", uint64(fn.Vendor())), slog.Uint64("device", uint64(fn.Device())))
	start := time.Now()

	fn.Claim()
	err = fn.Enable()
	if err == nil {
		err = fn.ClaimIRQ(d.Interrupt)
		if err != nil {
			fn.Disable()
		}
	}
	fn.Release()
	if err != nil {
		d.releaseWakeLocks()
		return nil, fmt.Errorf("enable function: %w", err)
	}

	if d.bootFromHost() {
		err = d.loadFirmware()
		if err != nil {
			d.unwindAttach()
			return nil, err
		}
	}
	d.startWorkers()

	err = d.enableInterrupts()
	if err != nil {
		d.unwindAttach()
		return nil, err
	}
	if !d.waitFirmwareReady(ctx) {
		if ctx.Err() != nil {
			d.unwindAttach()
			return nil, ctx.Err()
		}
		d.warn("attach:firmware not ready, continuing")
	}
	d.cfg.Platform.SetWakeupIRQ(false)
	d.cfg.Netif.WakeQueue()
	d.state.Store(uint32(StateActive))
	d.info("attach:done", slog.Duration("elapsed", time.Since(start)))
	return d, nil
}

// newDevice allocates device state without touching the card.
func newDevice(fn Func, cfg Config) (*Device, error) {
	if fn == nil || cfg.Netif == nil {
		return nil, errors.New("nil sdio function or netif")
	}
	cfg.setDefaults()
	d := &Device{
		fn:      fn,
		cfg:     cfg,
		logger:  cfg.Logger,
		irq:     make(chan struct{}, 1),
		txwake:  make(chan struct{}, 1),
		rxqwake: make(chan struct{}, 1),
	}
	d._traceenabled = d.logenabled(levelTrace)
	d.state.Store(uint32(StateAttaching))
	v, err := sqn.VariantOf(fn.Device())
	if err != nil {
		d.logerr("attach:unsupported card", slog.Uint64("device", uint64(fn.Device())))
		return nil, err
	}
	d.variant = v
	d.firmware = v.Firmware()
	if cfg.Firmware != "" {
		d.firmware = cfg.Firmware
	}
	d.rxCond = sync.NewCond(&d.rxLock)
	d.initWakeLocks()
	for i := range d.wtimer {
		dir := wakeDir(i)
		d.wtimer[i] = time.AfterFunc(time.Hour, func() { d.wakeTimerFired(dir) })
		d.wtimer[i].Stop()
	}
	return d, nil
}

// bootFromHost reports whether the card waits for the host to load firmware.
// Only a card that reports it is booted from the host. An unreadable flag
// leaves the card to boot from its own flash.
func (d *Device) bootFromHost() bool {
	var v uint8
	err := retry(regRetries, func() (err error) {
		v, err = d.read8(sqn.SQN_H_BOOT_FROM_SPI)
		return err
	})
	if err != nil {
		d.warn("attach:read boot mode, assuming boot from flash", slog.String("err", err.Error()))
		return false
	}
	return v == 0
}

func (d *Device) loadFirmware() error {
	if d.cfg.Loader == nil {
		return errors.New("card boots from host and no firmware loader configured")
	}
	d.info("attach:loading firmware", slog.String("image", d.firmware))
	if err := d.cfg.Loader.Load(d.fn, d.firmware); err != nil {
		d.logerr("attach:load firmware", slog.String("image", d.firmware), slog.String("err", err.Error()))
		return fmt.Errorf("load firmware %s: %w", d.firmware, err)
	}
	return nil
}

// waitFirmwareReady polls the firmware ready flag. Returns false if it never
// reads nonzero or ctx is done.
func (d *Device) waitFirmwareReady(ctx context.Context) bool {
	for i := 0; i < fwReadyPolls; i++ {
		if d.firmwareReady() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.cfg.FirmwareReadyPoll):
		}
	}
	return false
}

// firmwareReady reads the reset write FIFO flag. A nonzero reading is cached.
func (d *Device) firmwareReady() bool {
	if d.fwReady.Load() {
		return true
	}
	v, err := d.read8(regRstnWrFIFO)
	if err != nil {
		d.logerr("firmware ready flag", slog.String("err", err.Error()))
		return false
	}
	if v != 0 {
		d.fwReady.Store(true)
		d.debug("firmware ready", slog.Uint64("flag", uint64(v)))
	}
	return v != 0
}

func (d *Device) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.workers.Add(2)
	go d.irqLoop(ctx)
	go d.txLoop(ctx)
	if d.cfg.RxQueue {
		d.workers.Add(1)
		go d.rxqLoop(ctx)
	}
}

// unwindAttach undoes a partial Attach.
func (d *Device) unwindAttach() {
	d.removed.Store(true)
	d.stopWorkers()
	d.fn.Claim()
	d.fn.ReleaseIRQ()
	d.fn.Disable()
	d.fn.Release()
	d.releaseWakeLocks()
	d.state.Store(uint32(StateGone))
}

func (d *Device) stopWorkers() {
	if d.cancel == nil {
		return
	}
	d.rxLock.Lock()
	d.rxCond.Broadcast()
	d.rxLock.Unlock()
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	for i := 0; i < detachWaitTries; i++ {
		select {
		case <-done:
			return
		case <-time.After(detachWaitPeriod):
			d.warn("detach:waiting for tx/rx to finish", slog.Int("try", i+1))
		}
	}
	d.logerr("detach:tx/rx still running")
}

// Close detaches the card. In-flight passes observe the removed flag and exit
// at their next loop boundary. Close is idempotent.
func (d *Device) Close() error {
	var err error
	d.closed.Do(func() { err = d.detach() })
	return err
}

func (d *Device) detach() error {
	d.info("detach:start")
	d.state.Store(uint32(StateDetaching))
	d.removed.Store(true)

	errIRQ := d.disableInterrupts()
	d.fn.Claim()
	errRelease := d.fn.ReleaseIRQ()
	errDisable := d.fn.Disable()
	d.fn.Release()

	d.stopWorkers()

	d.txLock.Lock()
	ntx := d.txq.purge()
	d.txLock.Unlock()
	d.rxLock.Lock()
	nrx := d.rxq.purge()
	d.rxLock.Unlock()
	d.stats.txDropped.Add(uint64(ntx))
	d.stats.rxDropped.Add(uint64(nrx))

	d.releaseWakeLocks()
	d.state.Store(uint32(StateGone))
	d.info("detach:done", slog.Int("txpurged", ntx), slog.Int("rxpurged", nrx))
	return errors.Join(errIRQ, errRelease, errDisable)
}

// Suspend prepares the card for host suspend. Only PMSuspend is acted upon.
// Unless the card is already asleep the firmware is told the host is going
// to sleep. Host wakeup by the card is enabled on success.
func (d *Device) Suspend(ev PMEvent) error {
	if ev != PMSuspend {
		d.info("suspend:ignoring event", slog.Int("event", int(ev)))
		return nil
	}
	// Keep pump and drain out while the handshake runs.
	d.txPump.Lock()
	defer d.txPump.Unlock()
	d.rxDrain.Lock()
	defer d.rxDrain.Unlock()

	d.txLock.Lock()
	ntx := d.txq.len()
	d.txLock.Unlock()
	d.rxLock.Lock()
	nrx := d.rxq.len()
	d.rxLock.Unlock()
	if ntx > 0 || nrx > 0 {
		d.warn("suspend:queues not empty", slog.Int("tx", ntx), slog.Int("rx", nrx))
	}
	if d.asleep.Load() {
		d.debug("suspend:card already asleep")
	} else if d.cfg.Sleeper != nil {
		if err := d.cfg.Sleeper.NotifyHostSleep(d.fn); err != nil {
			d.logerr("suspend:notify host sleep", slog.String("err", err.Error()))
			return err
		}
	}
	d.cfg.Platform.EnableHostWakeup(true)
	d.cfg.Platform.SetWakeupIRQ(true)
	d.state.Store(uint32(StateSuspended))
	return nil
}

// Resume undoes Suspend and restarts the network queue if it was stopped.
// It does nothing once the card is removed.
func (d *Device) Resume() error {
	if d.removed.Load() {
		d.debug("resume:card removed")
		return nil
	}
	d.txLock.Lock()
	wasStopped := d.txStopped
	if wasStopped {
		d.txStopped = false
		d.cfg.Netif.WakeQueue()
	}
	d.txLock.Unlock()
	d.cfg.Platform.EnableHostWakeup(false)
	d.cfg.Platform.SetWakeupIRQ(false)
	d.state.CompareAndSwap(uint32(StateSuspended), uint32(StateActive))
	d.debug("resume", slog.Bool("queuewoken", wasStopped))
	d.kickTx()
	return nil
}

// NotifyLinkReady is called by the network stack once the link is usable.
func (d *Device) NotifyLinkReady() {
	d.linkDown.Store(false)
	d.kickTx()
}

// NotifyLinkDown is called by the network stack when the link goes down.
// Submit fails with ErrLinkDown until NotifyLinkReady.
func (d *Device) NotifyLinkDown() { d.linkDown.Store(true) }

// HostWakeup is the handler of the card-to-host wakeup line.
func (d *Device) HostWakeup() {
	d.hostWakeEvent.Store(true)
	d.HoldHostAwake()
}

// SetAsleep records the card sleep state reported by the sleep handshake.
func (d *Device) SetAsleep(asleep bool) { d.asleep.Store(asleep) }

func (d *Device) Asleep() bool { return d.asleep.Load() }

// SetPMNotificationPending gates wake lock acquisition while a sleep
// handshake with the firmware is in flight.
func (d *Device) SetPMNotificationPending(pending bool) { d.pmPending.Store(pending) }

func (d *Device) State() State { return State(d.state.Load()) }

// Removed reports whether the card was detached or reset.
func (d *Device) Removed() bool { return d.removed.Load() }

func (d *Device) Variant() sqn.Variant { return d.variant }

// Firmware returns the firmware image name selected for the card.
func (d *Device) Firmware() string { return d.firmware }

// ForceTxFailures makes the next n pump passes count as failed. Used to
// exercise the reset policy.
func (d *Device) ForceTxFailures(n int) { d.forcedTx.Store(int32(n)) }

// ForceRxErrors makes the next n drains count as failed.
func (d *Device) ForceRxErrors(n int) { d.forcedRx.Store(int32(n)) }

// takeForced decrements a forced failure counter and reports whether it was active.
func takeForced(c *atomic.Int32) bool {
	for {
		n := c.Load()
		if n <= 0 {
			return false
		}
		if c.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// passDone applies the reset policy after a pump pass. Called with txPump held.
func (d *Device) passDone(err error) {
	forced := takeForced(&d.forcedTx)
	if err == nil && !forced {
		d.txFailures = 0
		return
	}
	d.txFailures++
	attrs := []slog.Attr{slog.Int("failures", d.txFailures), slog.Bool("forced", forced)}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	d.warn("tx:pass failed", attrs...)
	if d.txFailures <= txResetThreshold {
		return
	}
	d.txFailures = 0
	reason := "tx pump failed repeatedly"
	if err != nil {
		reason += ": " + err.Error()
	}
	d.resetCard(reason)
}

// resetCard power cycles the card and asks the host to re-enumerate it. The
// device is marked removed, a new Attach is expected after the rescan.
func (d *Device) resetCard(reason string) {
	d.stats.resets.Add(1)
	if d.cfg.DisableHardwareReset {
		if d.cfg.ResetNotifier == nil {
			d.logerr("card unresponsive, hardware reset disabled", slog.String("reason", reason))
			return
		}
		d.warn("card unresponsive, requesting reset", slog.String("reason", reason))
		if err := d.cfg.ResetNotifier.RequestReset(reason); err != nil {
			d.logerr("reset request", slog.String("err", err.Error()))
		}
		return
	}
	d.logerr("card unresponsive, resetting", slog.String("reason", reason))
	if d.cfg.DumpRegistersOnReset {
		d.DumpRegisters()
	}
	d.cfg.Platform.SetPower(false)
	time.Sleep(d.cfg.ResetDelay)
	d.cfg.Platform.SetPower(true)
	d.removed.Store(true)
	d.cfg.Platform.RequestRescan(rescanDelay)
}
