package sqnsdio

import (
	"log/slog"
	"sync/atomic"
)

// WakeLock keeps the host out of low power states while active. Platforms
// without sleep states can use a lock that does nothing besides tracking state.
type WakeLock interface {
	Acquire()
	Release()
	Active() bool
}

type wakeDir uint8

const (
	wakeHost wakeDir = iota
	wakeTx
	wakeRx
	numWake
)

var wakeNames = [numWake]string{"sqn_wakelock", "sqn_wakelock_tx", "sqn_wakelock_rx"}

// softLock is the in-memory WakeLock used when Config.WakeLocks is nil.
type softLock struct {
	name   string
	active atomic.Bool
	log    func(msg string, attrs ...slog.Attr)
}

func (l *softLock) Acquire() {
	if !l.active.Swap(true) && l.log != nil {
		l.log("wakelock:acquire", slog.String("lock", l.name))
	}
}

func (l *softLock) Release() {
	if l.active.Swap(false) && l.log != nil {
		l.log("wakelock:release", slog.String("lock", l.name))
	}
}

func (l *softLock) Active() bool { return l.active.Load() }

func (d *Device) initWakeLocks() {
	for i := range d.wl {
		name := wakeNames[i]
		if d.cfg.WakeLocks != nil {
			d.wl[i] = d.cfg.WakeLocks(name)
			continue
		}
		l := &softLock{name: name}
		if d.cfg.LogWakeLocks {
			l.log = d.debug
		}
		d.wl[i] = l
	}
}

// acquireWake marks traffic in direction dir. Traffic supersedes the generic
// host lock.
func (d *Device) acquireWake(dir wakeDir) {
	if d.pmPending.Load() {
		return
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if !d.wl[dir].Active() {
		d.wl[dir].Acquire()
	}
	if dir != wakeHost && d.wl[wakeHost].Active() {
		d.wl[wakeHost].Release()
	}
}

// scheduleWakeRelease (re)arms the release timer of dir.
func (d *Device) scheduleWakeRelease(dir wakeDir) {
	if d.removed.Load() {
		return
	}
	d.wtimer[dir].Reset(d.cfg.WakeRelease)
}

// wakeTimerFired runs when a release timer expires. Locks are released only if
// the direction's queue is still empty, checked under the queue lock.
func (d *Device) wakeTimerFired(dir wakeDir) {
	switch dir {
	case wakeTx:
		d.txLock.Lock()
		defer d.txLock.Unlock()
		if d.txq.len() != 0 {
			return
		}
	case wakeRx:
		d.rxLock.Lock()
		defer d.rxLock.Unlock()
		if d.rxq.len() != 0 {
			return
		}
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if d.wl[wakeHost].Active() {
		d.wl[wakeHost].Release()
	}
	if dir != wakeHost && d.wl[dir].Active() {
		d.wl[dir].Release()
	}
}

// HoldHostAwake holds the host wake lock for one release period unless TX or
// RX traffic already keeps the host awake. Platform code calls it on idle
// timeouts and card wakeup events.
func (d *Device) HoldHostAwake() {
	if d.removed.Load() {
		return
	}
	d.wmu.Lock()
	if !d.wl[wakeTx].Active() && !d.wl[wakeRx].Active() && !d.wl[wakeHost].Active() {
		d.wl[wakeHost].Acquire()
	}
	d.wmu.Unlock()
	d.scheduleWakeRelease(wakeHost)
}

// WakeState reports which wake locks are active.
func (d *Device) WakeState() (host, tx, rx bool) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.wl[wakeHost].Active(), d.wl[wakeTx].Active(), d.wl[wakeRx].Active()
}

// releaseWakeLocks stops the timers and releases every lock. Used on detach.
func (d *Device) releaseWakeLocks() {
	for i := range d.wtimer {
		d.wtimer[i].Stop()
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	for i := range d.wl {
		if d.wl[i].Active() {
			d.wl[i].Release()
		}
	}
}
