package sqnsdio

import (
	"testing"
	"time"
)

func TestWakeLockHandoff(t *testing.T) {
	d, card, _ := testDevice(t, Config{WakeRelease: time.Hour})
	d.HoldHostAwake()
	if host, tx, rx := d.WakeState(); !host || tx || rx {
		t.Fatalf("want host lock only, got host=%v tx=%v rx=%v", host, tx, rx)
	}
	d.Submit(dataFrame(64, 0), false)
	if host, tx, _ := d.WakeState(); host || !tx {
		t.Fatalf("tx traffic must supersede host lock, got host=%v tx=%v", host, tx)
	}
	// Host lock is not taken while traffic keeps the host awake.
	d.HoldHostAwake()
	if host, _, _ := d.WakeState(); host {
		t.Fatal("host lock taken with tx lock active")
	}
	card.Queue(dataFrame(64, 1))
	d.drain()
	if _, tx, rx := d.WakeState(); !tx || !rx {
		t.Fatalf("want tx and rx locks, got tx=%v rx=%v", tx, rx)
	}
}

func TestWakeLockPMPending(t *testing.T) {
	d, _, _ := testDevice(t, Config{WakeRelease: time.Hour})
	d.SetPMNotificationPending(true)
	d.Submit(dataFrame(64, 0), false)
	if _, tx, _ := d.WakeState(); tx {
		t.Fatal("wake lock taken during sleep handshake")
	}
	d.SetPMNotificationPending(false)
	d.Submit(dataFrame(64, 1), false)
	if _, tx, _ := d.WakeState(); !tx {
		t.Fatal("wake lock not taken")
	}
}

func TestWakeLockTimerRelease(t *testing.T) {
	d, card, _ := testDevice(t, Config{WakeRelease: 10 * time.Millisecond})
	d.Submit(dataFrame(64, 0), false)
	card.Queue(dataFrame(64, 1))
	d.drain()
	d.pump()
	eventually(t, "wake locks released", func() bool {
		host, tx, rx := d.WakeState()
		return !host && !tx && !rx
	})
	d.HoldHostAwake()
	eventually(t, "host lock released", func() bool {
		host, _, _ := d.WakeState()
		return !host
	})
}

func TestWakeTimerQueueNotEmpty(t *testing.T) {
	d, _, _ := testDevice(t, Config{WakeRelease: time.Hour})
	d.Submit(dataFrame(64, 0), false)
	d.wakeTimerFired(wakeTx)
	if _, tx, _ := d.WakeState(); !tx {
		t.Fatal("tx lock released with frames queued")
	}
	d.pump()
	d.wakeTimerFired(wakeTx)
	if _, tx, _ := d.WakeState(); tx {
		t.Fatal("tx lock held with empty queue")
	}
}

type countingLock struct {
	name     string
	acquires int
	active   bool
}

func (l *countingLock) Acquire()     { l.acquires++; l.active = true }
func (l *countingLock) Release()     { l.active = false }
func (l *countingLock) Active() bool { return l.active }

func TestWakeLockFactory(t *testing.T) {
	locks := make(map[string]*countingLock)
	d, _, _ := testDevice(t, Config{
		WakeRelease: time.Hour,
		WakeLocks: func(name string) WakeLock {
			l := &countingLock{name: name}
			locks[name] = l
			return l
		},
	})
	for _, name := range wakeNames {
		if locks[name] == nil {
			t.Fatalf("lock %q not created", name)
		}
	}
	d.Submit(dataFrame(64, 0), false)
	d.Submit(dataFrame(64, 1), false)
	if n := locks[wakeNames[wakeTx]].acquires; n != 1 {
		t.Errorf("active lock acquired again: %d acquires", n)
	}
	d.Close()
	for name, l := range locks {
		if l.active {
			t.Errorf("lock %q held after close", name)
		}
	}
}
