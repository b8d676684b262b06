package sqnsdio

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/soypat/sqnsdio/sdiosim"
	"github.com/soypat/sqnsdio/sqn"
)

// netifRec records frames delivered by the device and queue control calls.
type netifRec struct {
	mu     sync.Mutex
	frames [][]byte
	stops  int
	wakes  int
	err    error
}

func (n *netifRec) Deliver(frame []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.frames = append(n.frames, append([]byte(nil), frame...))
	return nil
}

func (n *netifRec) StopQueue() {
	n.mu.Lock()
	n.stops++
	n.mu.Unlock()
}

func (n *netifRec) WakeQueue() {
	n.mu.Lock()
	n.wakes++
	n.mu.Unlock()
}

func (n *netifRec) received() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.frames...)
}

func (n *netifRec) queueCalls() (stops, wakes int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stops, n.wakes
}

type controlRec struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *controlRec) HandleControl(frame []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	c.mu.Unlock()
}

type notifierRec struct {
	reasons []string
}

func (n *notifierRec) RequestReset(reason string) error {
	n.reasons = append(n.reasons, reason)
	return nil
}

type sleeperRec struct {
	wakeups, notifies int
	err               error
}

func (s *sleeperRec) Wakeup(Func) error {
	s.wakeups++
	return nil
}

func (s *sleeperRec) NotifyHostSleep(Func) error {
	s.notifies++
	return s.err
}

type loaderRec struct {
	images []string
	err    error
}

func (l *loaderRec) Load(fn Func, image string) error {
	l.images = append(l.images, image)
	return l.err
}

// testDevice returns a device over an enabled simulated SQN1210 card with
// interrupts enabled and no workers running. Tests drive pump, drain and
// handleInterrupt directly.
func testDevice(t *testing.T, cfg Config) (*Device, *sdiosim.Card, *netifRec) {
	t.Helper()
	card := sdiosim.NewCard(sqn.SDIO_DEVICE_ID_SQN1210)
	if err := card.Enable(); err != nil {
		t.Fatal(err)
	}
	nif := &netifRec{}
	if cfg.Netif == nil {
		cfg.Netif = nif
	}
	d, err := newDevice(card, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err = d.enableInterrupts(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, card, nif
}

// attachDevice attaches a device with running workers to a simulated card.
func attachDevice(t *testing.T, card *sdiosim.Card, cfg Config) (*Device, *netifRec) {
	t.Helper()
	nif := &netifRec{}
	cfg.Netif = nif
	if cfg.FirmwareReadyPoll == 0 {
		cfg.FirmwareReadyPoll = time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := Attach(ctx, card, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, nif
}

// etherFrame returns an n byte Ethernet frame of the given EtherType. The
// payload is filled with a pattern derived from seed.
func etherFrame(n int, etype uint16, seed byte) []byte {
	frame := make([]byte, n)
	for i := range frame {
		frame[i] = seed + byte(i)
	}
	copy(frame[0:6], []byte{0x02, 0, 0, 0, 0, 1})
	copy(frame[6:12], []byte{0x02, 0, 0, 0, 0, 2})
	binary.BigEndian.PutUint16(frame[12:14], etype)
	return frame
}

func dataFrame(n int, seed byte) []byte { return etherFrame(n, 0x0800, seed) }

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
