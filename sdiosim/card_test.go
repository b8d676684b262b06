package sdiosim

import (
	"errors"
	"testing"
	"time"

	"github.com/soypat/sqnsdio/sqn"
)

func TestCardReadFIFO(t *testing.T) {
	c := NewCard(sqn.SDIO_DEVICE_ID_SQN1130)
	if _, err := c.Read8(sqn.SQN_SDIO_IT_STATUS_LSBS); !errors.Is(err, errDisabled) {
		t.Fatal("access to disabled function succeeded")
	}
	c.Enable()
	c.Queue([]byte("first"), []byte("second"))
	level, _ := c.Read16(sqn.SQN_SDIO_RD_FIFO_LEVEL(sqn.DataFIFO))
	if level != 2 {
		t.Fatalf("want level 2, got %d", level)
	}
	size, _ := c.Read16(sqn.SQN_SDIO_RDLEN_FIFO(sqn.DataFIFO))
	buf := make([]byte, size)
	if err := c.ReadFIFO(sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO), buf); err != nil || string(buf) != "first" {
		t.Fatalf("got %q, %v", buf, err)
	}
	if err := c.ReadFIFO(sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO), buf); !errors.Is(err, errNoPDU) {
		t.Error("payload read twice")
	}
	// The length read pops the PDU even if its payload is never read.
	c.Read16(sqn.SQN_SDIO_RDLEN_FIFO(sqn.DataFIFO))
	if c.Pending() != 0 {
		t.Error("length read did not advance the FIFO")
	}
}

func TestCardInterrupts(t *testing.T) {
	c := NewCard(sqn.SDIO_DEVICE_ID_SQN1210)
	c.Enable()
	var fired int
	c.ClaimIRQ(func() { fired++ })
	c.Raise(sqn.IRQRdFIFO2WM)
	if fired != 0 {
		t.Fatal("masked interrupt fired")
	}
	// Unmasking a pending bit fires.
	c.Write8(sqn.SQN_SDIO_IT_EN_LSBS, uint8(sqn.IRQEnableDefault))
	if fired != 1 {
		t.Fatalf("want 1 interrupt, got %d", fired)
	}
	c.Write8(sqn.SQN_SDIO_IT_STATUS_LSBS, uint8(sqn.IRQRdFIFO2WM))
	if lsb, _ := c.IRQStatus(); lsb != 0 {
		t.Fatalf("status not cleared: %#x", lsb)
	}
	// Read watermark stays asserted while PDUs are pending.
	c.Write16(sqn.SQN_SDIO_WM_RD_FIFO(sqn.DataFIFO), 1)
	c.Receive([]byte("x"))
	c.Write8(sqn.SQN_SDIO_IT_STATUS_LSBS, uint8(sqn.IRQRdFIFO2WM))
	if lsb, _ := c.IRQStatus(); sqn.IRQ(lsb) != sqn.IRQRdFIFO2WM || fired != 3 {
		t.Fatalf("level triggered watermark: status %#x, %d interrupts", lsb, fired)
	}
	if err := c.ClaimIRQ(func() {}); err == nil {
		t.Error("irq claimed twice")
	}
}

func TestCardWrite(t *testing.T) {
	c := NewCard(sqn.SDIO_DEVICE_ID_SQN1210)
	c.Enable()
	c.SetWrLevels(0, 4)
	for _, want := range []uint32{0, 4, 4} {
		v, _ := c.Read32(sqn.SQN_SDIO_WR_FIFO_LEVEL)
		if sqn.WrFIFOLevel(v) != want {
			t.Fatalf("want level %d, got %d", want, sqn.WrFIFOLevel(v))
		}
	}
	pdu := make([]byte, sqn.BlockSize)
	sqn.Encode(pdu, []byte("frame"))
	if err := c.WriteFIFO(sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO), pdu[:100]); !errors.Is(err, errBlockLen) {
		t.Error("unaligned write accepted")
	}
	if err := c.WriteFIFO(sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO), pdu); err != nil {
		t.Fatal(err)
	}
	if sent := c.Sent(); len(sent) != 1 || string(sent[0]) != "frame" {
		t.Fatalf("got %q", sent)
	}
	boom := errors.New("boom")
	c.InjectFault(sqn.SQN_SDIO_IT_EN_LSBS, boom)
	if err := c.Write8(sqn.SQN_SDIO_IT_EN_LSBS, 1); err != boom {
		t.Error("fault not injected")
	}
	if c.Accesses(sqn.SQN_SDIO_IT_EN_LSBS) != 1 {
		t.Error("faulted access not counted")
	}
}

func TestPlatformEvents(t *testing.T) {
	var delays []time.Duration
	p := &Platform{OnRescan: func(delay time.Duration) { delays = append(delays, delay) }}
	p.SetPower(false)
	p.SetPower(true)
	p.RequestRescan(time.Millisecond)
	p.DisableHostIRQ()
	p.DisableHostIRQ()
	want := []string{"power off", "power on", "rescan", "host irq off", "host irq off"}
	got := p.Events()
	if len(got) != len(want) {
		t.Fatalf("got events %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: want %q, got %q", i, want[i], got[i])
		}
	}
	if p.Count("host irq off") != 2 {
		t.Error("bad event count")
	}
	if len(delays) != 1 || delays[0] != time.Millisecond {
		t.Errorf("rescan hook got %v", delays)
	}
}
