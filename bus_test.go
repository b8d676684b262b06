package sqnsdio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/sqnsdio/sqn"
)

func TestRetry(t *testing.T) {
	var calls int
	boom := errors.New("boom")
	err := retry(regRetries, func() error {
		calls++
		return boom
	})
	if calls != regRetries+1 {
		t.Errorf("want %d attempts, got %d", regRetries+1, calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("joined error lost cause: %v", err)
	}
	calls = 0
	err = retry(regRetries, func() error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("want success on third call, got %v after %d", err, calls)
	}
}

func TestBusError(t *testing.T) {
	d, card, _ := testDevice(t, Config{})
	card.InjectFault(sqn.SQN_SDIO_IT_STATUS_LSBS, ErrBusTimeout)
	_, err := d.read8(sqn.SQN_SDIO_IT_STATUS_LSBS)
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("want *BusError, got %T", err)
	}
	if be.Op != "read8" || be.Reg != "IT_STATUS_LSBS" || !be.Timeout() {
		t.Errorf("unexpected bus error %+v", be)
	}
	if !IsTimeout(fmt.Errorf("wrapped: %w", err)) {
		t.Error("wrapped timeout not recognised")
	}
	if IsTimeout(errors.New("crc")) {
		t.Error("non timeout recognised as timeout")
	}
	unnamed := &BusError{Op: "write8", Addr: 0x1234, Err: errors.New("crc")}
	if got := unnamed.Error(); got != "sdio write8 0x1234: crc" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCardID(t *testing.T) {
	d, _, _ := testDevice(t, Config{})
	manf, card, err := d.cardID()
	if err != nil {
		t.Fatal(err)
	}
	if manf != sqn.SDIO_VENDOR_ID_SEQUANS || card != sqn.SDIO_DEVICE_ID_SQN1210 {
		t.Errorf("got manf=%#x card=%#x", manf, card)
	}
}

func TestDumpRegisters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelTrace}))
	d, card, _ := testDevice(t, Config{Logger: logger})
	card.InjectFault(sqn.SQN_H_BOOT_FROM_SPI, errors.New("crc"))
	d.DumpRegisters()
	out := buf.String()
	for _, want := range []string{"IT_EN_LSBS=100", "BOOT_FROM_SPI=", "crc", "CISTPLMID_CARD=4624", "WR_FIFO_LEVEL="} {
		if !strings.Contains(out, want) {
			t.Errorf("register dump missing %q:\n%s", want, out)
		}
	}
}
