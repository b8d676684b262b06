package sqnsdio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soypat/sqnsdio/sqn"
)

// Interrupt is the card interrupt handler passed to Func.ClaimIRQ. It never
// blocks: status decoding, acknowledgement and the RX drain run on the
// interrupt worker. Interrupts raised while the worker is busy coalesce.
func (d *Device) Interrupt() {
	select {
	case d.irq <- struct{}{}:
	default:
	}
}

func (d *Device) irqLoop(ctx context.Context) {
	defer d.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.irq:
			d.handleInterrupt()
		}
	}
}

// handleInterrupt services the LSB status bits and, while the card is awake,
// acknowledges the MSB status.
func (d *Device) handleInterrupt() {
	if d.removed.Load() {
		return
	}
	var lsb uint8
	err := retry(regRetries, func() (err error) {
		lsb, err = d.read8(sqn.SQN_SDIO_IT_STATUS_LSBS)
		return err
	})
	if err != nil {
		d.logerr("irq:read lsb status", slog.String("err", err.Error()))
	}
	status := sqn.IRQ(lsb)
	d.trace("irq", slog.Uint64("lsb", uint64(lsb)))

	if status&sqn.IRQWrFIFO2WM != 0 {
		// TX readiness is polled by the pump.
		d.ackLSB(sqn.IRQWrFIFO2WM)
	}
	if status&sqn.IRQRdFIFO2WM != 0 {
		err := d.drain()
		forced := takeForced(&d.forcedRx)
		if err != nil || forced {
			d.rxFailed(err, forced)
		} else {
			d.rxFailures = 0
		}
		d.ackLSB(sqn.IRQRdFIFO2WM)
	}
	if status&sqn.IRQSwSign != 0 {
		d.debug("irq:firmware signal")
		d.ackLSB(sqn.IRQSwSign)
	}
	if !d.asleep.Load() {
		d.handleMSB()
	}
}

// rxFailed counts a failed drain. After rxFailureLimit consecutive failures
// the card interrupt is disabled until the card is re-enumerated.
func (d *Device) rxFailed(err error, forced bool) {
	d.rxFailures++
	attrs := []slog.Attr{slog.Int("failures", d.rxFailures), slog.Bool("forced", forced)}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	d.warn("irq:rx failed", attrs...)
	if d.rxFailures < rxFailureLimit || d.irqDisabled {
		return
	}
	d.irqDisabled = true
	d.logerr("irq:disabling card interrupts", slog.Int("failures", d.rxFailures))
	err = retry(regRetries, func() error { return d.write8(sqn.SQN_SDIO_IT_EN_LSBS, 0) })
	if err != nil {
		d.logerr("irq:clear lsb enable", slog.String("err", err.Error()))
	}
	if d.cfg.DisableHostIRQOnFailure {
		d.cfg.Platform.DisableHostIRQ()
		d.cfg.Platform.SetWakeupIRQ(false)
	}
}

func (d *Device) ackLSB(bit sqn.IRQ) {
	err := retry(regRetries, func() error { return d.write8(sqn.SQN_SDIO_IT_STATUS_LSBS, uint8(bit)) })
	if err != nil {
		d.logerr("irq:ack lsb", slog.String("bit", bit.String()), slog.String("err", err.Error()))
	}
}

// handleMSB reads and logs the MSB status, then acknowledges every bit.
func (d *Device) handleMSB() {
	var msb uint8
	err := retry(regRetries, func() (err error) {
		msb, err = d.read8(sqn.SQN_SDIO_IT_STATUS_MSBS)
		return err
	})
	if err != nil {
		d.logerr("irq:read msb status", slog.String("err", err.Error()))
	} else if msb != 0 {
		d.debug("irq:msb status", slog.Uint64("msb", uint64(msb)))
	}
	err = retry(regRetries, func() error { return d.write8(sqn.SQN_SDIO_IT_STATUS_MSBS, sqn.IRQMSBAll) })
	if err != nil {
		d.logerr("irq:ack msb", slog.String("err", err.Error()))
	}
}

// enableInterrupts unmasks the data FIFO watermarks and the firmware signal
// and sets the read FIFO watermark to one PDU.
func (d *Device) enableInterrupts() error {
	err := retry(regRetries, func() error {
		return d.write8(sqn.SQN_SDIO_IT_EN_LSBS, uint8(sqn.IRQEnableDefault))
	})
	if err != nil {
		d.logerr("irq:enable", slog.String("err", err.Error()))
		return err
	}
	err = retry(regRetries, func() error { return d.write16(regWmRdFIFO, 1) })
	if err != nil {
		d.logerr("irq:set read watermark", slog.String("err", err.Error()))
	}
	return err
}

func (d *Device) disableInterrupts() error {
	errLSB := retry(regRetries, func() error { return d.write8(sqn.SQN_SDIO_IT_EN_LSBS, 0) })
	errMSB := retry(regRetries, func() error { return d.write8(sqn.SQN_SDIO_IT_EN_MSBS, 0) })
	if errLSB != nil || errMSB != nil {
		d.warn("irq:disable", slog.Bool("lsb", errLSB == nil), slog.Bool("msb", errMSB == nil))
	}
	return errors.Join(errLSB, errMSB)
}
