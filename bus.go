package sqnsdio

import (
	"errors"
	"log/slog"

	"github.com/soypat/sqnsdio/sqn"
)

// Register access. Every access claims the function for its own duration and
// never retries, callers decide retry policy. Failures come back as *BusError.

// Addresses used on the hot paths.
var (
	regRdFIFOLevel = sqn.SQN_SDIO_RD_FIFO_LEVEL(sqn.DataFIFO)
	regRdLen       = sqn.SQN_SDIO_RDLEN_FIFO(sqn.DataFIFO)
	regWmRdFIFO    = sqn.SQN_SDIO_WM_RD_FIFO(sqn.DataFIFO)
	regRstnWrFIFO  = sqn.SQN_SDIO_RSTN_WR_FIFO(sqn.DataFIFO)
	regDataFIFO    = sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO)
)

func (d *Device) buserr(op string, addr uint32, err error) error {
	return &BusError{Op: op, Reg: sqn.RegisterName(d.fn.Num(), addr), Addr: addr, Err: err}
}

func (d *Device) read8(addr uint32) (uint8, error) {
	d.fn.Claim()
	defer d.fn.Release()
	v, err := d.fn.Read8(addr)
	if err != nil {
		return 0, d.buserr("read8", addr, err)
	}
	return v, nil
}

func (d *Device) read16(addr uint32) (uint16, error) {
	d.fn.Claim()
	defer d.fn.Release()
	v, err := d.fn.Read16(addr)
	if err != nil {
		return 0, d.buserr("read16", addr, err)
	}
	return v, nil
}

func (d *Device) read32(addr uint32) (uint32, error) {
	d.fn.Claim()
	defer d.fn.Release()
	v, err := d.fn.Read32(addr)
	if err != nil {
		return 0, d.buserr("read32", addr, err)
	}
	return v, nil
}

func (d *Device) write8(addr uint32, v uint8) error {
	d.fn.Claim()
	defer d.fn.Release()
	if err := d.fn.Write8(addr, v); err != nil {
		return d.buserr("write8", addr, err)
	}
	return nil
}

func (d *Device) write16(addr uint32, v uint16) error {
	d.fn.Claim()
	defer d.fn.Release()
	if err := d.fn.Write16(addr, v); err != nil {
		return d.buserr("write16", addr, err)
	}
	return nil
}

func (d *Device) readFIFO(addr uint32, dst []byte) error {
	d.fn.Claim()
	defer d.fn.Release()
	if err := d.fn.ReadFIFO(addr, dst); err != nil {
		return d.buserr("readfifo", addr, err)
	}
	return nil
}

func (d *Device) writeFIFO(addr uint32, src []byte) error {
	d.fn.Claim()
	defer d.fn.Release()
	if err := d.fn.WriteFIFO(addr, src); err != nil {
		return d.buserr("writefifo", addr, err)
	}
	return nil
}

// abort stops an outstanding CMD53 of the function after a timeout.
func (d *Device) abort() error {
	d.fn.Claim()
	defer d.fn.Release()
	if err := d.fn.WriteF0(sqn.SDIO_CCCR_IO_ABORT, d.fn.Num()); err != nil {
		return &BusError{Op: "writef0", Reg: sqn.RegisterName(0, sqn.SDIO_CCCR_IO_ABORT), Addr: sqn.SDIO_CCCR_IO_ABORT, Err: err}
	}
	return nil
}

// retry calls op until it succeeds, at most times+1 calls. When every call
// fails the returned error joins all of the failures.
func retry(times int, op func() error) error {
	var errs []error
	for i := 0; i <= times; i++ {
		err := op()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

const regRetries = 5

// cardID reads the CIS manufacturer and card identifiers.
func (d *Device) cardID() (manf, card uint16, err error) {
	manf, err = d.read16(sqn.SQN_H_CISTPLMID_MANF)
	if err != nil {
		return 0, 0, err
	}
	card, err = d.read16(sqn.SQN_H_CISTPLMID_CARD)
	return manf, card, err
}

// DumpRegisters logs the value of every card register at error level, or the
// failure reading it.
func (d *Device) DumpRegisters() {
	bytesRegs := []uint32{
		sqn.SQN_SDIO_IT_EN_LSBS, sqn.SQN_SDIO_IT_EN_MSBS,
		sqn.SQN_SDIO_IT_STATUS_LSBS, sqn.SQN_SDIO_IT_STATUS_MSBS,
		regRstnWrFIFO, sqn.SQN_H_BOOT_FROM_SPI,
	}
	wordRegs := []uint32{
		regRdFIFOLevel, regWmRdFIFO, sqn.SQN_H_CISTPLMID_MANF, sqn.SQN_H_CISTPLMID_CARD,
	}
	attrs := make([]slog.Attr, 0, len(bytesRegs)+len(wordRegs)+1)
	for _, addr := range bytesRegs {
		v, err := d.read8(addr)
		attrs = append(attrs, regAttr(addr, uint64(v), err))
	}
	for _, addr := range wordRegs {
		v, err := d.read16(addr)
		attrs = append(attrs, regAttr(addr, uint64(v), err))
	}
	v, err := d.read32(sqn.SQN_SDIO_WR_FIFO_LEVEL)
	attrs = append(attrs, regAttr(sqn.SQN_SDIO_WR_FIFO_LEVEL, uint64(v), err))
	d.logerr("registers", attrs...)
}

func regAttr(addr uint32, v uint64, err error) slog.Attr {
	name := sqn.RegisterName(1, addr)
	if err == nil {
		return slog.Uint64(name, v)
	}
	if errno := errnoName(err); errno != "" {
		return slog.String(name, errno)
	}
	return slog.String(name, err.Error())
}
